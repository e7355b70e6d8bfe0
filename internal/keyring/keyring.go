// Package keyring stores profile master keys in the OS keyring, so a
// profile can be used without typing the password. Strictly optional;
// the vault never requires it.
package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "dirvault"

// ErrNotFound reports that no key is stored for the profile.
var ErrNotFound = errors.New("no master key in the keyring")

// SaveMasterKey stores a profile's master key in the OS keyring.
func SaveMasterKey(profileID string, key []byte) error {
	return keyring.Set(serviceName, profileID, string(key))
}

// GetMasterKey retrieves a profile's master key from the OS keyring.
func GetMasterKey(profileID string) ([]byte, error) {
	secret, err := keyring.Get(serviceName, profileID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(secret), nil
}

// DeleteMasterKey removes a profile's master key from the OS keyring.
func DeleteMasterKey(profileID string) error {
	err := keyring.Delete(serviceName, profileID)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// HasMasterKey reports whether a master key is stored for the profile.
func HasMasterKey(profileID string) bool {
	_, err := keyring.Get(serviceName, profileID)
	return err == nil
}

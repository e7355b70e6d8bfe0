package cmd

import (
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/keyring"
)

// KeyringSave stores the master password in the OS keyring.
func KeyringSave(opts Options) {
	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	// Prompt for password
	password, err := ReadPassword("Enter master password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(password)

	// Verify password is correct before storing it anywhere
	if err := v.Profiles().VerifyMasterKey(prof.ID, password); err != nil {
		HandleError(err)
	}

	if err := keyring.SaveMasterKey(prof.ID, password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Password saved to keyring")
}

// KeyringDelete removes the master password from the OS keyring.
func KeyringDelete(opts Options) {
	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	if err := keyring.DeleteMasterKey(prof.ID); err != nil {
		fmt.Println("No password stored in keyring")
		return
	}

	fmt.Println("Password removed from keyring")
}

// KeyringStatus reports whether the master password is in the keyring.
func KeyringStatus(opts Options) {
	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	if keyring.HasMasterKey(prof.ID) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}
}

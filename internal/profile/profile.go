// Package profile manages vault profiles: creation with a one-time
// recovery key, master key verification behind a rate limiter, password
// rotation, and recovery-key based access. A profile's master key is
// never stored; only its hash and the two wrap directions that tie the
// master and recovery keys together.
package profile

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/journal"
	"github.com/live-labs/dirvault/internal/metastore"
	"github.com/live-labs/dirvault/internal/platform"
)

const (
	// MinMasterKeyLen is the minimum accepted master key length.
	MinMasterKeyLen = 4

	recoveryAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	recoveryGroups   = 6
	recoveryGroupLen = 4
)

var (
	ErrEmptyName       = errors.New("profile name required")
	ErrProfileExists   = errors.New("profile already exists")
	ErrKeyTooShort     = errors.New("master key too short")
	ErrNotElevated     = errors.New("administrator privileges required")
	ErrTooManyAttempts = errors.New("too many failed attempts, try again later")
)

// Manager handles the profile lifecycle. RequireAdmin gates profile
// creation behind an elevated process; tests and embedded use disable it.
type Manager struct {
	store   *metastore.Store
	journal *journal.Journal
	ops     platform.FileOps
	root    string
	limiter *authLimiter

	RequireAdmin bool
}

// NewManager wires a profile manager over the metadata store, journal and
// platform operations for the vault rooted at root.
func NewManager(root string, store *metastore.Store, jrnl *journal.Journal, ops platform.FileOps) *Manager {
	return &Manager{
		store:        store,
		journal:      jrnl,
		ops:          ops,
		root:         root,
		limiter:      newAuthLimiter(),
		RequireAdmin: true,
	}
}

// CreateProfile creates a profile and returns it together with the
// plaintext recovery key. The recovery key is shown exactly once; only
// its hash and the wrapped forms persist.
func (m *Manager) CreateProfile(name string, masterKey []byte) (*metastore.Profile, string, error) {
	if m.RequireAdmin && !m.ops.IsElevated() {
		return nil, "", ErrNotElevated
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", ErrEmptyName
	}
	if len(masterKey) < MinMasterKeyLen {
		return nil, "", fmt.Errorf("%w: need at least %d characters", ErrKeyTooShort, MinMasterKeyLen)
	}
	if _, err := m.store.GetProfileByName(name); err == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrProfileExists, name)
	} else if !errors.Is(err, metastore.ErrNotFound) {
		return nil, "", err
	}

	recoveryKey, err := generateRecoveryKey()
	if err != nil {
		return nil, "", err
	}

	masterHash, err := crypto.HashPassword(masterKey)
	if err != nil {
		return nil, "", err
	}
	recoveryHash, err := crypto.HashPassword([]byte(recoveryKey))
	if err != nil {
		return nil, "", err
	}

	// Both wrap directions: the recovery key can be re-shown to a user
	// who knows the master key, and the master key can be recovered from
	// the recovery key alone.
	encryptedRecovery, err := crypto.WrapKey([]byte(recoveryKey), masterKey)
	if err != nil {
		return nil, "", err
	}
	wrappedMaster, err := crypto.WrapKey(masterKey, []byte(recoveryKey))
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	p := metastore.Profile{
		ID:                         newProfileID(now),
		Name:                       name,
		MasterKeyHash:              masterHash,
		RecoveryKeyHash:            recoveryHash,
		EncryptedRecoveryKey:       encryptedRecovery,
		MasterKeyWrappedByRecovery: wrappedMaster,
		CreatedAt:                  now,
		LastAccess:                 now,
	}
	if err := m.store.PutProfile(p); err != nil {
		return nil, "", fmt.Errorf("failed to persist profile: %w", err)
	}

	m.journal.Record("profile created", p.ID, name)
	log.Infof("created profile %s (%s)", name, p.ID)
	return &p, recoveryKey, nil
}

// VerifyMasterKey checks a master key attempt against a profile. Attempts
// are rate limited per profile; exhaustion returns ErrTooManyAttempts
// before any hash comparison. A wrong key returns crypto.ErrAuthFailed
// with no further detail. Success updates the profile's last access time
// and clears the failure history.
func (m *Manager) VerifyMasterKey(profileID string, key []byte) error {
	if !m.limiter.allow(profileID) {
		m.journal.RecordSecurity("auth attempts rate limited", profileID, "")
		return ErrTooManyAttempts
	}

	p, err := m.store.GetProfile(profileID)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(key, p.MasterKeyHash) {
		m.journal.RecordAuthFailure(profileID)
		m.journal.RecordSecurity("master key rejected", profileID, "")
		return crypto.ErrAuthFailed
	}

	m.limiter.reset(profileID)
	m.journal.ClearAuthFailures(profileID)
	if err := m.store.Touch(profileID); err != nil {
		log.Warnf("failed to update last access for %s: %v", profileID, err)
	}
	return nil
}

// RecoverMasterKey finds the profile whose recovery key hash matches and
// unwraps its master key. The caller owns the returned key and should
// clear it after use.
func (m *Manager) RecoverMasterKey(recoveryKey string) (string, []byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(recoveryKey))
	if !m.limiter.allow("recovery") {
		m.journal.RecordSecurity("recovery attempts rate limited", "", "")
		return "", nil, ErrTooManyAttempts
	}

	profiles, err := m.store.Profiles()
	if err != nil {
		return "", nil, err
	}
	for _, p := range profiles {
		if !crypto.VerifyPassword([]byte(normalized), p.RecoveryKeyHash) {
			continue
		}
		masterKey, err := crypto.UnwrapKey(p.MasterKeyWrappedByRecovery, []byte(normalized))
		if err != nil {
			return "", nil, fmt.Errorf("failed to unwrap master key: %w", err)
		}
		m.limiter.reset("recovery")
		m.store.Touch(p.ID)
		m.journal.RecordSecurity("master key recovered with recovery key", p.ID, "")
		return p.ID, masterKey, nil
	}

	m.journal.RecordSecurity("recovery key rejected", "", "")
	return "", nil, fmt.Errorf("%w: no profile matches recovery key", metastore.ErrNotFound)
}

// RevealRecoveryKey re-derives the plaintext recovery key for a user who
// still knows the master key.
func (m *Manager) RevealRecoveryKey(profileID string, masterKey []byte) (string, error) {
	if err := m.VerifyMasterKey(profileID, masterKey); err != nil {
		return "", err
	}
	p, err := m.store.GetProfile(profileID)
	if err != nil {
		return "", err
	}
	recovery, err := crypto.UnwrapKey(p.EncryptedRecoveryKey, masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to unwrap recovery key: %w", err)
	}
	return string(recovery), nil
}

// DeleteProfile removes a profile's records after verifying the master
// key. Folder trees must already be out of the vault; the orchestrator
// cascades through them before calling this.
func (m *Manager) DeleteProfile(profileID string, masterKey []byte) error {
	if err := m.VerifyMasterKey(profileID, masterKey); err != nil {
		return err
	}
	if err := m.store.DeleteProfile(profileID); err != nil {
		return err
	}
	m.journal.Record("profile deleted", profileID, "")
	log.Infof("deleted profile %s", profileID)
	return nil
}

// newProfileID builds the profile identifier from the creation time and a
// random 4-digit suffix.
func newProfileID(now time.Time) string {
	return fmt.Sprintf("profile_%d_%04d", now.UnixMilli(), randBelow(10000))
}

// generateRecoveryKey draws 24 characters from A-Z0-9 and groups them by
// four: XXXX-XXXX-XXXX-XXXX-XXXX-XXXX. Rejection sampling keeps the
// alphabet uniform.
func generateRecoveryKey() (string, error) {
	const want = recoveryGroups * recoveryGroupLen
	chars := make([]byte, 0, want)
	for len(chars) < want {
		buf, err := crypto.GenerateRandom(2 * want)
		if err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			chars = append(chars, recoveryAlphabet[int(b)%len(recoveryAlphabet)])
			if len(chars) == want {
				break
			}
		}
	}

	var sb strings.Builder
	for i, c := range chars {
		if i > 0 && i%recoveryGroupLen == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

func randBelow(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

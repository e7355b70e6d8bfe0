package metastore

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnlockMode records how a folder left the vault.
type UnlockMode int

const (
	// UnlockNone means the folder is locked or was never unlocked.
	UnlockNone UnlockMode = iota
	// UnlockTemporary means the folder is out of the vault but still
	// registered for re-locking.
	UnlockTemporary
	// UnlockPermanent means the folder was restored and released from
	// the vault entirely.
	UnlockPermanent
)

func (m UnlockMode) String() string {
	switch m {
	case UnlockTemporary:
		return "temporary"
	case UnlockPermanent:
		return "permanent"
	default:
		return "none"
	}
}

// MarshalJSON serializes the mode as its string form.
func (m UnlockMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON parses the string form written by MarshalJSON.
func (m *UnlockMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "none", "":
		*m = UnlockNone
	case "temporary":
		*m = UnlockTemporary
	case "permanent":
		*m = UnlockPermanent
	default:
		return fmt.Errorf("unknown unlock mode %q", s)
	}
	return nil
}

// Profile holds a profile's authentication material. Wrapped keys are
// serialized crypto.WrapKey strings; hashes are salt_hex:hash_hex. The
// plaintext master and recovery keys are never stored.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	MasterKeyHash   string `json:"master_key_hash"`
	RecoveryKeyHash string `json:"recovery_key_hash"`

	// EncryptedRecoveryKey is the recovery key wrapped under the master
	// key; MasterKeyWrappedByRecovery is the master key wrapped under
	// the recovery key. Either secret recovers the other.
	EncryptedRecoveryKey       string `json:"encrypted_recovery_key"`
	MasterKeyWrappedByRecovery string `json:"master_key_wrapped_by_recovery"`

	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
}

// Touch updates the last access timestamp.
func (p *Profile) Touch() {
	p.LastAccess = time.Now()
}

// BackupEntry records one snapshot taken before a risky operation.
type BackupEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
}

// LockedFolder is the vault's record of one protected folder.
type LockedFolder struct {
	ID        string `json:"id"`
	ProfileID string `json:"profile_id"`

	// OriginalPath is the absolute path the folder came from and
	// returns to. VaultPath is where the tree currently sits inside
	// the vault. FolderName is the original base name, kept because
	// the vault entry is stored under an obfuscated identifier.
	OriginalPath string `json:"original_path"`
	VaultPath    string `json:"vault_path"`
	FolderName   string `json:"folder_name"`

	IsLocked           bool       `json:"is_locked"`
	UnlockMode         UnlockMode `json:"unlock_mode"`
	UsesMasterPassword bool       `json:"uses_master_password"`

	CreatedAt time.Time     `json:"created_at"`
	Backups   []BackupEntry `json:"backups,omitempty"`
}

// AddBackup appends a snapshot record.
func (f *LockedFolder) AddBackup(entry BackupEntry) {
	f.Backups = append(f.Backups, entry)
}

// NewestBackup returns the most recent snapshot for the given operation,
// or any operation when op is empty. Nil when none exists.
func (f *LockedFolder) NewestBackup(op string) *BackupEntry {
	var newest *BackupEntry
	for i := range f.Backups {
		b := &f.Backups[i]
		if op != "" && b.Operation != op {
			continue
		}
		if newest == nil || b.Timestamp.After(newest.Timestamp) {
			newest = b
		}
	}
	return newest
}

// profilesDoc is the on-disk form of the profile index. The hmac field
// is computed over the document serialized with hmac set empty.
type profilesDoc struct {
	Version  int       `json:"version"`
	Profiles []Profile `json:"profiles"`
	HMAC     string    `json:"hmac"`
}

// foldersDoc is the on-disk form of one profile's folder records.
type foldersDoc struct {
	Version int            `json:"version"`
	Folders []LockedFolder `json:"folders"`
	HMAC    string         `json:"hmac"`
}

package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/engine"
	"github.com/live-labs/dirvault/internal/metastore"
	"github.com/live-labs/dirvault/internal/storage"
)

// rewrapped tracks one folder through a password change so a failure can
// put everything back: the pre-change snapshot and the original mapping
// file content.
type rewrapped struct {
	folder   metastore.LockedFolder
	snapshot string
	mapping  string
	oldMap   []byte
}

// ChangeProfilePassword rotates a profile's master key. Every locked
// folder that uses the master password is snapshot, decrypted with the
// old key and re-encrypted with the new one, along with its identifier
// mapping. Any failure restores the touched folders from their snapshots
// and the operation fails whole; a mixed-key vault is never left behind.
// On success the new credentials and fresh recovery material are
// persisted and the new recovery key is returned, shown exactly once.
func (m *Manager) ChangeProfilePassword(ctx context.Context, profileID string, oldKey, newKey []byte) (string, error) {
	if err := m.VerifyMasterKey(profileID, oldKey); err != nil {
		return "", err
	}
	if len(newKey) < MinMasterKeyLen {
		return "", fmt.Errorf("%w: need at least %d characters", ErrKeyTooShort, MinMasterKeyLen)
	}

	p, err := m.store.GetProfile(profileID)
	if err != nil {
		return "", err
	}
	folders, err := m.store.Folders(profileID)
	if err != nil {
		return "", err
	}
	mgr, err := storage.NewManager(m.root, profileID)
	if err != nil {
		return "", err
	}

	var touched []rewrapped
	rollback := func() {
		for i := len(touched) - 1; i >= 0; i-- {
			t := touched[i]
			if err := mgr.RestoreFromBackup(t.snapshot, t.folder.VaultPath); err != nil {
				log.Errorf("rollback of %s failed: %v", t.folder.FolderName, err)
				continue
			}
			if t.oldMap != nil {
				if err := storage.ReplaceFile(t.mapping, t.oldMap, 0600); err != nil {
					log.Errorf("rollback of %s mapping failed: %v", t.folder.FolderName, err)
				}
			}
			os.RemoveAll(t.snapshot)
		}
	}

	for _, f := range folders {
		if !f.IsLocked || !f.UsesMasterPassword {
			continue
		}
		if err := ctx.Err(); err != nil {
			rollback()
			return "", err
		}

		snap, err := mgr.CreateBackup(f.VaultPath, f.FolderName, "passwd", nil)
		if err != nil {
			rollback()
			return "", fmt.Errorf("failed to snapshot %s: %w", f.FolderName, err)
		}
		t := rewrapped{folder: f, snapshot: snap}
		t.mapping = mgr.MappingPath(filepath.Base(f.VaultPath))
		if data, err := os.ReadFile(t.mapping); err == nil {
			t.oldMap = data
		} else {
			t.mapping = ""
		}
		touched = append(touched, t)

		if err := recryptTree(ctx, f.VaultPath, oldKey, newKey); err != nil {
			rollback()
			return "", fmt.Errorf("failed to re-encrypt %s: %w", f.FolderName, err)
		}
		if t.mapping != "" {
			if err := rewrapMapping(t.mapping, t.oldMap, oldKey, newKey); err != nil {
				rollback()
				return "", fmt.Errorf("failed to re-encrypt mapping for %s: %w", f.FolderName, err)
			}
		}
	}

	recoveryKey, err := generateRecoveryKey()
	if err != nil {
		rollback()
		return "", err
	}
	masterHash, err := crypto.HashPassword(newKey)
	if err != nil {
		rollback()
		return "", err
	}
	recoveryHash, err := crypto.HashPassword([]byte(recoveryKey))
	if err != nil {
		rollback()
		return "", err
	}
	encryptedRecovery, err := crypto.WrapKey([]byte(recoveryKey), newKey)
	if err != nil {
		rollback()
		return "", err
	}
	wrappedMaster, err := crypto.WrapKey(newKey, []byte(recoveryKey))
	if err != nil {
		rollback()
		return "", err
	}

	p.MasterKeyHash = masterHash
	p.RecoveryKeyHash = recoveryHash
	p.EncryptedRecoveryKey = encryptedRecovery
	p.MasterKeyWrappedByRecovery = wrappedMaster
	if err := m.store.PutProfile(*p); err != nil {
		rollback()
		return "", fmt.Errorf("failed to persist new credentials: %w", err)
	}

	// The snapshots hold ciphertext under the superseded key.
	for _, t := range touched {
		if err := os.RemoveAll(t.snapshot); err != nil {
			log.Warnf("failed to remove password change snapshot %s: %v", t.snapshot, err)
		}
	}

	m.journal.Record("master password changed", profileID, fmt.Sprintf("%d folders re-encrypted", len(touched)))
	log.Infof("changed master password for %s, %d folders re-encrypted", profileID, len(touched))
	return recoveryKey, nil
}

// recryptTree decrypts a vault tree with the old key and re-encrypts it
// with the new one. Partial success is treated as failure; the caller
// rolls back from the snapshot.
func recryptTree(ctx context.Context, path string, oldKey, newKey []byte) error {
	res, err := engine.DecryptFolder(ctx, path, oldKey, nil)
	if err != nil {
		return err
	}
	if res.FailedCount > 0 {
		return fmt.Errorf("%d files failed to decrypt: %v", res.FailedCount, res.Errors[0])
	}
	res, err = engine.EncryptFolder(ctx, path, newKey, nil)
	if err != nil {
		return err
	}
	if res.FailedCount > 0 {
		return fmt.Errorf("%d files failed to encrypt: %v", res.FailedCount, res.Errors[0])
	}
	return nil
}

func rewrapMapping(path string, current []byte, oldKey, newKey []byte) error {
	plain, err := crypto.UnwrapKey(string(current), oldKey)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(plain)
	wrapped, err := crypto.WrapKey(plain, newKey)
	if err != nil {
		return err
	}
	return storage.ReplaceFile(path, []byte(wrapped), 0600)
}

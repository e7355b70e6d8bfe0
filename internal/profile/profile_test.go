package profile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/engine"
	"github.com/live-labs/dirvault/internal/journal"
	"github.com/live-labs/dirvault/internal/metastore"
	"github.com/live-labs/dirvault/internal/platform"
	"github.com/live-labs/dirvault/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	store, err := metastore.Open(root)
	if err != nil {
		t.Fatalf("Failed to open metastore: %v", err)
	}
	jrnl, err := journal.Open(filepath.Join(root, "journal.db"))
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() { jrnl.Close() })

	m := NewManager(root, store, jrnl, platform.Noop{})
	m.RequireAdmin = false
	return m, root
}

var recoveryKeyRe = regexp.MustCompile(`^[A-Z0-9]{4}(-[A-Z0-9]{4}){5}$`)

func TestCreateProfile(t *testing.T) {
	m, _ := newTestManager(t)

	p, recovery, err := m.CreateProfile("personal", []byte("master-key"))
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if !strings.HasPrefix(p.ID, "profile_") {
		t.Errorf("Unexpected profile id: %s", p.ID)
	}
	if !recoveryKeyRe.MatchString(recovery) {
		t.Errorf("Recovery key has wrong format: %s", recovery)
	}
	if p.MasterKeyHash == "" || p.RecoveryKeyHash == "" {
		t.Error("Password hashes not set")
	}
	if p.EncryptedRecoveryKey == "" || p.MasterKeyWrappedByRecovery == "" {
		t.Error("Wrapped keys not set")
	}

	if err := m.VerifyMasterKey(p.ID, []byte("master-key")); err != nil {
		t.Errorf("VerifyMasterKey with correct key failed: %v", err)
	}
}

func TestCreateProfileValidation(t *testing.T) {
	m, _ := newTestManager(t)

	if _, _, err := m.CreateProfile("  ", []byte("master-key")); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Expected ErrEmptyName, got %v", err)
	}
	if _, _, err := m.CreateProfile("personal", []byte("abc")); !errors.Is(err, ErrKeyTooShort) {
		t.Errorf("Expected ErrKeyTooShort, got %v", err)
	}

	if _, _, err := m.CreateProfile("personal", []byte("master-key")); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if _, _, err := m.CreateProfile("personal", []byte("other-key")); !errors.Is(err, ErrProfileExists) {
		t.Errorf("Expected ErrProfileExists, got %v", err)
	}
}

type unelevated struct{ platform.Noop }

func (unelevated) IsElevated() bool { return false }

func TestCreateProfileRequiresElevation(t *testing.T) {
	m, _ := newTestManager(t)
	m.ops = unelevated{}
	m.RequireAdmin = true

	if _, _, err := m.CreateProfile("personal", []byte("master-key")); !errors.Is(err, ErrNotElevated) {
		t.Errorf("Expected ErrNotElevated, got %v", err)
	}
}

func TestVerifyMasterKeyWrong(t *testing.T) {
	m, _ := newTestManager(t)
	p, _, err := m.CreateProfile("personal", []byte("master-key"))
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if err := m.VerifyMasterKey(p.ID, []byte("wrong")); !errors.Is(err, crypto.ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
	if n, _ := m.journal.AuthFailures(p.ID); n != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", n)
	}

	// Success clears the failure history
	if err := m.VerifyMasterKey(p.ID, []byte("master-key")); err != nil {
		t.Fatalf("VerifyMasterKey failed: %v", err)
	}
	if n, _ := m.journal.AuthFailures(p.ID); n != 0 {
		t.Errorf("Expected failure count cleared, got %d", n)
	}
}

func TestVerifyMasterKeyRateLimited(t *testing.T) {
	m, _ := newTestManager(t)
	p, _, err := m.CreateProfile("personal", []byte("master-key"))
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := m.VerifyMasterKey(p.ID, []byte("wrong")); !errors.Is(err, crypto.ErrAuthFailed) {
			t.Fatalf("Attempt %d: expected ErrAuthFailed, got %v", i+1, err)
		}
	}

	// The burst is exhausted; even the correct key is refused now.
	if err := m.VerifyMasterKey(p.ID, []byte("master-key")); !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("Expected ErrTooManyAttempts, got %v", err)
	}
}

func TestRecoverMasterKey(t *testing.T) {
	m, _ := newTestManager(t)
	p, recovery, err := m.CreateProfile("personal", []byte("master-key"))
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	id, master, err := m.RecoverMasterKey(recovery)
	if err != nil {
		t.Fatalf("RecoverMasterKey failed: %v", err)
	}
	if id != p.ID {
		t.Errorf("Recovered wrong profile: %s", id)
	}
	if string(master) != "master-key" {
		t.Errorf("Recovered wrong master key: %q", master)
	}

	// Input normalization: lowercase with surrounding whitespace
	if _, _, err := m.RecoverMasterKey("  " + strings.ToLower(recovery) + "\n"); err != nil {
		t.Errorf("Normalized recovery key rejected: %v", err)
	}

	if _, _, err := m.RecoverMasterKey("AAAA-BBBB-CCCC-DDDD-EEEE-FFFF"); !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown recovery key, got %v", err)
	}
}

func TestRevealRecoveryKey(t *testing.T) {
	m, _ := newTestManager(t)
	p, recovery, err := m.CreateProfile("personal", []byte("master-key"))
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	got, err := m.RevealRecoveryKey(p.ID, []byte("master-key"))
	if err != nil {
		t.Fatalf("RevealRecoveryKey failed: %v", err)
	}
	if got != recovery {
		t.Errorf("Revealed key %s, want %s", got, recovery)
	}

	if _, err := m.RevealRecoveryKey(p.ID, []byte("wrong")); !errors.Is(err, crypto.ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
}

func TestDeleteProfile(t *testing.T) {
	m, _ := newTestManager(t)
	p, _, err := m.CreateProfile("personal", []byte("master-key"))
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if err := m.DeleteProfile(p.ID, []byte("wrong")); !errors.Is(err, crypto.ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
	if _, err := m.store.GetProfile(p.ID); err != nil {
		t.Errorf("Profile should survive a failed delete: %v", err)
	}

	if err := m.DeleteProfile(p.ID, []byte("master-key")); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	if _, err := m.store.GetProfile(p.ID); !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestRecoveryKeyUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := generateRecoveryKey()
		if err != nil {
			t.Fatalf("generateRecoveryKey failed: %v", err)
		}
		if !recoveryKeyRe.MatchString(key) {
			t.Fatalf("Bad recovery key format: %s", key)
		}
		if seen[key] {
			t.Fatalf("Duplicate recovery key: %s", key)
		}
		seen[key] = true
	}
}

func TestProfileIDFormat(t *testing.T) {
	re := regexp.MustCompile(`^profile_\d+_\d{4}$`)
	id := newProfileID(time.Now())
	if !re.MatchString(id) {
		t.Errorf("Bad profile id format: %s", id)
	}
}

// lockTestFolder plants an encrypted folder tree with its mapping inside
// the vault, the way the orchestrator leaves one after locking.
func lockTestFolder(t *testing.T, m *Manager, profileID, identifier string, key []byte) (metastore.LockedFolder, string) {
	t.Helper()
	mgr, err := storage.NewManager(m.root, profileID)
	if err != nil {
		t.Fatalf("Failed to create storage manager: %v", err)
	}

	vaultPath := mgr.HiddenFolderPath(identifier)
	if err := os.MkdirAll(filepath.Join(vaultPath, "sub"), 0700); err != nil {
		t.Fatalf("Failed to create vault tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(vaultPath, "a.txt"), []byte("secret data"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(vaultPath, "sub", "b.txt"), []byte("more secrets"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if res, err := engine.EncryptFolder(context.Background(), vaultPath, key, nil); err != nil || res.FailedCount > 0 {
		t.Fatalf("Failed to encrypt vault tree: %v %+v", err, res)
	}

	mapJSON := []byte(`{"folder_id":"folder-1","original_path":"/home/u/docs","created":"2026-01-02T15:04:05Z"}`)
	wrapped, err := crypto.WrapKey(mapJSON, key)
	if err != nil {
		t.Fatalf("Failed to wrap mapping: %v", err)
	}
	mapPath := mgr.MappingPath(identifier)
	if err := os.WriteFile(mapPath, []byte(wrapped), 0600); err != nil {
		t.Fatalf("Failed to write mapping: %v", err)
	}

	f := metastore.LockedFolder{
		ID:                 "folder-1",
		ProfileID:          profileID,
		OriginalPath:       "/home/u/docs",
		VaultPath:          vaultPath,
		FolderName:         "docs",
		IsLocked:           true,
		UsesMasterPassword: true,
		CreatedAt:          time.Now(),
	}
	if err := m.store.PutFolder(f); err != nil {
		t.Fatalf("Failed to store folder record: %v", err)
	}
	return f, mapPath
}

func TestChangeProfilePassword(t *testing.T) {
	m, root := newTestManager(t)
	ctx := context.Background()
	oldKey, newKey := []byte("old-master"), []byte("new-master")

	p, firstRecovery, err := m.CreateProfile("personal", oldKey)
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	f, mapPath := lockTestFolder(t, m, p.ID, "feedface-deadbeef-01234567-89abcdef", oldKey)

	newRecovery, err := m.ChangeProfilePassword(ctx, p.ID, oldKey, newKey)
	if err != nil {
		t.Fatalf("ChangeProfilePassword failed: %v", err)
	}
	if newRecovery == firstRecovery {
		t.Error("Recovery key was not rotated")
	}
	if !recoveryKeyRe.MatchString(newRecovery) {
		t.Errorf("Bad new recovery key format: %s", newRecovery)
	}

	// Old credentials are out, new ones work
	if err := m.VerifyMasterKey(p.ID, oldKey); !errors.Is(err, crypto.ErrAuthFailed) {
		t.Errorf("Old master key still accepted: %v", err)
	}
	if err := m.VerifyMasterKey(p.ID, newKey); err != nil {
		t.Errorf("New master key rejected: %v", err)
	}
	if _, _, err := m.RecoverMasterKey(firstRecovery); !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("Old recovery key still accepted: %v", err)
	}
	if id, master, err := m.RecoverMasterKey(newRecovery); err != nil || id != p.ID || string(master) != string(newKey) {
		t.Errorf("New recovery key does not recover the new master key: %v", err)
	}

	// The vault tree now opens under the new key
	res, err := engine.DecryptFolder(ctx, f.VaultPath, newKey, nil)
	if err != nil || res.FailedCount > 0 {
		t.Fatalf("Vault tree not decryptable with new key: %v %+v", err, res)
	}
	data, err := os.ReadFile(filepath.Join(f.VaultPath, "a.txt"))
	if err != nil || string(data) != "secret data" {
		t.Errorf("Content lost across password change: %q %v", data, err)
	}

	// Mapping re-wrapped under the new key
	mapData, err := os.ReadFile(mapPath)
	if err != nil {
		t.Fatalf("Failed to read mapping: %v", err)
	}
	plain, err := crypto.UnwrapKey(string(mapData), newKey)
	if err != nil {
		t.Fatalf("Mapping not unwrappable with new key: %v", err)
	}
	if !strings.Contains(string(plain), "/home/u/docs") {
		t.Errorf("Mapping content lost: %s", plain)
	}

	// Password change snapshots are cleaned up
	entries, err := os.ReadDir(filepath.Join(root, p.ID, "backup"))
	if err != nil {
		t.Fatalf("Failed to list backups: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "_passwd_") {
			t.Errorf("Password change snapshot left behind: %s", e.Name())
		}
	}
}

func TestChangeProfilePasswordRollback(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	oldKey := []byte("old-master")

	p, _, err := m.CreateProfile("personal", oldKey)
	if err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	// The vault tree is sealed under a key the profile does not know, so
	// re-encryption must fail partway and roll back.
	f, mapPath := lockTestFolder(t, m, p.ID, "feedface-deadbeef-01234567-89abcdef", []byte("foreign-key"))

	encBefore, err := os.ReadFile(filepath.Join(f.VaultPath, "a.txt"+engine.EncSuffix))
	if err != nil {
		t.Fatalf("Failed to read encrypted body: %v", err)
	}
	mapBefore, err := os.ReadFile(mapPath)
	if err != nil {
		t.Fatalf("Failed to read mapping: %v", err)
	}

	if _, err := m.ChangeProfilePassword(ctx, p.ID, oldKey, []byte("new-master")); err == nil {
		t.Fatal("ChangeProfilePassword should have failed")
	}

	// Credentials unchanged
	if err := m.VerifyMasterKey(p.ID, oldKey); err != nil {
		t.Errorf("Old master key no longer works after rollback: %v", err)
	}

	// Tree and mapping restored byte for byte
	encAfter, err := os.ReadFile(filepath.Join(f.VaultPath, "a.txt"+engine.EncSuffix))
	if err != nil {
		t.Fatalf("Encrypted body missing after rollback: %v", err)
	}
	if !bytes.Equal(encBefore, encAfter) {
		t.Error("Encrypted body changed despite rollback")
	}
	mapAfter, err := os.ReadFile(mapPath)
	if err != nil || !bytes.Equal(mapBefore, mapAfter) {
		t.Errorf("Mapping changed despite rollback: %v", err)
	}
	if !engine.IsFolderEncrypted(f.VaultPath) {
		t.Error("Folder lost its encrypted state")
	}
}

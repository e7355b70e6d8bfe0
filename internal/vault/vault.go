package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/engine"
	"github.com/live-labs/dirvault/internal/journal"
	"github.com/live-labs/dirvault/internal/metastore"
	"github.com/live-labs/dirvault/internal/platform"
	"github.com/live-labs/dirvault/internal/profile"
	"github.com/live-labs/dirvault/internal/storage"
)

const (
	// DefaultKeepBackups is how many snapshots per folder survive pruning.
	DefaultKeepBackups = 3

	// JournalFile is the journal database's name under the vault root.
	JournalFile = "journal.db"

	decoyCount = 3

	labelPreLock   = "pre-lock"
	labelPreUnlock = "pre-unlock"
)

var (
	ErrFolderMissing = errors.New("folder does not exist")
	ErrNotDirectory  = errors.New("not a directory")
	ErrInsideVault   = errors.New("folder is inside the vault")
	ErrAlreadyLocked = errors.New("folder is already locked")
)

// Vault orchestrates the full folder lifecycle: locking a plaintext
// directory into an encrypted, concealed vault entry and reversing the
// transformation on demand. It owns the metadata store, the operation
// journal and the temporary-unlock registry for one vault root.
type Vault struct {
	root     string
	store    *metastore.Store
	profiles *profile.Manager
	journal  *journal.Journal
	ops      platform.FileOps
	registry *Registry
}

// New sets up the vault at root, creating the directory and its
// metadata store and journal on first use.
func New(root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root: %w", err)
	}
	if err := os.MkdirAll(abs, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}

	store, err := metastore.Open(abs)
	if err != nil {
		return nil, err
	}
	jrnl, err := journal.Open(filepath.Join(abs, JournalFile))
	if err != nil {
		return nil, err
	}

	ops := platform.New()
	return &Vault{
		root:     abs,
		store:    store,
		profiles: profile.NewManager(abs, store, jrnl, ops),
		journal:  jrnl,
		ops:      ops,
		registry: NewRegistry(),
	}, nil
}

// Close releases the vault's resources.
func (v *Vault) Close() error {
	return v.journal.Close()
}

// Root returns the vault root directory.
func (v *Vault) Root() string { return v.root }

// Store exposes the metadata store for read-only consumers.
func (v *Vault) Store() *metastore.Store { return v.store }

// Profiles exposes the profile manager.
func (v *Vault) Profiles() *profile.Manager { return v.profiles }

// Journal exposes the operation journal.
func (v *Vault) Journal() *journal.Journal { return v.journal }

// Registry exposes the temporary-unlock registry.
func (v *Vault) Registry() *Registry { return v.registry }

// LockFolder moves the directory at path into the vault under an
// obfuscated identifier, encrypts it with the profile's master key and
// records it. Returns the new folder id.
func (v *Vault) LockFolder(ctx context.Context, profileID, path string, masterKey []byte) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrFolderMissing, abs)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat folder: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	if v.insideVault(abs) {
		return "", fmt.Errorf("%w: %s", ErrInsideVault, abs)
	}

	if err := v.profiles.VerifyMasterKey(profileID, masterKey); err != nil {
		return "", err
	}

	folders, err := v.store.Folders(profileID)
	if err != nil {
		return "", err
	}
	for _, f := range folders {
		if f.IsLocked && f.OriginalPath == abs {
			return "", fmt.Errorf("%w: %s", ErrAlreadyLocked, abs)
		}
	}

	mgr, err := storage.NewManager(v.root, profileID)
	if err != nil {
		return "", err
	}

	f := metastore.LockedFolder{
		ID:                 uuid.NewString(),
		ProfileID:          profileID,
		OriginalPath:       abs,
		FolderName:         filepath.Base(abs),
		IsLocked:           true,
		UnlockMode:         metastore.UnlockNone,
		UsesMasterPassword: true,
		CreatedAt:          time.Now(),
	}

	if err := v.sealFolder(ctx, mgr, &f, masterKey); err != nil {
		v.journal.RecordError("folder lock failed", profileID, f.FolderName)
		return "", err
	}

	if err := v.store.PutFolder(f); err != nil {
		// The move and encryption already happened; bring the folder back.
		v.unsealFolder(mgr, &f)
		return "", fmt.Errorf("failed to persist folder record: %w", err)
	}

	if removed, err := mgr.CleanOldBackups(f.FolderName, DefaultKeepBackups); err != nil {
		log.Warnf("backup pruning for %s failed: %v", f.FolderName, err)
	} else if removed > 0 {
		log.Debugf("pruned %d old snapshots of %s", removed, f.FolderName)
	}

	v.concealEntry(f.VaultPath)
	v.journal.Record("folder locked", profileID, f.FolderName)
	log.Infof("locked %s as %s", abs, filepath.Base(f.VaultPath))
	return f.ID, nil
}

// sealFolder runs the lock sequence for a folder whose record is being
// created or re-locked: snapshot, move under a fresh obfuscated
// identifier, encrypt in place, write the sealed mapping. On failure the
// original folder is restored from the snapshot and vault residue
// removed.
func (v *Vault) sealFolder(ctx context.Context, mgr *storage.Manager, f *metastore.LockedFolder, masterKey []byte) error {
	var identifier, vaultPath string
	for attempt := 0; ; attempt++ {
		id, err := obfuscatedIdentifier(f.OriginalPath, f.ProfileID)
		if err != nil {
			return err
		}
		if _, err := os.Lstat(mgr.HiddenFolderPath(id)); errors.Is(err, fs.ErrNotExist) {
			identifier = id
			vaultPath = mgr.HiddenFolderPath(id)
			break
		}
		if attempt == 2 {
			return errors.New("no free vault identifier")
		}
	}

	backupPath, err := mgr.CreateBackup(f.OriginalPath, f.FolderName, labelPreLock, nil)
	if err != nil {
		return fmt.Errorf("failed to back up %s: %w", f.FolderName, err)
	}

	txn := mgr.Begin()
	txn.RecordBackup(backupPath)

	if err := mgr.MoveToVault(f.OriginalPath, vaultPath, nil); err != nil {
		txn.Rollback()
		return fmt.Errorf("failed to move %s into vault: %w", f.FolderName, err)
	}
	txn.RecordMove(f.OriginalPath, vaultPath)

	res, err := engine.EncryptFolder(ctx, vaultPath, masterKey, nil)
	if err == nil && res.FailedCount > 0 {
		err = fmt.Errorf("%d of %d files failed: %v", res.FailedCount, res.Total, res.Errors[0])
	}
	if err != nil {
		// The tree may be partly encrypted; the plaintext snapshot is
		// the safe way back.
		v.restoreFromSnapshot(mgr, backupPath, f.OriginalPath, vaultPath, "")
		return fmt.Errorf("failed to encrypt %s: %w", f.FolderName, err)
	}

	mapPath := mgr.MappingPath(identifier)
	m := mapping{FolderID: f.ID, OriginalPath: f.OriginalPath, Created: time.Now()}
	if err := writeMapping(mapPath, m, masterKey); err != nil {
		v.restoreFromSnapshot(mgr, backupPath, f.OriginalPath, vaultPath, mapPath)
		return fmt.Errorf("failed to write mapping for %s: %w", f.FolderName, err)
	}

	txn.Commit()
	f.VaultPath = vaultPath
	f.AddBackup(metastore.BackupEntry{Timestamp: time.Now(), Path: backupPath, Operation: labelPreLock})
	return nil
}

// unsealFolder reverses a sealFolder whose record could not be
// persisted.
func (v *Vault) unsealFolder(mgr *storage.Manager, f *metastore.LockedFolder) {
	mapPath := mgr.MappingPath(filepath.Base(f.VaultPath))
	if be := f.NewestBackup(labelPreLock); be != nil {
		v.restoreFromSnapshot(mgr, be.Path, f.OriginalPath, f.VaultPath, mapPath)
	}
}

// restoreFromSnapshot puts a folder back at its original path from a
// plaintext snapshot and removes vault residue. When anything goes wrong
// the snapshot is kept and the failure journaled; the user's data always
// survives somewhere.
func (v *Vault) restoreFromSnapshot(mgr *storage.Manager, backupPath, originalPath, vaultPath, mapPath string) {
	if err := storage.SecureRemoveTree(vaultPath); err != nil {
		log.Errorf("failed to remove vault residue %s: %v", vaultPath, err)
	}
	if mapPath != "" {
		os.Remove(mapPath)
	}

	if _, err := os.Lstat(originalPath); err == nil {
		// The original is still in place; the snapshot is redundant.
		os.RemoveAll(backupPath)
		return
	}
	if err := mgr.RestoreFromBackup(backupPath, originalPath); err != nil {
		v.journal.RecordError("failed to restore folder from snapshot", "", backupPath)
		log.Errorf("failed to restore %s from %s: %v", originalPath, backupPath, err)
		return
	}
	os.RemoveAll(backupPath)
}

/// concealEntry applies the best-effort hardening after a lock: attribute
// tightening, trace scrubbing and decoy neighbors. Failures log a
// warning and never block the lock.
func (v *Vault) concealEntry(vaultPath string) {
	if err := v.ops.SetSecureAttributes(vaultPath); err != nil {
		log.Warnf("failed to set secure attributes on %s: %v", vaultPath, err)
	}
	if err := v.ops.HideDirectory(vaultPath); err != nil {
		log.Warnf("failed to hide %s: %v", vaultPath, err)
	}
	if err := v.ops.ScrubRevealingAttributes(vaultPath); err != nil {
		log.Warnf("failed to scrub attributes under %s: %v", vaultPath, err)
	}
	if err := storage.CreateDecoys(filepath.Dir(vaultPath), decoyCount); err != nil {
		log.Warnf("failed to create decoys: %v", err)
	}
}

func (v *Vault) insideVault(abs string) bool {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// UnlockResult aggregates a batch unlock. Per-folder failures land here
// instead of failing the batch.
type UnlockResult struct {
	SuccessCount int
	FailedCount  int
	FailedIDs    []string
	Errors       []string
}

func (r *UnlockResult) fail(id string, err error) {
	r.FailedCount++
	r.FailedIDs = append(r.FailedIDs, id)
	r.Errors = append(r.Errors, err.Error())
}

// UnlockFolders decrypts folders and moves them back to their original
// paths. Without explicit ids every locked master-password folder is
// unlocked. TEMPORARY keeps the record and registers the folder for
// relocking; PERMANENT removes the record, the mapping and any vault
// residue. Unlocking an already-unlocked folder is a no-op. The context
// is checked between folders.
func (v *Vault) UnlockFolders(ctx context.Context, profileID string, masterKey []byte, mode metastore.UnlockMode, folderIDs ...string) (*UnlockResult, error) {
	if mode != metastore.UnlockTemporary && mode != metastore.UnlockPermanent {
		return nil, fmt.Errorf("invalid unlock mode %q", mode)
	}
	if err := v.profiles.VerifyMasterKey(profileID, masterKey); err != nil {
		return nil, err
	}
	folders, err := v.store.Folders(profileID)
	if err != nil {
		return nil, err
	}
	mgr, err := storage.NewManager(v.root, profileID)
	if err != nil {
		return nil, err
	}

	result := &UnlockResult{}

	var selected []metastore.LockedFolder
	if len(folderIDs) == 0 {
		for _, f := range folders {
			if f.IsLocked && f.UsesMasterPassword {
				selected = append(selected, f)
			}
		}
	} else {
		byID := make(map[string]metastore.LockedFolder, len(folders))
		for _, f := range folders {
			byID[f.ID] = f
		}
		for _, id := range folderIDs {
			f, ok := byID[id]
			if !ok {
				result.fail(id, fmt.Errorf("%w: %s", metastore.ErrNotFound, id))
				continue
			}
			if !f.IsLocked {
				// Already unlocked; the desired state holds.
				result.SuccessCount++
				continue
			}
			selected = append(selected, f)
		}
	}

	for _, f := range selected {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := v.unlockOne(ctx, mgr, f, masterKey, mode); err != nil {
			result.fail(f.ID, fmt.Errorf("%s: %w", f.FolderName, err))
			v.journal.RecordError("folder unlock failed", profileID, f.FolderName)
			continue
		}
		result.SuccessCount++
	}

	v.journal.Record("folders unlocked", profileID,
		fmt.Sprintf("%d unlocked, %d failed, mode %s", result.SuccessCount, result.FailedCount, mode))
	return result, nil
}

func (v *Vault) unlockOne(ctx context.Context, mgr *storage.Manager, f metastore.LockedFolder, masterKey []byte, mode metastore.UnlockMode) error {
	if _, err := os.Lstat(f.OriginalPath); err == nil {
		return fmt.Errorf("%w: %s", storage.ErrDestinationExists, f.OriginalPath)
	}

	backupPath, err := mgr.CreateBackup(f.VaultPath, f.FolderName, labelPreUnlock, nil)
	if err != nil {
		return fmt.Errorf("failed to back up %s: %w", f.FolderName, err)
	}
	if err := v.store.AddBackupEntry(f.ProfileID, f.ID, metastore.BackupEntry{
		Timestamp: time.Now(), Path: backupPath, Operation: labelPreUnlock,
	}); err != nil {
		log.Warnf("failed to record snapshot of %s: %v", f.FolderName, err)
	}

	// A tree left half-decrypted by an earlier failed unlock is picked up
	// where it stopped.
	if engine.IsFolderEncrypted(f.VaultPath) {
		res, err := engine.DecryptFolder(ctx, f.VaultPath, masterKey, nil)
		if err == nil && res.FailedCount > 0 {
			err = fmt.Errorf("%d of %d files failed: %v", res.FailedCount, res.Total, res.Errors[0])
		}
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", f.FolderName, err)
		}
	}

	// The sealed mapping is the redundant origin record; the metadata
	// wins, drift is only reported.
	mapPath := mgr.MappingPath(filepath.Base(f.VaultPath))
	if m, err := readMapping(mapPath, masterKey); err == nil && m.OriginalPath != f.OriginalPath {
		log.Warnf("mapping for %s disagrees with record: %s vs %s", f.FolderName, m.OriginalPath, f.OriginalPath)
	}

	if err := mgr.MoveFromVault(f.VaultPath, f.OriginalPath, nil); err != nil {
		return fmt.Errorf("failed to move %s back: %w", f.FolderName, err)
	}

	switch mode {
	case metastore.UnlockPermanent:
		if err := storage.SecureRemoveTree(mapPath); err != nil {
			log.Warnf("failed to remove mapping for %s: %v", f.FolderName, err)
		}
		os.RemoveAll(f.VaultPath)
		// Older pre-lock snapshots hold plaintext. Once the folder leaves
		// the vault nothing references them, so they go too.
		for _, be := range f.Backups {
			if err := storage.SecureRemoveTree(be.Path); err != nil {
				log.Warnf("failed to remove snapshot %s: %v", be.Path, err)
			}
		}
		if err := storage.SecureRemoveTree(backupPath); err != nil {
			log.Warnf("failed to remove snapshot %s: %v", backupPath, err)
		}
		if err := v.store.DeleteFolder(f.ProfileID, f.ID); err != nil {
			return fmt.Errorf("failed to remove folder record: %w", err)
		}
	default:
		if err := v.store.UpdateFolder(f.ProfileID, f.ID, func(rec *metastore.LockedFolder) error {
			rec.IsLocked = false
			rec.UnlockMode = mode
			return nil
		}); err != nil {
			return fmt.Errorf("failed to update folder record: %w", err)
		}
		v.registry.Register(f.ID, f.OriginalPath)
		if _, err := mgr.CleanOldBackups(f.FolderName, DefaultKeepBackups); err != nil {
			log.Warnf("backup pruning for %s failed: %v", f.FolderName, err)
		}
	}

	v.journal.Record("folder unlocked", f.ProfileID, fmt.Sprintf("%s (%s)", f.FolderName, mode))
	log.Infof("unlocked %s to %s (%s)", f.FolderName, f.OriginalPath, mode)
	return nil
}

// RelockResult aggregates a relock sweep.
type RelockResult struct {
	RelockedCount int
	FailedCount   int
	Errors        []string
}

// RelockTemporaryFolders re-locks every temporarily unlocked folder of
// the profile under a fresh identifier and fresh encryption salt, and
// clears the matching registry entries.
func (v *Vault) RelockTemporaryFolders(ctx context.Context, profileID string, masterKey []byte) (*RelockResult, error) {
	if err := v.profiles.VerifyMasterKey(profileID, masterKey); err != nil {
		return nil, err
	}
	folders, err := v.store.Folders(profileID)
	if err != nil {
		return nil, err
	}
	mgr, err := storage.NewManager(v.root, profileID)
	if err != nil {
		return nil, err
	}

	result := &RelockResult{}
	for _, f := range folders {
		if f.IsLocked || f.UnlockMode != metastore.UnlockTemporary {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := v.relockOne(ctx, mgr, f, masterKey); err != nil {
			result.FailedCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.FolderName, err))
			v.journal.RecordError("folder relock failed", profileID, f.FolderName)
			continue
		}
		result.RelockedCount++
	}

	v.journal.Record("temporary folders relocked", profileID,
		fmt.Sprintf("%d relocked, %d failed", result.RelockedCount, result.FailedCount))
	return result, nil
}

func (v *Vault) relockOne(ctx context.Context, mgr *storage.Manager, f metastore.LockedFolder, masterKey []byte) error {
	if _, err := os.Stat(f.OriginalPath); err != nil {
		return fmt.Errorf("%w: %s", ErrFolderMissing, f.OriginalPath)
	}

	staleMapping := ""
	if f.VaultPath != "" {
		staleMapping = mgr.MappingPath(filepath.Base(f.VaultPath))
	}

	if err := v.sealFolder(ctx, mgr, &f, masterKey); err != nil {
		return err
	}
	f.IsLocked = true
	f.UnlockMode = metastore.UnlockNone
	if err := v.store.PutFolder(f); err != nil {
		v.unsealFolder(mgr, &f)
		return fmt.Errorf("failed to persist folder record: %w", err)
	}

	if staleMapping != "" && staleMapping != mgr.MappingPath(filepath.Base(f.VaultPath)) {
		os.Remove(staleMapping)
	}
	v.registry.Unregister(f.ID)

	if _, err := mgr.CleanOldBackups(f.FolderName, DefaultKeepBackups); err != nil {
		log.Warnf("backup pruning for %s failed: %v", f.FolderName, err)
	}
	v.concealEntry(f.VaultPath)
	v.journal.Record("folder relocked", f.ProfileID, f.FolderName)
	log.Infof("relocked %s", f.FolderName)
	return nil
}

// UnlockWithRecoveryKey resolves the master key from a recovery key and
// temporarily unlocks the matching profile's folders. A non-empty
// profileID restricts which profile the key may resolve to. Returns the
// resolved profile id.
func (v *Vault) UnlockWithRecoveryKey(ctx context.Context, profileID, recoveryKey string) (string, *UnlockResult, error) {
	recoveredID, masterKey, err := v.profiles.RecoverMasterKey(recoveryKey)
	if err != nil {
		return "", nil, err
	}
	defer crypto.ClearBytes(masterKey)

	if profileID != "" && profileID != recoveredID {
		return "", nil, fmt.Errorf("%w: recovery key does not match profile", metastore.ErrNotFound)
	}

	res, err := v.UnlockFolders(ctx, recoveredID, masterKey, metastore.UnlockTemporary)
	return recoveredID, res, err
}

// RemoveFolder takes a folder out of the vault's care. A locked folder's
// ciphertext, mapping and snapshots are securely wiped; an unlocked
// folder keeps its on-disk data and only loses its records.
func (v *Vault) RemoveFolder(ctx context.Context, profileID, folderID string, masterKey []byte) error {
	if err := v.profiles.VerifyMasterKey(profileID, masterKey); err != nil {
		return err
	}
	f, err := v.store.GetFolder(profileID, folderID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	mgr, err := storage.NewManager(v.root, profileID)
	if err != nil {
		return err
	}

	if err := v.removeFolderData(mgr, f); err != nil {
		return err
	}
	v.registry.Unregister(f.ID)
	if err := v.store.DeleteFolder(profileID, folderID); err != nil {
		return err
	}
	v.journal.RecordSecurity("folder removed from vault", profileID, f.FolderName)
	log.Infof("removed %s from the vault", f.FolderName)
	return nil
}

// removeFolderData wipes a folder's vault residue: the ciphertext tree
// when locked, the mapping and snapshots either way. Record and registry
// cleanup stay with the caller.
func (v *Vault) removeFolderData(mgr *storage.Manager, f metastore.LockedFolder) error {
	if f.IsLocked {
		if err := storage.SecureRemoveTree(f.VaultPath); err != nil {
			return fmt.Errorf("failed to remove vault tree: %w", err)
		}
	}
	if f.VaultPath != "" {
		if err := storage.SecureRemoveTree(mgr.MappingPath(filepath.Base(f.VaultPath))); err != nil {
			log.Warnf("failed to remove mapping for %s: %v", f.FolderName, err)
		}
	}
	for _, be := range f.Backups {
		if err := storage.SecureRemoveTree(be.Path); err != nil {
			log.Warnf("failed to remove snapshot %s: %v", be.Path, err)
		}
	}
	return nil
}

// DeleteProfile removes a profile and everything the vault holds for it.
// Locked folders are destroyed, unlocked folders keep their on-disk data
// and are only forgotten. The profile's storage area goes last.
func (v *Vault) DeleteProfile(ctx context.Context, profileID string, masterKey []byte) error {
	if err := v.profiles.VerifyMasterKey(profileID, masterKey); err != nil {
		return err
	}
	folders, err := v.store.Folders(profileID)
	if err != nil {
		return err
	}
	mgr, err := storage.NewManager(v.root, profileID)
	if err != nil {
		return err
	}

	for _, f := range folders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := v.removeFolderData(mgr, f); err != nil {
			return fmt.Errorf("%s: %w", f.FolderName, err)
		}
		v.registry.Unregister(f.ID)
		if err := v.store.DeleteFolder(profileID, f.ID); err != nil {
			return err
		}
	}

	if err := v.profiles.DeleteProfile(profileID, masterKey); err != nil {
		return err
	}
	if err := storage.SecureRemoveTree(filepath.Join(v.root, profileID)); err != nil {
		log.Warnf("failed to remove storage for %s: %v", profileID, err)
	}
	v.journal.RecordSecurity("profile deleted from vault", profileID, "")
	return nil
}

// FolderStatus is one folder's row in a status report.
type FolderStatus struct {
	ID           string
	Name         string
	OriginalPath string
	IsLocked     bool
	Mode         metastore.UnlockMode
	Backups      int
	CreatedAt    time.Time
}

// StatusReport summarizes a profile and its folders without any secrets.
type StatusReport struct {
	ProfileID    string
	ProfileName  string
	CreatedAt    time.Time
	LastAccess   time.Time
	AuthFailures uint64
	LockedCount  int
	Folders      []FolderStatus
}

// Status reports a profile's folders. No password is required; nothing
// sensitive appears in the report.
func (v *Vault) Status(profileID string) (*StatusReport, error) {
	p, err := v.store.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	folders, err := v.store.Folders(profileID)
	if err != nil {
		return nil, err
	}
	failures, err := v.journal.AuthFailures(profileID)
	if err != nil {
		log.Warnf("failed to read auth failure count: %v", err)
	}

	rep := &StatusReport{
		ProfileID:    p.ID,
		ProfileName:  p.Name,
		CreatedAt:    p.CreatedAt,
		LastAccess:   p.LastAccess,
		AuthFailures: failures,
	}
	for _, f := range folders {
		if f.IsLocked {
			rep.LockedCount++
		}
		rep.Folders = append(rep.Folders, FolderStatus{
			ID:           f.ID,
			Name:         f.FolderName,
			OriginalPath: f.OriginalPath,
			IsLocked:     f.IsLocked,
			Mode:         f.UnlockMode,
			Backups:      len(f.Backups),
			CreatedAt:    f.CreatedAt,
		})
	}
	return rep, nil
}

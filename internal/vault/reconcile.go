package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/live-labs/dirvault/internal/engine"
	"github.com/live-labs/dirvault/internal/metastore"
	"github.com/live-labs/dirvault/internal/storage"
)

// IssueKind classifies one inconsistency between the metadata store and
// the on-disk vault state.
type IssueKind string

const (
	// IssueMissingVaultTree is a locked record whose vault tree is gone.
	IssueMissingVaultTree IssueKind = "missing vault tree"
	// IssueUnencryptedVaultTree is a locked record whose vault tree
	// holds plaintext.
	IssueUnencryptedVaultTree IssueKind = "unencrypted vault tree"
	// IssueOrphanMapping is a mapping file no record refers to.
	IssueOrphanMapping IssueKind = "orphan mapping"
	// IssueOrphanVaultTree is a vault entry no record refers to.
	IssueOrphanVaultTree IssueKind = "orphan vault tree"
	// IssueMissingUnlockedFolder is a temporarily unlocked record whose
	// folder is gone from its original path.
	IssueMissingUnlockedFolder IssueKind = "missing unlocked folder"
	// IssueUnlockedVaultResidue is a temporarily unlocked record whose
	// vault tree is still on disk.
	IssueUnlockedVaultResidue IssueKind = "unlocked vault residue"
	// IssueStaleBackupEntries is a record pointing at snapshots that no
	// longer exist.
	IssueStaleBackupEntries IssueKind = "stale backup entries"
)

// Issue is one detected inconsistency.
type Issue struct {
	Kind     IssueKind
	FolderID string // empty for orphans
	Path     string
	Detail   string
	Repaired bool
}

// ReconcileReport lists what Reconcile found and, in repair mode, fixed.
type ReconcileReport struct {
	Issues   []Issue
	Repaired int
}

// Reconcile cross-checks a profile's records against the vault's disk
// state. In repair mode it restores missing trees from snapshots, prunes
// stale records and removes orphaned files; repairs that would need the
// master key, like re-encrypting a plaintext vault tree, are reported
// only.
func (v *Vault) Reconcile(ctx context.Context, profileID string, repair bool) (*ReconcileReport, error) {
	if _, err := v.store.GetProfile(profileID); err != nil {
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

	rep := &ReconcileReport{}

	referenced := make(map[string]bool, len(folders))
	for _, f := range folders {
		if f.VaultPath != "" {
			referenced[filepath.Base(f.VaultPath)] = true
		}
	}

	for _, f := range folders {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		v.checkFolder(mgr, f, repair, rep)
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	v.checkOrphanTrees(mgr, referenced, repair, rep)
	v.checkOrphanMappings(mgr, referenced, repair, rep)

	v.journal.Record("vault reconciled", profileID,
		fmt.Sprintf("%d issues, %d repaired", len(rep.Issues), rep.Repaired))
	return rep, nil
}

func (v *Vault) checkFolder(mgr *storage.Manager, f metastore.LockedFolder, repair bool, rep *ReconcileReport) {
	switch {
	case f.IsLocked:
		if _, err := os.Lstat(f.VaultPath); errors.Is(err, fs.ErrNotExist) {
			iss := Issue{Kind: IssueMissingVaultTree, FolderID: f.ID, Path: f.VaultPath, Detail: f.FolderName}
			if repair {
				if err := v.restoreMissingTree(mgr, f); err != nil {
					iss.Detail = fmt.Sprintf("%s: %v", f.FolderName, err)
				} else {
					iss.Repaired = true
					rep.Repaired++
				}
			}
			rep.Issues = append(rep.Issues, iss)
			break
		}
		if !engine.IsFolderEncrypted(f.VaultPath) {
			rep.Issues = append(rep.Issues, Issue{
				Kind: IssueUnencryptedVaultTree, FolderID: f.ID, Path: f.VaultPath,
				Detail: fmt.Sprintf("%s holds plaintext; unlock and relock it", f.FolderName),
			})
		}
	case f.UnlockMode == metastore.UnlockTemporary:
		if _, err := os.Stat(f.OriginalPath); errors.Is(err, fs.ErrNotExist) {
			rep.Issues = append(rep.Issues, Issue{
				Kind: IssueMissingUnlockedFolder, FolderID: f.ID, Path: f.OriginalPath, Detail: f.FolderName,
			})
		}
		if f.VaultPath == "" {
			break
		}
		if _, err := os.Lstat(f.VaultPath); err == nil {
			iss := Issue{Kind: IssueUnlockedVaultResidue, FolderID: f.ID, Path: f.VaultPath, Detail: f.FolderName}
			if repair {
				// Remove the residue only when the real data is
				// confirmed at the original path.
				if _, err := os.Stat(f.OriginalPath); err != nil {
					iss.Detail = fmt.Sprintf("%s: original path missing, not removing", f.FolderName)
				} else if err := storage.SecureRemoveTree(f.VaultPath); err != nil {
					iss.Detail = fmt.Sprintf("%s: %v", f.FolderName, err)
				} else {
					iss.Repaired = true
					rep.Repaired++
				}
			}
			rep.Issues = append(rep.Issues, iss)
		}
	}

	stale := 0
	for _, be := range f.Backups {
		if _, err := os.Lstat(be.Path); errors.Is(err, fs.ErrNotExist) {
			stale++
		}
	}
	if stale == 0 {
		return
	}
	iss := Issue{
		Kind: IssueStaleBackupEntries, FolderID: f.ID,
		Detail: fmt.Sprintf("%s: %d of %d snapshots missing", f.FolderName, stale, len(f.Backups)),
	}
	if repair {
		err := v.store.UpdateFolder(f.ProfileID, f.ID, func(rec *metastore.LockedFolder) error {
			kept := rec.Backups[:0]
			for _, be := range rec.Backups {
				if _, err := os.Lstat(be.Path); err == nil {
					kept = append(kept, be)
				}
			}
			rec.Backups = kept
			return nil
		})
		if err != nil {
			iss.Detail = fmt.Sprintf("%s: %v", iss.Detail, err)
		} else {
			iss.Repaired = true
			rep.Repaired++
		}
	}
	rep.Issues = append(rep.Issues, iss)
}

// restoreMissingTree brings back a locked folder whose ciphertext
// vanished. The newest pre-lock snapshot holds the sealed content in
// plaintext, so it goes back to the original path and the record flips
// to temporarily unlocked for the next relock sweep.
func (v *Vault) restoreMissingTree(mgr *storage.Manager, f metastore.LockedFolder) error {
	be := f.NewestBackup(labelPreLock)
	if be == nil {
		return errors.New("no snapshot available")
	}
	if _, err := os.Lstat(f.OriginalPath); err == nil {
		return fmt.Errorf("%w: %s", storage.ErrDestinationExists, f.OriginalPath)
	}
	if err := mgr.RestoreFromBackup(be.Path, f.OriginalPath); err != nil {
		return err
	}
	if err := v.store.UpdateFolder(f.ProfileID, f.ID, func(rec *metastore.LockedFolder) error {
		rec.IsLocked = false
		rec.UnlockMode = metastore.UnlockTemporary
		return nil
	}); err != nil {
		return err
	}
	os.Remove(mgr.MappingPath(filepath.Base(f.VaultPath)))
	v.registry.Register(f.ID, f.OriginalPath)
	v.journal.RecordError("vault tree restored from snapshot", f.ProfileID, f.FolderName)
	return nil
}

func (v *Vault) checkOrphanTrees(mgr *storage.Manager, referenced map[string]bool, repair bool, rep *ReconcileReport) {
	hiddenDir := filepath.Join(mgr.Base(), "hidden_folders")
	entries, err := os.ReadDir(hiddenDir)
	if err != nil {
		log.Warnf("failed to list vault entries: %v", err)
		return
	}
	for _, e := range entries {
		// Decoy directories do not carry identifier-shaped names.
		if !e.IsDir() || !identifierRe.MatchString(e.Name()) || referenced[e.Name()] {
			continue
		}
		path := filepath.Join(hiddenDir, e.Name())
		iss := Issue{Kind: IssueOrphanVaultTree, Path: path, Detail: e.Name()}
		if repair {
			if err := storage.SecureRemoveTree(path); err != nil {
				iss.Detail = fmt.Sprintf("%s: %v", e.Name(), err)
			} else {
				iss.Repaired = true
				rep.Repaired++
			}
		}
		rep.Issues = append(rep.Issues, iss)
	}
}

func (v *Vault) checkOrphanMappings(mgr *storage.Manager, referenced map[string]bool, repair bool, rep *ReconcileReport) {
	mapDir := filepath.Join(mgr.Base(), "mappings")
	entries, err := os.ReadDir(mapDir)
	if err != nil {
		log.Warnf("failed to list mappings: %v", err)
		return
	}
	for _, e := range entries {
		identifier := strings.TrimSuffix(e.Name(), ".map")
		if e.IsDir() || identifier == e.Name() || !identifierRe.MatchString(identifier) || referenced[identifier] {
			continue
		}
		path := filepath.Join(mapDir, e.Name())
		iss := Issue{Kind: IssueOrphanMapping, Path: path, Detail: e.Name()}
		if repair {
			if err := storage.SecureRemoveTree(path); err != nil {
				iss.Detail = fmt.Sprintf("%s: %v", e.Name(), err)
			} else {
				iss.Repaired = true
				rep.Repaired++
			}
		}
		rep.Issues = append(rep.Issues, iss)
	}
}

package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

var (
	ErrSourceMissing     = errors.New("source does not exist")
	ErrDestinationExists = errors.New("destination already exists")
	ErrNotDirectory      = errors.New("not a directory")
)

// ProgressFunc reports byte progress during tree copies. Implementations
// must tolerate being called from the moving goroutine; a nil ProgressFunc
// disables reporting.
type ProgressFunc func(path string, done, total int64)

// Manager owns one profile's slice of the vault filesystem:
//
//	<root>/<profileID>/hidden_folders/  moved folder trees
//	<root>/<profileID>/backup/          pre-operation snapshots
//	<root>/<profileID>/mappings/        encrypted identifier mappings
//
// Moves prefer an atomic rename and fall back to copy, verify, delete
// when the source lives on another filesystem.
type Manager struct {
	base      string
	profileID string
}

// NewManager creates the manager for a profile, ensuring its directory
// structure exists.
func NewManager(root, profileID string) (*Manager, error) {
	base := filepath.Join(root, profileID)
	for _, dir := range []string{"hidden_folders", "backup", "mappings"} {
		if err := os.MkdirAll(filepath.Join(base, dir), 0700); err != nil {
			return nil, fmt.Errorf("failed to create vault directory %s: %w", dir, err)
		}
	}
	return &Manager{base: base, profileID: profileID}, nil
}

// Base returns the profile's vault directory.
func (m *Manager) Base() string {
	return m.base
}

// HiddenFolderPath returns the vault location for an identifier.
func (m *Manager) HiddenFolderPath(identifier string) string {
	return filepath.Join(m.base, "hidden_folders", identifier)
}

// MappingPath returns the encrypted mapping file location for an
// identifier.
func (m *Manager) MappingPath(identifier string) string {
	return filepath.Join(m.base, "mappings", identifier+".map")
}

// BackupPath builds a fresh snapshot location for a folder. The
// timestamp suffix keeps successive snapshots distinct.
func (m *Manager) BackupPath(folderName, label string) string {
	name := fmt.Sprintf("%s_%s_%d", folderName, label, time.Now().UnixMilli())
	return filepath.Join(m.base, "backup", name)
}

// MoveToVault moves a folder tree into the vault.
func (m *Manager) MoveToVault(src, dst string, progress ProgressFunc) error {
	return m.moveTree(src, dst, progress)
}

// MoveFromVault moves a folder tree out of the vault.
func (m *Manager) MoveFromVault(src, dst string, progress ProgressFunc) error {
	return m.moveTree(src, dst, progress)
}

// moveTree relocates a directory tree. The destination must not exist.
// Rename is attempted first; across filesystems the tree is copied,
// verified file by file, and only then deleted from the source. Each
// phase failure is wrapped with the phase name so callers can tell a
// reversible failure (copy) from a completed move with residue
// (cleanup).
func (m *Manager) moveTree(src, dst string, progress ProgressFunc) error {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return fmt.Errorf("failed to create destination parent: %w", err)
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	log.Debugf("rename failed for %s, falling back to copy", src)

	if err := copyTree(src, dst, progress); err != nil {
		os.RemoveAll(dst)
		return fmt.Errorf("copy phase: %w", err)
	}
	if err := verifyCopy(src, dst); err != nil {
		os.RemoveAll(dst)
		return fmt.Errorf("verify phase: %w", err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("cleanup phase: %w", err)
	}
	return nil
}

// copyTree duplicates a directory tree, preserving permissions and
// symlinks. Progress is reported in bytes against the source total.
func copyTree(src, dst string, progress ProgressFunc) error {
	total, err := treeSize(src)
	if err != nil {
		return err
	}

	var done int64
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			if err := copyFile(path, target, info.Mode().Perm()); err != nil {
				return err
			}
			done += info.Size()
			if progress != nil {
				progress(rel, done, total)
			}
			return nil
		default:
			// Sockets, devices and the like are not portable; skip.
			log.Warnf("skipping special file %s", path)
			return nil
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// verifyCopy compares every regular file between the trees by SHA-256.
func verifyCopy(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		srcSum, err := fileChecksum(path)
		if err != nil {
			return err
		}
		dstSum, err := fileChecksum(filepath.Join(dst, rel))
		if err != nil {
			return err
		}
		if srcSum != dstSum {
			return fmt.Errorf("checksum mismatch for %s", rel)
		}
		return nil
	})
}

// fileChecksum computes the SHA-256 of a file's contents.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CreateBackup copies a folder tree into the profile's backup area and
// returns the snapshot path. The source is left untouched.
func (m *Manager) CreateBackup(src, folderName, label string, progress ProgressFunc) (string, error) {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, src)
	}

	dst := m.BackupPath(folderName, label)
	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	}
	if err := copyTree(src, dst, progress); err != nil {
		os.RemoveAll(dst)
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return dst, nil
}

// RestoreFromBackup replaces dst with the snapshot's contents.
func (m *Manager) RestoreFromBackup(backupPath, dst string) error {
	if _, err := os.Stat(backupPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrSourceMissing, backupPath)
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to clear restore target: %w", err)
	}
	if err := copyTree(backupPath, dst, nil); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}
	return nil
}

// Backups returns a folder's snapshot paths, newest first.
func (m *Manager) Backups(folderName string) ([]string, error) {
	dir := filepath.Join(m.base, "backup")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	type backup struct {
		path string
		mod  time.Time
	}
	var found []backup
	prefix := folderName + "_"
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) <= len(prefix) || e.Name()[:len(prefix)] != prefix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		found = append(found, backup{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })

	paths := make([]string, len(found))
	for i, b := range found {
		paths[i] = b.path
	}
	return paths, nil
}

// CleanOldBackups removes all but the newest keep snapshots of a folder
// and returns how many were deleted.
func (m *Manager) CleanOldBackups(folderName string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	backups, err := m.Backups(folderName)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keep {
		return 0, nil
	}

	removed := 0
	for _, path := range backups[keep:] {
		if err := os.RemoveAll(path); err != nil {
			log.Warnf("failed to remove old backup %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("pruned %d old backups of %s", removed, folderName)
	}
	return removed, nil
}

// TreeSize returns the total size of regular files under path.
func (m *Manager) TreeSize(path string) (int64, error) {
	return treeSize(path)
}

func treeSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// VerifyTree walks a tree and confirms every regular file can be opened.
// Used by reconciliation to detect unreadable vault entries.
func (m *Manager) VerifyTree(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("unreadable file %s: %w", p, err)
		}
		return f.Close()
	})
}

// ReplaceFile atomically replaces the file at path: the data lands in a
// temp file in the same directory first, then takes the target's place by
// rename.
func ReplaceFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dirvault-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set temp file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// makeTree builds a small folder tree and returns its path.
func makeTree(t *testing.T, parent string) string {
	t.Helper()
	src := filepath.Join(parent, "docs")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatalf("Failed to create tree: %v", err)
	}
	files := map[string]string{
		"a.txt":       "alpha",
		"sub/b.txt":   "bravo",
		"sub/.hidden": "charlie",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return src
}

func checkTree(t *testing.T, root string) {
	t.Helper()
	want := map[string]string{
		"a.txt":       "alpha",
		"sub/b.txt":   "bravo",
		"sub/.hidden": "charlie",
	}
	for name, content := range want {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			t.Errorf("Missing %s: %v", name, err)
			continue
		}
		if string(data) != content {
			t.Errorf("Content mismatch for %s: got %q, want %q", name, data, content)
		}
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), "profile_test")
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerCreatesLayout(t *testing.T) {
	root := t.TempDir()
	m, err := NewManager(root, "p1")
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	for _, dir := range []string{"hidden_folders", "backup", "mappings"} {
		info, err := os.Stat(filepath.Join(m.Base(), dir))
		if err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s: %v", dir, err)
		}
	}
	if m.Base() != filepath.Join(root, "p1") {
		t.Errorf("Unexpected base: %s", m.Base())
	}
}

func TestMoveToVault(t *testing.T) {
	m := newTestManager(t)
	src := makeTree(t, t.TempDir())
	dst := m.HiddenFolderPath("a1b2c3d4-e5f60718-29304a5b-6c7d8e9f")

	if err := m.MoveToVault(src, dst, nil); err != nil {
		t.Fatalf("MoveToVault failed: %v", err)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Source still exists after move")
	}
	checkTree(t, dst)
}

func TestMoveRoundTrip(t *testing.T) {
	m := newTestManager(t)
	parent := t.TempDir()
	src := makeTree(t, parent)
	vaultPath := m.HiddenFolderPath("someid")

	if err := m.MoveToVault(src, vaultPath, nil); err != nil {
		t.Fatalf("MoveToVault failed: %v", err)
	}
	if err := m.MoveFromVault(vaultPath, src, nil); err != nil {
		t.Fatalf("MoveFromVault failed: %v", err)
	}

	if _, err := os.Stat(vaultPath); !os.IsNotExist(err) {
		t.Error("Vault path still exists after move out")
	}
	checkTree(t, src)
}

func TestMoveErrors(t *testing.T) {
	m := newTestManager(t)
	parent := t.TempDir()

	// Missing source
	err := m.MoveToVault(filepath.Join(parent, "nope"), m.HiddenFolderPath("x"), nil)
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("Expected ErrSourceMissing, got %v", err)
	}

	// Source is a file
	file := filepath.Join(parent, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	err = m.MoveToVault(file, m.HiddenFolderPath("x"), nil)
	if !errors.Is(err, ErrNotDirectory) {
		t.Errorf("Expected ErrNotDirectory, got %v", err)
	}

	// Destination exists
	src := makeTree(t, parent)
	dst := m.HiddenFolderPath("taken")
	if err := os.MkdirAll(dst, 0700); err != nil {
		t.Fatalf("Failed to create destination: %v", err)
	}
	err = m.MoveToVault(src, dst, nil)
	if !errors.Is(err, ErrDestinationExists) {
		t.Errorf("Expected ErrDestinationExists, got %v", err)
	}
	// Source untouched by the refused move
	checkTree(t, src)
}

func TestMoveProgress(t *testing.T) {
	m := newTestManager(t)
	src := makeTree(t, t.TempDir())

	// Force the copy path by moving through copyTree directly; rename
	// moves report no byte progress.
	dst := filepath.Join(t.TempDir(), "copy")
	var lastDone, lastTotal int64
	calls := 0
	err := copyTree(src, dst, func(path string, done, total int64) {
		calls++
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("copyTree failed: %v", err)
	}

	if calls != 3 {
		t.Errorf("Expected 3 progress calls, got %d", calls)
	}
	if lastDone != lastTotal || lastTotal == 0 {
		t.Errorf("Final progress %d/%d, want equal nonzero", lastDone, lastTotal)
	}
}

func TestCreateBackupLeavesSource(t *testing.T) {
	m := newTestManager(t)
	src := makeTree(t, t.TempDir())

	backup, err := m.CreateBackup(src, "docs", "pre-lock", nil)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	checkTree(t, src)
	checkTree(t, backup)

	if filepath.Dir(backup) != filepath.Join(m.Base(), "backup") {
		t.Errorf("Backup outside backup area: %s", backup)
	}
	name := filepath.Base(backup)
	if len(name) < len("docs_pre-lock_") || name[:len("docs_pre-lock_")] != "docs_pre-lock_" {
		t.Errorf("Unexpected backup name: %s", name)
	}
}

func TestRestoreFromBackup(t *testing.T) {
	m := newTestManager(t)
	src := makeTree(t, t.TempDir())

	backup, err := m.CreateBackup(src, "docs", "pre-lock", nil)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	// Damage the original
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("corrupted"), 0644); err != nil {
		t.Fatalf("Failed to modify file: %v", err)
	}
	if err := os.Remove(filepath.Join(src, "sub", "b.txt")); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	if err := m.RestoreFromBackup(backup, src); err != nil {
		t.Fatalf("RestoreFromBackup failed: %v", err)
	}
	checkTree(t, src)

	// Missing backup
	err = m.RestoreFromBackup(filepath.Join(m.Base(), "backup", "nope"), src)
	if !errors.Is(err, ErrSourceMissing) {
		t.Errorf("Expected ErrSourceMissing, got %v", err)
	}
}

func TestCleanOldBackups(t *testing.T) {
	m := newTestManager(t)
	src := makeTree(t, t.TempDir())

	var paths []string
	for i := 0; i < 5; i++ {
		backup, err := m.CreateBackup(src, "docs", "pre-lock", nil)
		if err != nil {
			t.Fatalf("CreateBackup %d failed: %v", i, err)
		}
		// Spread modification times so ordering is unambiguous
		when := time.Now().Add(time.Duration(i-5) * time.Hour)
		if err := os.Chtimes(backup, when, when); err != nil {
			t.Fatalf("Chtimes failed: %v", err)
		}
		paths = append(paths, backup)
		time.Sleep(2 * time.Millisecond)
	}

	removed, err := m.CleanOldBackups("docs", 2)
	if err != nil {
		t.Fatalf("CleanOldBackups failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("Expected 3 removed, got %d", removed)
	}

	remaining, err := m.Backups("docs")
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("Expected 2 remaining, got %d", len(remaining))
	}
	// The two newest survive
	if remaining[0] != paths[4] || remaining[1] != paths[3] {
		t.Errorf("Wrong backups retained: %v", remaining)
	}

	// Nothing more to remove
	removed, err = m.CleanOldBackups("docs", 2)
	if err != nil || removed != 0 {
		t.Errorf("Expected no-op, got %d, %v", removed, err)
	}
}

func TestBackupsFiltersByFolder(t *testing.T) {
	m := newTestManager(t)
	parent := t.TempDir()
	src := makeTree(t, parent)

	if _, err := m.CreateBackup(src, "docs", "pre-lock", nil); err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := m.CreateBackup(src, "docs2", "pre-lock", nil); err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}

	backups, err := m.Backups("docs")
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("Expected 1 backup for docs, got %d: %v", len(backups), backups)
	}
}

func TestTreeSize(t *testing.T) {
	m := newTestManager(t)
	src := makeTree(t, t.TempDir())

	size, err := m.TreeSize(src)
	if err != nil {
		t.Fatalf("TreeSize failed: %v", err)
	}
	// alpha + bravo + charlie
	if want := int64(5 + 5 + 7); size != want {
		t.Errorf("Expected size %d, got %d", want, size)
	}
}

func TestVerifyTree(t *testing.T) {
	m := newTestManager(t)
	src := makeTree(t, t.TempDir())

	if err := m.VerifyTree(src); err != nil {
		t.Errorf("VerifyTree failed on healthy tree: %v", err)
	}
	if err := m.VerifyTree(filepath.Join(src, "missing")); err == nil {
		t.Error("Expected error for missing tree")
	}
}

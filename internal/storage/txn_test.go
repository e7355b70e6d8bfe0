package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTxnRollbackRestoresTree(t *testing.T) {
	m := newTestManager(t)
	parent := t.TempDir()
	src := makeTree(t, parent)
	vaultPath := m.HiddenFolderPath("someid")

	txn := m.Begin()

	backup, err := m.CreateBackup(src, "docs", "pre-lock", nil)
	if err != nil {
		t.Fatalf("CreateBackup failed: %v", err)
	}
	txn.RecordBackup(backup)

	if err := m.MoveToVault(src, vaultPath, nil); err != nil {
		t.Fatalf("MoveToVault failed: %v", err)
	}
	txn.RecordMove(src, vaultPath)

	// Something later fails; unwind.
	if err := txn.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	checkTree(t, src)
	if _, err := os.Stat(vaultPath); !os.IsNotExist(err) {
		t.Error("Vault path still exists after rollback")
	}
	if _, err := os.Stat(backup); !os.IsNotExist(err) {
		t.Error("Backup still exists after rollback")
	}
}

func TestTxnCommitKeepsSteps(t *testing.T) {
	m := newTestManager(t)
	parent := t.TempDir()
	src := makeTree(t, parent)
	vaultPath := m.HiddenFolderPath("someid")

	txn := m.Begin()
	if err := m.MoveToVault(src, vaultPath, nil); err != nil {
		t.Fatalf("MoveToVault failed: %v", err)
	}
	txn.RecordMove(src, vaultPath)
	txn.Commit()

	// Rollback after commit is a no-op
	if err := txn.Rollback(); err != nil {
		t.Fatalf("Rollback after commit returned error: %v", err)
	}
	checkTree(t, vaultPath)
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("Committed move was undone")
	}
}

func TestTxnRollbackReportsResidue(t *testing.T) {
	m := newTestManager(t)
	parent := t.TempDir()
	src := makeTree(t, parent)
	vaultPath := m.HiddenFolderPath("someid")

	txn := m.Begin()
	if err := m.MoveToVault(src, vaultPath, nil); err != nil {
		t.Fatalf("MoveToVault failed: %v", err)
	}
	txn.RecordMove(src, vaultPath)

	// Occupy the rollback target so the reverse move must fail
	if err := os.MkdirAll(filepath.Join(src, "squatter"), 0755); err != nil {
		t.Fatalf("Failed to occupy source: %v", err)
	}

	if err := txn.Rollback(); err == nil {
		t.Error("Expected rollback error when target is occupied")
	}
}

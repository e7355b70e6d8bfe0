package storage

import (
	"errors"
	"fmt"
	"os"
)

// opKind identifies a reversible step inside a transaction.
type opKind int

const (
	opMove opKind = iota
	opBackup
)

type txnOp struct {
	kind opKind
	src  string
	dst  string
}

// Txn collects the filesystem steps of one vault operation so a failure
// partway through can be unwound. It is a best-effort batch guard, not a
// write-ahead log: rollback replays completed steps in reverse and
// reports what it could not undo.
type Txn struct {
	m        *Manager
	ops      []txnOp
	finished bool
}

// Begin starts a transaction.
func (m *Manager) Begin() *Txn {
	return &Txn{m: m}
}

// RecordMove notes a completed tree move from src to dst.
func (t *Txn) RecordMove(src, dst string) {
	t.ops = append(t.ops, txnOp{kind: opMove, src: src, dst: dst})
}

// RecordBackup notes a created snapshot.
func (t *Txn) RecordBackup(path string) {
	t.ops = append(t.ops, txnOp{kind: opBackup, dst: path})
}

// Commit keeps all recorded steps and ends the transaction.
func (t *Txn) Commit() {
	t.finished = true
	t.ops = nil
}

// Rollback undoes recorded steps in reverse order: moved trees return to
// their sources, created snapshots are removed. Steps that cannot be
// undone are collected into the returned error; the rest are still
// attempted.
func (t *Txn) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true

	var errs []error
	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		switch op.kind {
		case opMove:
			if err := t.m.moveTree(op.dst, op.src, nil); err != nil {
				errs = append(errs, fmt.Errorf("failed to move %s back to %s: %w", op.dst, op.src, err))
			}
		case opBackup:
			if err := os.RemoveAll(op.dst); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove backup %s: %w", op.dst, err))
			}
		}
	}
	t.ops = nil

	if len(errs) > 0 {
		log.Errorf("rollback left residue: %v", errs)
	}
	return errors.Join(errs...)
}

// Package storage moves folder trees in and out of the vault and keeps
// their snapshots.
//
// Each profile owns a directory with three areas: hidden_folders for the
// moved trees, backup for pre-operation snapshots, and mappings for
// encrypted identifier records. Moves prefer an atomic rename; across
// filesystems they degrade to copy, per-file SHA-256 verification, then
// source deletion, and every phase failure names its phase.
//
// Multi-step operations run inside a Txn, which records completed moves
// and snapshots so a late failure can unwind the earlier steps. Rollback
// is best effort: it replays the recorded steps in reverse and
// reports anything it could not undo, rather than pretending to be a
// write-ahead log.
//
// The package also carries the anti-forensic pieces: multi-pass file
// wiping before removal, and decoy directory generation so vault
// listings do not reveal which entries are real.
package storage

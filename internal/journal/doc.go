// Package journal provides the durable operation history for the vault.
//
// Database structure uses three buckets:
//   - events: operation history, keyed by big-endian sequence number
//   - attempts: failed authentication counts per profile
//   - meta: version and creation timestamp
//
// Retention is bounded: only the newest MaxEvents entries survive, with
// older entries pruned in the same transaction that writes a new one.
// Auth attempt counts persist across restarts so repeated failures keep
// counting even when the process is restarted between tries.
//
// BBolt provides ACID transactions, file locking, and corruption
// detection.
package journal

// Package vault orchestrates the folder lifecycle across the lower
// layers: profiles for authentication, storage for moves and snapshots,
// the engine for in-place encryption, and the metadata store and
// journal for records.
//
// Locking snapshots a folder, moves it into the vault under an
// obfuscated identifier, encrypts it and writes a sealed mapping back to
// its origin. Unlocking reverses the sequence, either temporarily, with
// the record kept and the folder registered for the next relock sweep,
// or permanently, releasing the folder from the vault. Every
// multi-step operation snapshots first and unwinds on failure, so a
// crash or a bad disk leaves the user's data recoverable from at least
// one place.
//
// Reconcile cross-checks records against disk and can repair drift that
// does not need the master key; DiffFolder shows what changed in an
// unlocked folder since it was last sealed.
package vault

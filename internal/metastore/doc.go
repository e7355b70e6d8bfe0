// Package metastore persists vault metadata as tamper-evident JSON
// documents.
//
// Two document kinds live under <root>/metadata: the profile index
// (profiles.json) and one folder document per profile
// (<profileID>/folders_metadata.json). Every document carries an
// HMAC-SHA256 tag in its hmac field, computed over the document
// serialized with that field empty.
//
// The tag key is derived from the document id plus the current hostname
// and username, and exists only in memory. A document edited by hand,
// truncated, or copied from another machine fails verification and reads
// return ErrIntegrity; no partially trusted parse escapes the store.
//
// Writes are whole-file replacements through a temp file and rename, so
// a crash leaves either the old or the new document, never a mix.
package metastore

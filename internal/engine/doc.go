// Package engine encrypts and decrypts folder contents in place.
//
// Every regular file in a folder is sealed with AES-256-GCM and replaced
// by a .enc sibling; the folder-level salt and each file's nonce go into
// a .dirvault/encryption.json sidecar inside the folder. The folder key
// is derived per pass from the caller's password and a fresh salt, so
// two locks of the same folder never share a key, and files within a
// pass never share a nonce.
//
// Both directions tolerate partial failure: files that cannot be
// processed are reported in the Result and the sidecar always reflects
// the files that remain encrypted, keeping a retry possible. Relative
// paths read back from a sidecar are validated and all I/O runs through
// an os.Root confined to the folder, so a tampered sidecar cannot reach
// outside it.
package engine

// Package crypto provides cryptographic operations for dirvault.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte keys derived from passwords via PBKDF2
//   - 12-byte random nonce per encryption operation
//   - Authenticated encryption prevents tampering
//
// Key derivation uses PBKDF2-HMAC-SHA256 with:
//   - 32-byte random salts
//   - 210,000 iterations for master/recovery keys (OWASP minimum)
//   - 100,000 iterations for folder and wrapping keys
//
// Password hashes serialize as salt_hex:hash_hex; wrapped keys as
// salt_hex:nonce_hex:ct_hex. Both forms carry their own salt so
// verification and unwrapping need only the passphrase.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto

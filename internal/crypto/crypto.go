package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize  = 32 // Salt size in bytes
	KeySize   = 32 // AES-256 key size
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM authentication tag size

	// MasterIterations is used for master and recovery key hashing and
	// derivation (OWASP minimum recommendation).
	MasterIterations = 210000

	// WrapIterations is used for per-folder file keys and key wrapping,
	// which run far more often than profile authentication.
	WrapIterations = 100000
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrMalformedWrap     = errors.New("malformed wrapped key")
)

// DeriveKey derives a 32-byte key from a password and salt.
// Identical inputs always produce identical output.
func DeriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// KDF handles key derivation from passwords
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF(iterations int) (*KDF, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	return &KDF{
		Salt:       salt,
		Iterations: iterations,
	}, nil
}

// DeriveKey derives an encryption key from a password
func (k *KDF) DeriveKey(password []byte) []byte {
	return DeriveKey(password, k.Salt, k.Iterations)
}

// HashPassword produces a serializable salted hash in salt_hex:hash_hex form.
func HashPassword(password []byte) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	hash := DeriveKey(password, salt, MasterIterations)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

// VerifyPassword recomputes the hash with the stored salt and compares in
// constant time. Malformed stored values verify as false, never panic.
func VerifyPassword(password []byte, stored string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key(password, salt, MasterIterations, len(want), sha256.New)
	return ConstantTimeCompare(got, want)
}

// Encryptor provides authenticated encryption
type Encryptor struct {
	key []byte
}

// NewEncryptor creates a new encryptor with the given key
func NewEncryptor(key []byte) *Encryptor {
	return &Encryptor{
		key: key,
	}
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return gcm, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with a fresh random nonce
// prepended to the ciphertext. Used for self-contained blobs such as
// mapping files.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateIV()
	if err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	result := make([]byte, NonceSize+len(ciphertext))
	copy(result, nonce)
	copy(result[NonceSize:], ciphertext)

	return result, nil
}

// Decrypt decrypts ciphertext produced by Encrypt
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[:NonceSize]
	ciphertext = ciphertext[NonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// SealWithNonce encrypts plaintext with a caller-supplied nonce. The nonce is
// not embedded in the output; the caller records it (per-file IV sidecars).
func (e *Encryptor) SealWithNonce(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// OpenWithNonce decrypts ciphertext produced by SealWithNonce.
func (e *Encryptor) OpenWithNonce(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidCiphertext
	}
	if len(ciphertext) < TagSize {
		return nil, ErrInvalidCiphertext
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// wrapKey derives the actual wrapping key from a passphrase-derived key,
// separating key-wrap use from password-hash use of the same passphrase.
func wrapKey(passphrase, salt []byte) ([]byte, error) {
	master := DeriveKey(passphrase, salt, WrapIterations)
	defer ClearBytes(master)

	r := hkdf.New(sha256.New, master, salt, []byte("dirvault/wrap/v1"))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive wrap key: %w", err)
	}
	return key, nil
}

// WrapKey encrypts a secret under a passphrase, producing a serializable
// salt_hex:nonce_hex:ct_hex string. Every call uses a fresh salt and nonce.
func WrapKey(secret, passphrase []byte) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}

	key, err := wrapKey(passphrase, salt)
	if err != nil {
		return "", err
	}
	defer ClearBytes(key)

	nonce, err := GenerateIV()
	if err != nil {
		return "", err
	}

	enc := NewEncryptor(key)
	ct, err := enc.SealWithNonce(nonce, secret)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct), nil
}

// UnwrapKey reverses WrapKey. A wrong passphrase or corrupted value returns
// ErrAuthFailed; a structurally invalid value returns ErrMalformedWrap.
func UnwrapKey(wrapped string, passphrase []byte) ([]byte, error) {
	parts := strings.Split(wrapped, ":")
	if len(parts) != 3 {
		return nil, ErrMalformedWrap
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil || len(salt) == 0 {
		return nil, ErrMalformedWrap
	}
	nonce, err := hex.DecodeString(parts[1])
	if err != nil || len(nonce) != NonceSize {
		return nil, ErrMalformedWrap
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, ErrMalformedWrap
	}

	key, err := wrapKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer ClearBytes(key)

	enc := NewEncryptor(key)
	return enc.OpenWithNonce(nonce, ct)
}

// GenerateSalt generates a random key-derivation salt
func GenerateSalt() ([]byte, error) {
	return GenerateRandom(SaltSize)
}

// GenerateIV generates a random GCM nonce
func GenerateIV() ([]byte, error) {
	return GenerateRandom(NonceSize)
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	copy(key, []byte("0123456789abcdef0123456789abcdef"))

	enc := NewEncryptor(key)
	plaintext := []byte("secret folder contents")

	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("Ciphertext contains plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1 := make([]byte, KeySize)
	key2 := make([]byte, KeySize)
	key2[0] = 1

	enc1 := NewEncryptor(key1)
	enc2 := NewEncryptor(key2)

	ciphertext, err := enc1.Encrypt([]byte("data"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := enc2.Decrypt(ciphertext); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptCorrupted(t *testing.T) {
	key := make([]byte, KeySize)
	enc := NewEncryptor(key)

	ciphertext, err := enc.Encrypt([]byte("data"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip one byte in the ciphertext body
	ciphertext[len(ciphertext)-1] ^= 0xff
	if _, err := enc.Decrypt(ciphertext); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed for corrupted ciphertext, got %v", err)
	}

	// Too short to contain nonce and tag
	if _, err := enc.Decrypt([]byte("short")); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestSealOpenWithNonce(t *testing.T) {
	key := make([]byte, KeySize)
	enc := NewEncryptor(key)

	nonce, err := GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV failed: %v", err)
	}

	plaintext := []byte("per-file content")
	ct, err := enc.SealWithNonce(nonce, plaintext)
	if err != nil {
		t.Fatalf("SealWithNonce failed: %v", err)
	}

	got, err := enc.OpenWithNonce(nonce, ct)
	if err != nil {
		t.Fatalf("OpenWithNonce failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Round trip mismatch: got %q, want %q", got, plaintext)
	}

	// Wrong nonce must fail authentication
	wrongNonce := make([]byte, NonceSize)
	copy(wrongNonce, nonce)
	wrongNonce[0] ^= 1
	if _, err := enc.OpenWithNonce(wrongNonce, ct); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed with wrong nonce, got %v", err)
	}

	// Bad nonce size is rejected up front
	if _, err := enc.SealWithNonce([]byte("short"), plaintext); err == nil {
		t.Error("Expected error for short nonce")
	}
}

func TestDeriveKeyDeterminism(t *testing.T) {
	password := []byte("hunter2")
	salt := bytes.Repeat([]byte{0xaa}, SaltSize)

	k1 := DeriveKey(password, salt, 1000)
	k2 := DeriveKey(password, salt, 1000)
	if !bytes.Equal(k1, k2) {
		t.Error("Same inputs produced different keys")
	}

	if bytes.Equal(k1, DeriveKey([]byte("hunter3"), salt, 1000)) {
		t.Error("Different password produced the same key")
	}

	otherSalt := bytes.Repeat([]byte{0xab}, SaltSize)
	if bytes.Equal(k1, DeriveKey(password, otherSalt, 1000)) {
		t.Error("Different salt produced the same key")
	}

	if bytes.Equal(k1, DeriveKey(password, salt, 1001)) {
		t.Error("Different iteration count produced the same key")
	}

	if len(k1) != KeySize {
		t.Errorf("Expected %d-byte key, got %d", KeySize, len(k1))
	}
}

func TestHashVerifyPassword(t *testing.T) {
	password := []byte("Secr3t!")

	stored, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	parts := strings.Split(stored, ":")
	if len(parts) != 2 {
		t.Fatalf("Expected salt:hash form, got %q", stored)
	}

	if !VerifyPassword(password, stored) {
		t.Error("Correct password did not verify")
	}
	if VerifyPassword([]byte("wrong"), stored) {
		t.Error("Wrong password verified")
	}
	if VerifyPassword(password, "not-a-hash") {
		t.Error("Malformed stored value verified")
	}
	if VerifyPassword(password, "zz:zz") {
		t.Error("Non-hex stored value verified")
	}

	// Same password hashes differently each time (fresh salt)
	stored2, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if stored == stored2 {
		t.Error("Two hashes of the same password are identical")
	}
}

func TestWrapUnwrapKey(t *testing.T) {
	secret := []byte("the-master-key")
	passphrase := []byte("RECO-VERY-KEYS")

	wrapped, err := WrapKey(secret, passphrase)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if parts := strings.Split(wrapped, ":"); len(parts) != 3 {
		t.Fatalf("Expected salt:nonce:ct form, got %q", wrapped)
	}

	got, err := UnwrapKey(wrapped, passphrase)
	if err != nil {
		t.Fatalf("UnwrapKey failed: %v", err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("Round trip mismatch: got %q, want %q", got, secret)
	}

	if _, err := UnwrapKey(wrapped, []byte("wrong")); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
	if _, err := UnwrapKey("a:b", passphrase); !errors.Is(err, ErrMalformedWrap) {
		t.Errorf("Expected ErrMalformedWrap, got %v", err)
	}

	// Wrapping the same secret twice yields distinct envelopes
	wrapped2, err := WrapKey(secret, passphrase)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if wrapped == wrapped2 {
		t.Error("Two wraps of the same secret are identical")
	}
}

func TestGenerateUniqueness(t *testing.T) {
	const n = 1000

	salts := make(map[string]bool, n)
	ivs := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		salt, err := GenerateSalt()
		if err != nil {
			t.Fatalf("GenerateSalt failed: %v", err)
		}
		if len(salt) != SaltSize {
			t.Fatalf("Expected %d-byte salt, got %d", SaltSize, len(salt))
		}
		salts[string(salt)] = true

		iv, err := GenerateIV()
		if err != nil {
			t.Fatalf("GenerateIV failed: %v", err)
		}
		if len(iv) != NonceSize {
			t.Fatalf("Expected %d-byte IV, got %d", NonceSize, len(iv))
		}
		ivs[string(iv)] = true
	}

	if len(salts) != n {
		t.Errorf("Expected %d distinct salts, got %d", n, len(salts))
	}
	if len(ivs) != n {
		t.Errorf("Expected %d distinct IVs, got %d", n, len(ivs))
	}
}

func TestClearBytes(t *testing.T) {
	data := []byte("sensitive")
	ClearBytes(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("Byte %d not cleared: %d", i, b)
		}
	}
}

func TestConstantTimeCompare(t *testing.T) {
	if !ConstantTimeCompare([]byte("abc"), []byte("abc")) {
		t.Error("Equal slices compared unequal")
	}
	if ConstantTimeCompare([]byte("abc"), []byte("abd")) {
		t.Error("Different slices compared equal")
	}
	if ConstantTimeCompare([]byte("abc"), []byte("abcd")) {
		t.Error("Different lengths compared equal")
	}
}

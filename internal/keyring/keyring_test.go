package keyring

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestMasterKeyRoundTrip(t *testing.T) {
	keyring.MockInit()

	const pid = "profile_1700000000000_0042"
	key := []byte("vault-master-key")

	if HasMasterKey(pid) {
		t.Fatal("Fresh keyring should not hold a key")
	}
	if _, err := GetMasterKey(pid); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := SaveMasterKey(pid, key); err != nil {
		t.Fatalf("SaveMasterKey failed: %v", err)
	}
	if !HasMasterKey(pid) {
		t.Error("Stored key not reported")
	}
	got, err := GetMasterKey(pid)
	if err != nil {
		t.Fatalf("GetMasterKey failed: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Errorf("Key mismatch: got %q", got)
	}

	if err := DeleteMasterKey(pid); err != nil {
		t.Fatalf("DeleteMasterKey failed: %v", err)
	}
	if HasMasterKey(pid) {
		t.Error("Deleted key still reported")
	}
	if err := DeleteMasterKey(pid); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

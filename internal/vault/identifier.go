package vault

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/storage"
)

// identifierRe matches the vault directory names derived below. Reconcile
// uses it to tell real vault entries apart from decoy directories.
var identifierRe = regexp.MustCompile(`^[0-9a-f]{8}(-[0-9a-f]{8}){3}$`)

// obfuscatedIdentifier derives the on-disk name for a locked folder.
// Three chained SHA-256 rounds over the original path, a random salt, the
// current time and the profile id, rendered as four hex groups of eight.
// The name carries no recoverable information about the original path.
func obfuscatedIdentifier(path, profileID string) (string, error) {
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return "", err
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))

	input := make([]byte, 0, len(path)+len(salt)+len(ts)+len(profileID))
	input = append(input, path...)
	input = append(input, salt...)
	input = append(input, ts[:]...)
	input = append(input, profileID...)

	sum := sha256.Sum256(input)
	for i := 0; i < 2; i++ {
		sum = sha256.Sum256(sum[:])
	}

	hexStr := fmt.Sprintf("%x", sum[:16])
	return fmt.Sprintf("%s-%s-%s-%s", hexStr[0:8], hexStr[8:16], hexStr[16:24], hexStr[24:32]), nil
}

// mapping is the encrypted identifier record: the redundant copy of a
// locked folder's origin, sealed under the master key next to the folder
// itself. It survives even if the metadata documents are lost.
type mapping struct {
	FolderID     string    `json:"folder_id"`
	OriginalPath string    `json:"original_path"`
	Created      time.Time `json:"created"`
}

func writeMapping(path string, m mapping, key []byte) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	wrapped, err := crypto.WrapKey(data, key)
	if err != nil {
		return fmt.Errorf("failed to seal mapping: %w", err)
	}
	return storage.ReplaceFile(path, []byte(wrapped), 0600)
}

func readMapping(path string, key []byte) (*mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	plain, err := crypto.UnwrapKey(string(data), key)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping: %w", err)
	}
	defer crypto.ClearBytes(plain)

	var m mapping
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("corrupt mapping: %w", err)
	}
	return &m, nil
}

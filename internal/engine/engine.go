package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/security"
)

const (
	// EncSuffix marks encrypted file bodies.
	EncSuffix = ".enc"

	// SidecarDirName is the in-folder directory holding encryption
	// state while a folder is sealed.
	SidecarDirName = ".dirvault"

	sidecarName = "encryption.json"
)

var (
	ErrAlreadyEncrypted = errors.New("folder already encrypted")
	ErrNotEncrypted     = errors.New("folder is not encrypted")
	ErrNotDirectory     = errors.New("not a directory")
)

// ProgressFunc reports per-file progress. A nil ProgressFunc disables
// reporting.
type ProgressFunc func(name string, processed, total int)

// Result aggregates the outcome of one folder pass. Failed files are
// reported, not retried; the caller decides whether a partial result is
// acceptable.
type Result struct {
	Total       int
	Processed   int
	FailedCount int
	Errors      []error
}

func (r *Result) fail(name string, err error) {
	r.FailedCount++
	r.Errors = append(r.Errors, fmt.Errorf("%s: %w", name, err))
}

// sidecar is the per-folder encryption record: the key-derivation salt
// and the nonce for every encrypted file, keyed by slash-separated
// relative path.
type sidecar struct {
	Version int               `json:"version"`
	Salt    string            `json:"salt"`
	Files   map[string]string `json:"files"`
}

func sidecarPath() string {
	return SidecarDirName + "/" + sidecarName
}

// EncryptFolder encrypts every regular file under path in place: each
// file body is sealed with AES-GCM and replaced by a .enc sibling, and
// the salt and per-file nonces land in the folder's sidecar. A fresh
// salt is drawn on every call, so re-locking with the same password
// still yields a new key.
//
// Per-file failures are collected into the Result rather than aborting
// the pass; the sidecar records exactly the files that succeeded. The
// context is checked between files, never mid-file.
func EncryptFolder(ctx context.Context, path string, password []byte, progress ProgressFunc) (*Result, error) {
	pv, err := openFolder(path)
	if err != nil {
		return nil, err
	}
	defer pv.Close()

	if _, err := pv.StatInRoot(sidecarPath()); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyEncrypted, path)
	}

	files, err := enumeratePlainFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate folder: %w", err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	key := crypto.DeriveKey(password, salt, crypto.WrapIterations)
	defer crypto.ClearBytes(key)
	enc := crypto.NewEncryptor(key)

	sc := &sidecar{
		Version: 1,
		Salt:    hex.EncodeToString(salt),
		Files:   make(map[string]string, len(files)),
	}
	result := &Result{Total: len(files)}

	var ctxErr error
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		if err := encryptFile(pv, enc, rel, sc); err != nil {
			result.fail(rel, err)
			continue
		}
		result.Processed++
		if progress != nil {
			progress(rel, result.Processed, result.Total)
		}
	}

	// The sidecar must land even on a partial pass, or the files already
	// sealed would be unrecoverable.
	if err := writeSidecar(pv, sc); err != nil {
		return result, fmt.Errorf("failed to write encryption sidecar: %w", err)
	}
	if ctxErr != nil {
		return result, ctxErr
	}

	log.Debugf("encrypted %d/%d files in %s", result.Processed, result.Total, path)
	return result, nil
}

func encryptFile(pv *security.PathValidator, enc *crypto.Encryptor, rel string, sc *sidecar) error {
	plaintext, err := pv.ReadFileInRoot(rel)
	if err != nil {
		return fmt.Errorf("failed to read: %w", err)
	}
	defer crypto.ClearBytes(plaintext)

	nonce, err := crypto.GenerateIV()
	if err != nil {
		return err
	}
	ct, err := enc.SealWithNonce(nonce, plaintext)
	if err != nil {
		return err
	}
	if err := pv.WriteFileInRoot(rel+EncSuffix, ct, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted body: %w", err)
	}
	if err := pv.RemoveInRoot(rel); err != nil {
		// The encrypted body exists; keep its nonce so decryption can
		// still win over the leftover plaintext.
		sc.Files[rel] = hex.EncodeToString(nonce)
		return fmt.Errorf("failed to remove plaintext: %w", err)
	}
	sc.Files[rel] = hex.EncodeToString(nonce)
	return nil
}

// DecryptFolder reverses EncryptFolder using the folder's sidecar. A
// wrong password shows up as per-file authentication failures, not a
// panic or a half-written tree. The sidecar disappears only when every
// recorded file decrypted, so a failed pass can be retried.
func DecryptFolder(ctx context.Context, path string, password []byte, progress ProgressFunc) (*Result, error) {
	pv, err := openFolder(path)
	if err != nil {
		return nil, err
	}
	defer pv.Close()

	sc, err := readSidecar(pv)
	if err != nil {
		return nil, err
	}

	salt, err := hex.DecodeString(sc.Salt)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: bad salt", ErrNotEncrypted)
	}
	key := crypto.DeriveKey(password, salt, crypto.WrapIterations)
	defer crypto.ClearBytes(key)
	enc := crypto.NewEncryptor(key)

	// Deterministic order for progress and error reporting
	names := make([]string, 0, len(sc.Files))
	for rel := range sc.Files {
		names = append(names, rel)
	}
	sort.Strings(names)

	result := &Result{Total: len(names)}
	remaining := make(map[string]string, len(sc.Files))

	var ctxErr error
	for i, rel := range names {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			// Untouched files stay recorded for the retry
			for _, left := range names[i:] {
				remaining[left] = sc.Files[left]
			}
			break
		}
		if err := decryptFile(pv, enc, rel, sc.Files[rel]); err != nil {
			result.fail(rel, err)
			remaining[rel] = sc.Files[rel]
			continue
		}
		result.Processed++
		if progress != nil {
			progress(rel, result.Processed, result.Total)
		}
	}

	if len(remaining) == 0 {
		if err := removeSidecar(pv); err != nil {
			return result, fmt.Errorf("failed to remove encryption sidecar: %w", err)
		}
	} else {
		sc.Files = remaining
		if err := writeSidecar(pv, sc); err != nil {
			return result, fmt.Errorf("failed to update encryption sidecar: %w", err)
		}
	}
	if ctxErr != nil {
		return result, ctxErr
	}

	log.Debugf("decrypted %d/%d files in %s", result.Processed, result.Total, path)
	return result, nil
}

func decryptFile(pv *security.PathValidator, enc *crypto.Encryptor, rel, nonceHex string) error {
	// A tampered sidecar must not direct writes outside the folder
	if _, err := pv.ValidateExistingPath(rel); err != nil {
		return err
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return fmt.Errorf("bad nonce record: %w", err)
	}

	ct, err := pv.ReadFileInRoot(rel + EncSuffix)
	if err != nil {
		// Already decrypted in an earlier partial pass
		if _, statErr := pv.StatInRoot(rel); statErr == nil {
			return nil
		}
		return fmt.Errorf("failed to read encrypted body: %w", err)
	}

	plaintext, err := enc.OpenWithNonce(nonce, ct)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(plaintext)

	if err := pv.WriteFileInRoot(rel, plaintext, 0600); err != nil {
		return fmt.Errorf("failed to write plaintext: %w", err)
	}
	if err := pv.RemoveInRoot(rel + EncSuffix); err != nil {
		return fmt.Errorf("failed to remove encrypted body: %w", err)
	}
	return nil
}

// IsFolderEncrypted reports whether a folder carries a sidecar or any
// encrypted file bodies.
func IsFolderEncrypted(path string) bool {
	if _, err := os.Stat(filepath.Join(path, SidecarDirName, sidecarName)); err == nil {
		return true
	}
	found := false
	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == SidecarDirName {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), EncSuffix) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

func openFolder(path string) (*security.PathValidator, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return security.New(path)
}

// enumeratePlainFiles lists the regular files to encrypt, as sorted
// slash-relative paths. Encrypted bodies and the sidecar area are
// excluded; symlinks and special files travel with the folder untouched.
func enumeratePlainFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == SidecarDirName {
				return fs.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || strings.HasSuffix(d.Name(), EncSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func readSidecar(pv *security.PathValidator) (*sidecar, error) {
	data, err := pv.ReadFileInRoot(sidecarPath())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEncrypted, err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("corrupt encryption sidecar: %w", err)
	}
	if sc.Files == nil {
		sc.Files = make(map[string]string)
	}
	return &sc, nil
}

func writeSidecar(pv *security.PathValidator, sc *sidecar) error {
	if err := pv.MkdirAllInRoot(SidecarDirName, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	return pv.WriteFileInRoot(sidecarPath(), data, 0600)
}

func removeSidecar(pv *security.PathValidator) error {
	if err := pv.RemoveInRoot(sidecarPath()); err != nil {
		return err
	}
	// The directory holds only the sidecar; leftover means something
	// else moved in, which is fine to keep.
	pv.RemoveInRoot(SidecarDirName)
	return nil
}

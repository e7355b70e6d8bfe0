package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const wipePasses = 3

// SecureRemoveTree overwrites every regular file under path with random
// data before removing the tree. Files that cannot be wiped are still
// removed; wiping is hardening, not a guarantee against forensics on
// journaling or copy-on-write filesystems.
func SecureRemoveTree(path string) error {
	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if err := secureWipeFile(p, info.Size()); err != nil {
			log.Warnf("failed to wipe %s: %v", p, err)
		}
		return nil
	})
	return os.RemoveAll(path)
}

// secureWipeFile overwrites a file's contents in place with several
// passes of random data, syncing after each pass.
func secureWipeFile(path string, size int64) error {
	if size == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	for pass := 0; pass < wipePasses; pass++ {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		remaining := size
		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			if _, err := rand.Read(buf[:n]); err != nil {
				return err
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return err
			}
			remaining -= n
		}
		if err := f.Sync(); err != nil {
			return err
		}
	}
	return nil
}

var decoyPrefixes = []string{"cache", "tmp", "data", "index", "sys"}

// CreateDecoys populates dir with n decoy directories holding junk
// files with randomized timestamps, so a vault listing does not reveal
// which entries are real. Best effort; the first failure stops the rest
// but is not fatal to the caller's operation.
func CreateDecoys(dir string, n int) error {
	for i := 0; i < n; i++ {
		if err := createDecoy(dir); err != nil {
			return err
		}
	}
	return nil
}

func createDecoy(dir string) error {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return err
	}
	prefix := decoyPrefixes[randInt(len(decoyPrefixes))]
	path := filepath.Join(dir, fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(suffix)))
	if err := os.MkdirAll(path, 0700); err != nil {
		return err
	}

	files := 2 + randInt(3)
	for i := 0; i < files; i++ {
		junk := make([]byte, 512+randInt(3584))
		if _, err := rand.Read(junk); err != nil {
			return err
		}
		name := filepath.Join(path, fmt.Sprintf("%04d.dat", randInt(10000)))
		if err := os.WriteFile(name, junk, 0600); err != nil {
			return err
		}
		backdate(name)
	}
	backdate(path)
	return nil
}

// backdate pushes an entry's timestamps to a random moment between one
// hour and one year ago. Errors are ignored; timestamps are cosmetic
// here.
func backdate(path string) {
	age := time.Duration(1+randInt(365*24-1)) * time.Hour
	when := time.Now().Add(-age)
	os.Chtimes(path, when, when)
}

// randInt returns a uniform value in [0, n) from the system CSPRNG.
func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/live-labs/dirvault/internal/engine"
)

const (
	binarySampleSize   = 8192 // bytes sampled for text/binary detection
	binaryThresholdPct = 10   // max % non-printable bytes for text files
)

var (
	ErrFolderLocked = errors.New("folder is locked")
	ErrNoBackup     = errors.New("no snapshot to compare against")
)

// DiffFolder shows what changed in a temporarily unlocked folder since it
// was last locked, comparing the live tree against the newest pre-lock
// snapshot. Per-file problems are reported inline and do not stop the
// walk.
func (v *Vault) DiffFolder(ctx context.Context, profileID, folderID string, masterKey []byte, w io.Writer) error {
	if err := v.profiles.VerifyMasterKey(profileID, masterKey); err != nil {
		return err
	}
	f, err := v.store.GetFolder(profileID, folderID)
	if err != nil {
		return err
	}
	if f.IsLocked {
		return fmt.Errorf("%w: %s", ErrFolderLocked, f.FolderName)
	}
	be := f.NewestBackup(labelPreLock)
	if be == nil {
		return fmt.Errorf("%w: %s", ErrNoBackup, f.FolderName)
	}

	snapshot, err := collectFiles(be.Path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	live, err := collectFiles(f.OriginalPath)
	if err != nil {
		return fmt.Errorf("failed to read folder: %w", err)
	}

	names := make([]string, 0, len(snapshot)+len(live))
	seen := make(map[string]bool, len(snapshot))
	for rel := range snapshot {
		names = append(names, rel)
		seen[rel] = true
	}
	for rel := range live {
		if !seen[rel] {
			names = append(names, rel)
		}
	}
	sort.Strings(names)

	hasChanges := false
	for _, rel := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		oldPath, inSnapshot := snapshot[rel]
		newPath, inLive := live[rel]

		switch {
		case !inLive:
			fmt.Fprintf(w, "File removed: %s\n", rel)
			hasChanges = true
			continue
		case !inSnapshot:
			fmt.Fprintf(w, "File added: %s\n", rel)
			hasChanges = true
			continue
		}

		oldData, err := os.ReadFile(oldPath)
		if err != nil {
			fmt.Fprintf(w, "error: cannot read snapshot of %s: %v\n", rel, err)
			continue
		}
		newData, err := os.ReadFile(newPath)
		if err != nil {
			fmt.Fprintf(w, "error: cannot read %s: %v\n", rel, err)
			continue
		}

		diff := unifiedDiff(rel, oldData, newData)
		if diff != "" {
			io.WriteString(w, diff)
			hasChanges = true
		}
	}

	if !hasChanges {
		fmt.Fprintln(w, "No changes detected")
	}
	return nil
}

// collectFiles maps slash-relative names to absolute paths for every
// regular file under root, skipping encryption residue.
func collectFiles(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == engine.SidecarDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasSuffix(d.Name(), engine.EncSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// isTextData reports whether data looks like text. Null bytes, invalid
// UTF-8 or too many control characters in the leading sample mean
// binary.
func isTextData(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data
	if len(sample) > binarySampleSize {
		sample = sample[:binarySampleSize]
	}
	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
		if b == 127 {
			nonPrintable++
		}
	}
	return nonPrintable <= len(sample)*binaryThresholdPct/100
}

func sameContent(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return bytes.Equal(ha[:], hb[:])
}

// unifiedDiff renders the change from oldData to newData as a unified
// diff, or a one-line notice for binary files. Empty when identical.
func unifiedDiff(path string, oldData, newData []byte) string {
	if sameContent(oldData, newData) {
		return ""
	}
	if !isTextData(oldData) || !isTextData(newData) {
		return fmt.Sprintf("Binary file %s has changed\n", path)
	}

	dmp := diffmatchpatch.New()
	oldStr, newStr := string(oldData), string(newData)

	// Line-mode diff for readable output on large files.
	a, b, lineArray := dmp.DiffLinesToChars(oldStr, newStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(oldStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- a/%s\n", path))
	result.WriteString(fmt.Sprintf("+++ b/%s\n", path))
	result.WriteString(dmp.PatchToText(patches))
	return result.String()
}

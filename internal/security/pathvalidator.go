package security

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes confined root")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator provides path validation and file operations confined to a
// single directory tree using Go 1.24's os.Root API. The vault uses one
// validator per tree it touches: the vault root itself, and each folder
// being encrypted or decrypted. Relative paths recorded in metadata pass
// through here before any filesystem access, so a tampered metadata file
// cannot direct writes outside the tree.
type PathValidator struct {
	root     *os.Root
	basePath string
}

// New creates a PathValidator for the tree rooted at the given path. All
// file operations through the validator stay within that tree, even when
// a path contains .. or resolves through a symlink.
func New(rootPath string) (*PathValidator, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open root: %w", err)
	}

	return &PathValidator{
		root:     root,
		basePath: absPath,
	}, nil
}

// Close releases resources held by the PathValidator.
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// BasePath returns the absolute path of the confined root.
func (pv *PathValidator) BasePath() string {
	return pv.basePath
}

// ValidateAndNormalize validates a user-provided path and returns a
// normalized relative path suitable for storage. It rejects:
// - Empty paths
// - Absolute paths
// - Paths that escape the root (using ..)
// - Windows reserved names (CON, NUL, etc.)
// - Paths that are not local (using filepath.IsLocal)
func (pv *PathValidator) ValidateAndNormalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	cleanPath := filepath.Clean(userPath)
	if !filepath.IsLocal(cleanPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, cleanPath)
	}

	absPath := filepath.Join(pv.basePath, cleanPath)
	relPath, err := filepath.Rel(pv.basePath, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	// Forward slashes for storage (platform-independent)
	return filepath.ToSlash(relPath), nil
}

// ValidateExistingPath validates a path that was previously recorded in
// vault metadata. Used during decryption so a tampered sidecar cannot
// direct output outside the folder being restored.
func (pv *PathValidator) ValidateExistingPath(storedPath string) (string, error) {
	platformPath := filepath.FromSlash(storedPath)
	return pv.ValidateAndNormalize(platformPath)
}

// WriteFileInRoot writes a file within the confined tree. The path must be
// relative; it is validated before any filesystem access.
func (pv *PathValidator) WriteFileInRoot(path string, data []byte, perm os.FileMode) error {
	platformPath := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(platformPath); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	f, err := pv.root.OpenFile(platformPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MkdirAllInRoot creates a directory and any missing parents within the
// confined tree.
func (pv *PathValidator) MkdirAllInRoot(path string, perm os.FileMode) error {
	platformPath := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(platformPath); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	// os.Root.Mkdir creates a single level, so walk the segments.
	segments := strings.Split(filepath.ToSlash(filepath.Clean(platformPath)), "/")
	current := ""
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}
		if current == "" {
			current = seg
		} else {
			current = current + "/" + seg
		}
		if err := pv.root.Mkdir(current, perm); err != nil && !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	return nil
}

// ReadFileInRoot reads a file within the confined tree.
func (pv *PathValidator) ReadFileInRoot(path string) ([]byte, error) {
	platformPath := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(platformPath); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	f, err := pv.root.Open(platformPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// RemoveInRoot removes a file or empty directory within the confined tree.
func (pv *PathValidator) RemoveInRoot(path string) error {
	platformPath := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(platformPath); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Remove(platformPath)
}

// StatInRoot stats a file within the confined tree.
func (pv *PathValidator) StatInRoot(path string) (os.FileInfo, error) {
	platformPath := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(platformPath); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Stat(platformPath)
}

// LstatInRoot stats a file within the confined tree without following a
// trailing symlink.
func (pv *PathValidator) LstatInRoot(path string) (os.FileInfo, error) {
	platformPath := filepath.FromSlash(path)
	if _, err := pv.ValidateAndNormalize(platformPath); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Lstat(platformPath)
}

// Package platform isolates the OS-specific pieces of folder hiding:
// hidden/system attributes, extended attribute scrubbing, and privilege
// checks. The rest of the vault depends only on the FileOps interface,
// selected once at startup.
package platform

// FileOps is the platform-specific surface the vault depends on. New
// selects the implementation for the running OS at build time; tests
// substitute Noop.
type FileOps interface {
	// HideDirectory marks a directory hidden in the platform's own
	// way. On POSIX the dot-prefix convention already applies to the
	// vault root, so this is a no-op there.
	HideDirectory(path string) error

	// UnhideDirectory reverses HideDirectory and SetSecureAttributes.
	UnhideDirectory(path string) error

	// SetSecureAttributes tightens a vault entry after locking: owner-only
	// permissions on POSIX, hidden+system+unindexed attributes on Windows.
	SetSecureAttributes(path string) error

	// ScrubRevealingAttributes strips platform metadata (extended
	// attributes, alternate data streams) from the tree at path that
	// could reveal a folder's original name or origin. Best effort:
	// entries that cannot be scrubbed are skipped.
	ScrubRevealingAttributes(path string) error

	// IsElevated reports whether the process runs with administrative
	// privileges.
	IsElevated() bool
}

// New returns the FileOps implementation for the running platform.
func New() FileOps { return newFileOps() }

// Noop is a FileOps that does nothing and reports elevation. Used in tests.
type Noop struct{}

func (Noop) HideDirectory(string) error            { return nil }
func (Noop) UnhideDirectory(string) error          { return nil }
func (Noop) SetSecureAttributes(string) error      { return nil }
func (Noop) ScrubRevealingAttributes(string) error { return nil }
func (Noop) IsElevated() bool                      { return true }

//go:build windows

package platform

import (
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

const secureAttrs = windows.FILE_ATTRIBUTE_HIDDEN |
	windows.FILE_ATTRIBUTE_SYSTEM |
	windows.FILE_ATTRIBUTE_NOT_CONTENT_INDEXED

type windowsOps struct{}

func newFileOps() FileOps { return windowsOps{} }

func setAttrs(path string, set, clear uint32) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, attrs&^clear|set)
}

func (windowsOps) HideDirectory(path string) error {
	return setAttrs(path, windows.FILE_ATTRIBUTE_HIDDEN, 0)
}

func (windowsOps) UnhideDirectory(path string) error {
	return setAttrs(path, 0, uint32(secureAttrs))
}

func (windowsOps) SetSecureAttributes(path string) error {
	return setAttrs(path, uint32(secureAttrs), 0)
}

// ScrubRevealingAttributes drops Zone.Identifier alternate data streams,
// which record the download origin of files. Best effort.
func (windowsOps) ScrubRevealingAttributes(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		os.Remove(p + ":Zone.Identifier")
		return nil
	})
}

func (windowsOps) IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// DisableCoreDumps is a no-op on Windows.
func DisableCoreDumps() error { return nil }

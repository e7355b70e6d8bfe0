//go:build unix

package platform

import (
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type posixOps struct{}

func newFileOps() FileOps { return posixOps{} }

func (posixOps) HideDirectory(string) error { return nil }

func (posixOps) UnhideDirectory(path string) error {
	return os.Chmod(path, 0755)
}

func (posixOps) SetSecureAttributes(path string) error {
	return os.Chmod(path, 0700)
}

func (posixOps) ScrubRevealingAttributes(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		scrubXattrs(p)
		return nil
	})
}

func (posixOps) IsElevated() bool { return os.Geteuid() == 0 }

// DisableCoreDumps prevents key material from landing in a core file.
// Called once at startup.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}

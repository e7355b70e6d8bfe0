//go:build linux || darwin

package platform

import (
	"strings"

	"golang.org/x/sys/unix"
)

// scrubXattrs removes user-namespace extended attributes from a single
// filesystem entry. Desktop tools record origin metadata there
// (user.xdg.origin.url and similar) which would name where a locked
// folder came from. Errors are ignored; scrubbing is best effort.
func scrubXattrs(path string) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil || size <= 0 {
		return
	}
	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return
	}
	for _, attr := range strings.Split(strings.TrimRight(string(buf[:n]), "\x00"), "\x00") {
		if strings.HasPrefix(attr, "user.") {
			unix.Lremovexattr(path, attr)
		}
	}
}

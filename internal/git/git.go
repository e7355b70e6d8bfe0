package git

import (
	"os/exec"
	"path/filepath"
	"strings"
)

// Exposure describes an unlocked folder a git repository could pick up.
type Exposure struct {
	Path    string
	Tracked bool // contents already tracked by the repository
}

// IsRepo checks if dir is inside a git work tree.
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run() == nil
}

// IsTracked checks if path has tracked files under it.
func IsTracked(dir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if path is matched by an ignore rule (handles all
// .gitignore files).
func IsIgnored(dir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = dir

	// git check-ignore returns exit code 0 if path is ignored
	return cmd.Run() == nil
}

// CheckExposure inspects an unlocked folder at path. It returns nil
// when the folder is outside any git work tree or covered by an ignore
// rule.
func CheckExposure(path string) *Exposure {
	dir := filepath.Dir(path)
	if !IsRepo(dir) {
		return nil
	}
	if IsIgnored(dir, path) {
		return nil
	}
	return &Exposure{
		Path:    path,
		Tracked: IsTracked(dir, path),
	}
}

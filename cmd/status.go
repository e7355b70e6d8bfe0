package cmd

import (
	"fmt"
	"time"

	"github.com/live-labs/dirvault/internal/git"
)

// Status shows a profile and its folders. No password is required.
func Status(opts Options) {
	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	st, err := v.Status(prof.ID)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Profile %q (%s)\n", st.ProfileName, st.ProfileID)
	fmt.Printf("  created:     %s\n", st.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  last access: %s\n", st.LastAccess.Format(time.RFC3339))
	if st.AuthFailures > 0 {
		fmt.Printf("  failed attempts: %d\n", st.AuthFailures)
	}

	fmt.Println()
	fmt.Println("Folders:")
	if len(st.Folders) == 0 {
		fmt.Println("  (none)")
		fmt.Println("Run 'dirvault lock <folder>' to add one")
		return
	}
	for _, f := range st.Folders {
		state := "locked"
		if !f.IsLocked {
			state = "unlocked, " + f.Mode.String()
		}
		fmt.Printf("  %s (%s)\n", f.OriginalPath, state)
		fmt.Printf("    id: %s  snapshots: %d\n", f.ID, f.Backups)

		// Unlocked plaintext inside a git work tree can end up committed
		if !f.IsLocked {
			if exp := git.CheckExposure(f.OriginalPath); exp != nil {
				if exp.Tracked {
					fmt.Printf("    warning: tracked by a git repository (run: git rm -r --cached %s)\n", f.OriginalPath)
				} else {
					fmt.Println("    warning: inside a git repository and not in .gitignore")
				}
			}
		}
	}

	fmt.Printf("\n%d of %d folders locked\n", st.LockedCount, len(st.Folders))
}

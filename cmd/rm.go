package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
)

// Remove deletes folder records from the vault. A locked folder's
// encrypted tree and snapshots are destroyed with the record.
func Remove(ctx context.Context, opts Options, force bool, ids []string) {
	if len(ids) == 0 {
		fmt.Fprintf(os.Stderr, "Error: rm requires at least one folder id\n")
		fmt.Fprintf(os.Stderr, "Usage: dirvault rm <id> [id...]\n")
		os.Exit(1)
	}

	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	// Get password once for all folders
	password, _, err := GetPasswordWithRetry("Enter master password: ", prof.ID, func(key []byte) error {
		return v.Profiles().VerifyMasterKey(prof.ID, key)
	})
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	failed := 0
	for _, id := range ids {
		rec, err := v.Store().GetFolder(prof.ID, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", id, err)
			failed++
			continue
		}

		if !force {
			question := fmt.Sprintf("Remove %q and its snapshots? The data cannot be recovered", rec.FolderName)
			if !rec.IsLocked {
				question = fmt.Sprintf("Forget %q? The unlocked folder stays on disk", rec.FolderName)
			}
			if !Confirm(question) {
				fmt.Println("Cancelled")
				continue
			}
		}

		if err := v.RemoveFolder(ctx, prof.ID, id, password); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", id, err)
			failed++
			continue
		}
		fmt.Printf("removed %s (%s)\n", rec.FolderName, id)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

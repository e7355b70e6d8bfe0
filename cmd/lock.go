package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
)

// Lock seals one or more folders into the vault.
func Lock(ctx context.Context, opts Options, dirs []string) {
	if len(dirs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no folders given")
		fmt.Fprintln(os.Stderr, "Usage: dirvault lock <folder> [<folder>...]")
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
	for _, dir := range dirs {
		id, err := v.LockFolder(ctx, prof.ID, dir, password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", dir, err)
			failed++
			continue
		}
		fmt.Printf("locked %s (%s)\n", dir, id)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d folder(s) could not be locked\n", failed)
		os.Exit(1)
	}
}

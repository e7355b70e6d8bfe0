package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
)

// Diff shows what changed in an unlocked folder since it was last
// sealed.
func Diff(ctx context.Context, opts Options, folderID string) {
	if folderID == "" {
		fmt.Fprintln(os.Stderr, "Error: diff requires a folder id")
		fmt.Fprintln(os.Stderr, "Usage: dirvault diff <id>")
		os.Exit(1)
	}

	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	password, _, err := GetPasswordWithRetry("Enter master password: ", prof.ID, func(key []byte) error {
		return v.Profiles().VerifyMasterKey(prof.ID, key)
	})
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if err := v.DiffFolder(ctx, prof.ID, folderID, password, os.Stdout); err != nil {
		HandleError(err)
	}
}

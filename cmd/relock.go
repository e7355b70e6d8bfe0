package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
)

// Relock seals every temporarily unlocked folder back into the vault.
func Relock(ctx context.Context, opts Options) {
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

	result, err := v.RelockTemporaryFolders(ctx, prof.ID, password)
	if err != nil {
		HandleError(err)
	}

	if result.RelockedCount == 0 && result.FailedCount == 0 {
		fmt.Println("No unlocked folders")
		return
	}

	if result.RelockedCount > 0 {
		fmt.Printf("relocked: %d folders\n", result.RelockedCount)
	}
	if result.FailedCount > 0 {
		fmt.Printf("error: %d errors occurred\n", result.FailedCount)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
		os.Exit(1)
	}
}

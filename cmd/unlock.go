package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/metastore"
)

// Unlock restores folders from the vault to their original locations.
// Without folder IDs it unlocks every locked folder of the profile.
func Unlock(ctx context.Context, opts Options, permanent bool, ids []string) {
	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	// Get password with retry on stale keyring
	password, source, err := GetPasswordWithRetry("Enter master password: ", prof.ID, func(key []byte) error {
		return v.Profiles().VerifyMasterKey(prof.ID, key)
	})
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	mode := metastore.UnlockTemporary
	if permanent {
		mode = metastore.UnlockPermanent
	}

	result, err := v.UnlockFolders(ctx, prof.ID, password, mode, ids...)
	if err != nil {
		HandleError(err)
	}

	// Print summary
	fmt.Printf("\n")
	if result.SuccessCount > 0 {
		fmt.Printf("unlocked: %d folders\n", result.SuccessCount)
	}
	if result.FailedCount > 0 {
		fmt.Printf("error: %d errors occurred\n", result.FailedCount)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
	}
	if !permanent && result.SuccessCount > 0 {
		fmt.Println("Run 'dirvault relock' when you are done.")
	}

	// Offer to save password if it was entered manually
	if source == SourcePrompt {
		OfferToSavePassword(prof.ID, password)
	}
}

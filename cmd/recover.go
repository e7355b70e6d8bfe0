package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/live-labs/dirvault/internal/crypto"
)

// Recover unlocks a profile's folders with the recovery key instead of
// the master password.
func Recover(ctx context.Context, opts Options) {
	v := OpenVault(opts)
	defer v.Close()

	// The key identifies the profile on its own. An explicit --profile
	// restricts which profile it may resolve to.
	profileID := ""
	if opts.Profile != "" {
		profileID = ResolveProfile(v, opts.Profile).ID
	}

	keyBytes, err := ReadPassword("Enter recovery key: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	recoveryKey := strings.TrimSpace(string(keyBytes))
	crypto.ClearBytes(keyBytes)

	resolvedID, result, err := v.UnlockWithRecoveryKey(ctx, profileID, recoveryKey)
	if err != nil {
		HandleError(err)
	}

	prof, err := v.Store().GetProfile(resolvedID)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Recovered profile %q (%s)\n", prof.Name, prof.ID)
	if result.SuccessCount > 0 {
		fmt.Printf("unlocked: %d folders\n", result.SuccessCount)
	}
	if result.FailedCount > 0 {
		fmt.Printf("error: %d errors occurred\n", result.FailedCount)
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
	}
	fmt.Println()
	fmt.Println("Set a new master password now with 'dirvault passwd'.")
}

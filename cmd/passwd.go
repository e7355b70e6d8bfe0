package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/keyring"
)

// Passwd changes a profile's master password and mints a fresh
// recovery key.
func Passwd(ctx context.Context, opts Options) {
	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	// Get current password with retry on stale keyring
	currentPassword, _, err := GetPasswordWithRetry("Enter current password: ", prof.ID, func(key []byte) error {
		return v.Profiles().VerifyMasterKey(prof.ID, key)
	})
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(currentPassword)

	newPassword, err := ReadPasswordConfirm()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(newPassword)

	recovery, err := v.Profiles().ChangeProfilePassword(ctx, prof.ID, currentPassword, newPassword)
	if err != nil {
		HandleError(err)
	}

	// Refresh the keyring entry if the user keeps one
	if keyring.HasMasterKey(prof.ID) {
		if err := keyring.SaveMasterKey(prof.ID, newPassword); err == nil {
			fmt.Println("Keyring updated with new password")
		}
	}

	fmt.Println("password changed successfully")
	fmt.Println()
	fmt.Println("New recovery key:")
	fmt.Printf("  %s\n", recovery)
	fmt.Println()
	fmt.Println("The old recovery key no longer works. Store this one safely,")
	fmt.Println("it is shown only once.")
}

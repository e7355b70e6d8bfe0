package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/metastore"
)

// Init creates a new profile in the vault.
func Init(opts Options, name string) {
	if name == "" {
		name = "default"
	}

	v := OpenVault(opts)
	defer v.Close()

	if _, err := v.Store().GetProfileByName(name); err == nil {
		fmt.Fprintf(os.Stderr, "Error: profile %q already exists\n", name)
		fmt.Fprintf(os.Stderr, "Use 'dirvault status' to see current state\n")
		os.Exit(1)
	} else if !errors.Is(err, metastore.ErrNotFound) {
		HandleError(err)
	}

	// Read password (env var or prompt with confirmation)
	password, err := GetPasswordForInit()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(password)

	prof, recovery, err := v.Profiles().CreateProfile(name, password)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("✓ Created profile %q (%s)\n", prof.Name, prof.ID)
	fmt.Println()
	fmt.Println("Recovery key:")
	fmt.Printf("  %s\n", recovery)
	fmt.Println()
	fmt.Println("Store it somewhere safe. It is shown only once and is the")
	fmt.Println("only way back in if you forget the master password.")
}

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/live-labs/dirvault/internal/crypto"
	"github.com/live-labs/dirvault/internal/keyring"
	"github.com/live-labs/dirvault/internal/metastore"
	"github.com/live-labs/dirvault/internal/profile"
	"github.com/live-labs/dirvault/internal/vault"
)

// Options carries the flags shared by every command.
type Options struct {
	Root    string // vault root override
	Profile string // profile name or id
	Debug   bool
}

// PasswordSource tells where a master key came from.
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

// VaultRoot resolves the vault root: the --root flag, then DIRVAULT_ROOT,
// then ~/.dirvault.
func VaultRoot(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("DIRVAULT_ROOT"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dirvault"
	}
	return filepath.Join(home, ".dirvault")
}

// OpenVault wires logging and opens the vault, exiting on failure.
func OpenVault(opts Options) *vault.Vault {
	root := VaultRoot(opts.Root)
	InitLogging(root, opts.Debug)
	v, err := vault.New(root)
	if err != nil {
		HandleError(err)
	}
	return v
}

// ResolveProfile picks the profile to operate on: an explicit name or id,
// otherwise the vault's sole profile.
func ResolveProfile(v *vault.Vault, nameOrID string) *metastore.Profile {
	if nameOrID != "" {
		if p, err := v.Store().GetProfile(nameOrID); err == nil {
			return p
		}
		p, err := v.Store().GetProfileByName(nameOrID)
		if err != nil {
			HandleError(fmt.Errorf("profile %q not found", nameOrID))
		}
		return p
	}

	profiles, err := v.Store().Profiles()
	if err != nil {
		HandleError(err)
	}
	switch len(profiles) {
	case 0:
		fmt.Fprintln(os.Stderr, "Error: no profile exists")
		fmt.Fprintln(os.Stderr, "Run 'dirvault init' first")
		os.Exit(1)
	case 1:
		return &profiles[0]
	}
	fmt.Fprintln(os.Stderr, "Error: more than one profile exists")
	fmt.Fprintln(os.Stderr, "Pick one with --profile <name>")
	os.Exit(1)
	return nil
}

// ReadPassword reads a password from the terminal without echoing.
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// ReadPasswordConfirm reads a password twice and ensures both match.
func ReadPasswordConfirm() ([]byte, error) {
	first, err := ReadPassword("Enter new master password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(first)

	second, err := ReadPassword("Confirm master password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(second)

	if !crypto.ConstantTimeCompare(first, second) {
		return nil, errors.New("passwords do not match")
	}

	result := make([]byte, len(first))
	copy(result, first)
	return result, nil
}

// PasswordFromEnv reads DIRVAULT_PASSWORD. Returns a copy so the caller
// can clear it; nil when unset.
func PasswordFromEnv() []byte {
	password := os.Getenv("DIRVAULT_PASSWORD")
	if password == "" {
		return nil
	}
	result := make([]byte, len(password))
	copy(result, password)
	return result
}

// GetPasswordForInit resolves the password for a fresh profile: the
// environment variable, or a prompt with confirmation.
func GetPasswordForInit() ([]byte, error) {
	if password := PasswordFromEnv(); password != nil {
		return password, nil
	}
	return ReadPasswordConfirm()
}

// GetPasswordWithRetry resolves a profile's master key: environment
// variable, then OS keyring, then prompt. A keyring entry that fails
// verification is treated as stale and the user is prompted instead.
// The caller clears the returned key.
func GetPasswordWithRetry(prompt, profileID string, verify func([]byte) error) ([]byte, PasswordSource, error) {
	if password := PasswordFromEnv(); password != nil {
		if verify != nil {
			if err := verify(password); err != nil {
				crypto.ClearBytes(password)
				return nil, SourceEnv, err
			}
		}
		return password, SourceEnv, nil
	}

	if profileID != "" {
		if key, err := keyring.GetMasterKey(profileID); err == nil {
			if verify == nil || verify(key) == nil {
				return key, SourceKeyring, nil
			}
			crypto.ClearBytes(key)
			fmt.Fprintln(os.Stderr, "warning: keyring entry is stale, enter the password manually")
		}
	}

	password, err := ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	if verify != nil {
		if err := verify(password); err != nil {
			crypto.ClearBytes(password)
			return nil, SourcePrompt, err
		}
	}
	return password, SourcePrompt, nil
}

// OfferToSavePassword asks whether to keep the key in the OS keyring.
// Quiet in non-interactive sessions.
func OfferToSavePassword(profileID string, password []byte) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return
	}
	fmt.Print("Save password to the OS keyring? [y/N]: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return
	}
	if strings.ToLower(strings.TrimSpace(line)) != "y" {
		return
	}
	if err := keyring.SaveMasterKey(profileID, password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Println("Password saved to keyring")
}

// Confirm asks a yes/no question, defaulting to no.
func Confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	var response string
	fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}

// HandleError prints a friendly message for well-known failures and
// exits.
func HandleError(err error) {
	switch {
	case errors.Is(err, crypto.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
	case errors.Is(err, profile.ErrTooManyAttempts):
		fmt.Fprintf(os.Stderr, "Error: too many failed attempts, try again later\n")
	case errors.Is(err, profile.ErrNotElevated):
		fmt.Fprintf(os.Stderr, "Error: administrator privileges required\n")
		fmt.Fprintf(os.Stderr, "Re-run from an elevated shell\n")
	case errors.Is(err, metastore.ErrIntegrity):
		fmt.Fprintf(os.Stderr, "Error: metadata failed integrity verification\n")
		fmt.Fprintf(os.Stderr, "Run 'dirvault reconcile' to inspect the vault\n")
	case errors.Is(err, vault.ErrFolderLocked):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Unlock it first with 'dirvault unlock'\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}

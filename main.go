package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/live-labs/dirvault/cmd"
	"github.com/live-labs/dirvault/internal/platform"
)

func main() {
	// Keep master keys out of core dumps before anything touches them
	if err := platform.DisableCoreDumps(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not disable core dumps: %s\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(ctx, os.Args[2:])
	case "lock":
		runLock(ctx, os.Args[2:])
	case "unlock":
		runUnlock(ctx, os.Args[2:])
	case "relock":
		runRelock(ctx, os.Args[2:])
	case "recover":
		runRecover(ctx, os.Args[2:])
	case "rm":
		runRm(ctx, os.Args[2:])
	case "ls", "status":
		runStatus(ctx, os.Args[2:])
	case "passwd":
		runPasswd(ctx, os.Args[2:])
	case "diff":
		runDiff(ctx, os.Args[2:])
	case "reconcile":
		runReconcile(ctx, os.Args[2:])
	case "log":
		runLog(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "keyring":
		runKeyring(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// commonFlags registers the flags every command accepts. The returned
// getter is valid after fs.Parse.
func commonFlags(fs *flag.FlagSet) func() cmd.Options {
	root := fs.String("root", "", "Vault root directory (default $DIRVAULT_ROOT or ~/.dirvault)")
	profile := fs.String("profile", "", "Profile name or id")
	debug := fs.Bool("debug", false, "Enable debug logging")
	return func() cmd.Options {
		return cmd.Options{Root: *root, Profile: *profile, Debug: *debug}
	}
}

func runInit(_ context.Context, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Init(opts(), fs.Arg(0))
}

func runLock(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Lock(ctx, opts(), fs.Args())
}

func runUnlock(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	opts := commonFlags(fs)
	permanent := fs.Bool("permanent", false, "Remove the vault copy after unlocking")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Unlock(ctx, opts(), *permanent, fs.Args())
}

func runRelock(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("relock", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Relock(ctx, opts())
}

func runRecover(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Recover(ctx, opts())
}

func runRm(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	opts := commonFlags(fs)
	force := fs.Bool("force", false, "Remove without confirmation")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Remove(ctx, opts(), *force, fs.Args())
}

func runStatus(_ context.Context, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Status(opts())
}

func runPasswd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Passwd(ctx, opts())
}

func runDiff(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Diff(ctx, opts(), fs.Arg(0))
}

func runReconcile(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	opts := commonFlags(fs)
	repair := fs.Bool("repair", false, "Repair what can safely be repaired")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Reconcile(ctx, opts(), *repair)
}

func runLog(_ context.Context, args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	opts := commonFlags(fs)
	n := fs.Int("n", 20, "Number of entries to show")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Log(opts(), *n)
}

func runCompact(_ context.Context, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	cmd.Compact(opts())
}

func runKeyring(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: dirvault keyring <save|rm|status>")
		os.Exit(1)
	}
	sub := args[0]

	fs := flag.NewFlagSet("keyring "+sub, flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	switch sub {
	case "save":
		cmd.KeyringSave(opts())
	case "rm", "delete":
		cmd.KeyringDelete(opts())
	case "status":
		cmd.KeyringStatus(opts())
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring subcommand: %s\n", sub)
		fmt.Fprintln(os.Stderr, "Usage: dirvault keyring <save|rm|status>")
		os.Exit(1)
	}
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: dirvault completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("dirvault - Hide and encrypt personal folders")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  dirvault <command> [flags] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a profile in the vault")
	fmt.Println("  lock        Encrypt folders into the vault")
	fmt.Println("  unlock      Restore folders from the vault")
	fmt.Println("  relock      Seal temporarily unlocked folders again")
	fmt.Println("  recover     Unlock with the recovery key")
	fmt.Println("  rm          Remove folders from the vault")
	fmt.Println("  ls, status  Show profile and folder status")
	fmt.Println("  passwd      Change the master password")
	fmt.Println("  diff        Show changes since a folder was sealed")
	fmt.Println("  reconcile   Check vault consistency")
	fmt.Println("  log         Show recent journal entries")
	fmt.Println("  compact     Compact the journal database")
	fmt.Println("  keyring     Manage the password in the OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Flags common to all commands:")
	fmt.Println("  --root      Vault root directory (default $DIRVAULT_ROOT or ~/.dirvault)")
	fmt.Println("  --profile   Profile name or id (required only with several profiles)")
	fmt.Println("  --debug     Enable debug logging")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  dirvault init                   # Create the first profile")
	fmt.Println("  dirvault lock ~/Documents/tax   # Hide and encrypt a folder")
	fmt.Println("  dirvault unlock                 # Bring every folder back")
	fmt.Println("  dirvault relock                 # Seal them again")
	fmt.Println()
	fmt.Println("Use 'dirvault help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("dirvault init [name]")
		fmt.Println()
		fmt.Println("Creates a profile in the vault. The optional name defaults")
		fmt.Println("to \"default\". Prompts for a master password and prints a")
		fmt.Println("one-time recovery key.")
		fmt.Println("The password is not stored anywhere - you must remember it.")
		fmt.Println()
		fmt.Println("Creating a profile requires administrator privileges.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dirvault init                    # Create the default profile")
		fmt.Println("  dirvault init work               # Create a profile named work")
	case "lock":
		fmt.Println("dirvault lock <folder> [folder...]")
		fmt.Println()
		fmt.Println("Moves each folder into the vault, encrypts every file in it")
		fmt.Println("and hides the vault copy under an obfuscated name. A plaintext")
		fmt.Println("snapshot is taken first so a failed lock can roll back.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dirvault lock ~/Documents/tax")
		fmt.Println("  dirvault lock ./notes ./photos")
	case "unlock":
		fmt.Println("dirvault unlock [--permanent] [<id> [id...]]")
		fmt.Println()
		fmt.Println("Decrypts folders and moves them back to their original")
		fmt.Println("locations. Without ids, unlocks every locked folder of the")
		fmt.Println("profile.")
		fmt.Println()
		fmt.Println("By default the unlock is temporary: the folder record stays")
		fmt.Println("in the vault and 'dirvault relock' seals it again. With")
		fmt.Println("--permanent the record and the vault copy are removed.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --permanent    Remove the vault copy after unlocking")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dirvault unlock                  # Unlock all folders temporarily")
		fmt.Println("  dirvault unlock --permanent      # Unlock and forget all folders")
	case "relock":
		fmt.Println("dirvault relock")
		fmt.Println()
		fmt.Println("Seals every temporarily unlocked folder back into the vault.")
		fmt.Println("Each folder is re-encrypted under a fresh obfuscated name.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  dirvault relock")
	case "recover":
		fmt.Println("dirvault recover")
		fmt.Println()
		fmt.Println("Unlocks a profile's folders with the recovery key printed at")
		fmt.Println("init time. Use it when the master password is lost, then set")
		fmt.Println("a new password with 'dirvault passwd'.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  dirvault recover")
	case "rm":
		fmt.Println("dirvault rm [--force] <id> [id...]")
		fmt.Println()
		fmt.Println("Removes folder records from the vault. For a locked folder the")
		fmt.Println("encrypted tree and all snapshots are destroyed; the plaintext")
		fmt.Println("is NOT restored first. For an unlocked folder only the record")
		fmt.Println("is forgotten and the folder stays on disk.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  --force    Remove without confirmation")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dirvault rm 9b2f61c4-...")
		fmt.Println("  dirvault rm --force 9b2f61c4-...")
	case "ls", "status":
		fmt.Println("dirvault status")
		fmt.Println()
		fmt.Println("Shows the profile, its folders and their lock state, snapshot")
		fmt.Println("counts and folder ids.")
		fmt.Println()
		fmt.Println("Does not require a password.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  dirvault status")
	case "passwd":
		fmt.Println("dirvault passwd")
		fmt.Println()
		fmt.Println("Changes the master password and prints a fresh recovery key.")
		fmt.Println("Every locked folder is re-encrypted under the new password,")
		fmt.Println("so this can take a while for large vaults.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  dirvault passwd")
	case "diff":
		fmt.Println("dirvault diff <id>")
		fmt.Println()
		fmt.Println("Compares an unlocked folder with the snapshot taken when it")
		fmt.Println("was last sealed and prints what changed. The folder must be")
		fmt.Println("unlocked.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  dirvault diff 9b2f61c4-...")
	case "reconcile":
		fmt.Println("dirvault reconcile [--repair]")
		fmt.Println()
		fmt.Println("Checks the vault's metadata against what is actually on disk:")
		fmt.Println("missing or unencrypted vault trees, orphaned trees and")
		fmt.Println("mappings, stale snapshot entries. With --repair it fixes what")
		fmt.Println("can be fixed without the master password.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dirvault reconcile               # Report only")
		fmt.Println("  dirvault reconcile --repair      # Repair what it safely can")
	case "log":
		fmt.Println("dirvault log [-n <count>]")
		fmt.Println()
		fmt.Println("Shows recent journal entries, newest first.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -n    Number of entries to show (default 20)")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  dirvault log -n 50")
	case "compact":
		fmt.Println("dirvault compact")
		fmt.Println()
		fmt.Println("Compacts the journal database to reclaim unused disk space.")
		fmt.Println()
		fmt.Println("Does not require a password.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  dirvault compact")
	case "keyring":
		fmt.Println("dirvault keyring <save|rm|status>")
		fmt.Println()
		fmt.Println("Manages the master password in the OS keyring. A saved")
		fmt.Println("password lets other commands skip the prompt.")
		fmt.Println()
		fmt.Println("Subcommands:")
		fmt.Println("  save      Verify and store the master password")
		fmt.Println("  rm        Remove the stored password")
		fmt.Println("  status    Report whether a password is stored")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  dirvault keyring save")
		fmt.Println("  dirvault keyring status")
	case "completion":
		fmt.Println("dirvault completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(dirvault completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(dirvault completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  dirvault completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
)

// Reconcile checks the vault's metadata against what is actually on
// disk and optionally repairs what it safely can.
func Reconcile(ctx context.Context, opts Options, repair bool) {
	v := OpenVault(opts)
	defer v.Close()

	prof := ResolveProfile(v, opts.Profile)

	report, err := v.Reconcile(ctx, prof.ID, repair)
	if err != nil {
		HandleError(err)
	}

	if len(report.Issues) == 0 {
		fmt.Println("vault is consistent")
		return
	}

	unrepaired := 0
	for _, issue := range report.Issues {
		line := fmt.Sprintf("  %s: %s", issue.Kind, issue.Path)
		if issue.Detail != "" {
			line += fmt.Sprintf(" (%s)", issue.Detail)
		}
		if issue.Repaired {
			line += " [repaired]"
		} else {
			unrepaired++
		}
		fmt.Println(line)
	}

	fmt.Printf("\nfound %d issue(s), repaired %d\n", len(report.Issues), report.Repaired)
	if !repair && unrepaired > 0 {
		fmt.Println("Run 'dirvault reconcile --repair' to fix what can be fixed")
	}
	if unrepaired > 0 {
		os.Exit(1)
	}
}

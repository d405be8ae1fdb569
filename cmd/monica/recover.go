package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/state"
)

var recoverDryRun bool

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Release claims left by interrupted completions",
	Long: `Find completions whose handler claimed them and then stopped before
recording an outcome, and release the expired claims so the next
redelivery can run.

Releasing a claim never records success, so no successor is lost or
duplicated. 'monica serve' does this on startup.`,
	RunE: runRecover,
}

func init() {
	recoverCmd.Flags().BoolVar(&recoverDryRun, "dry-run", false, "Only list interrupted completions")
}

func runRecover(cmd *cobra.Command, args []string) error {
	db, err := openState(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rm := state.NewRecoveryManager(db)
	now := time.Now()

	interrupted, err := rm.CheckForInterrupted(now)
	if err != nil {
		return err
	}
	if len(interrupted) == 0 {
		printStatus("✓", "No interrupted completions", color.FgGreen)
		return nil
	}

	for _, ic := range interrupted {
		note := "no outcome"
		if ic.Recorded {
			note = "outcome recorded"
		}
		printStatus("⚠", fmt.Sprintf("%s held by %s since %s (%s)",
			ic.Fingerprint, ic.Owner, formatAge(ic.ClaimedAt), note), color.FgYellow)
	}
	if recoverDryRun {
		return nil
	}

	n, err := rm.Clean(now)
	if err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("Released %d claim(s)", n), color.FgGreen)
	return nil
}

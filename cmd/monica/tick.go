package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var tickAt string

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one suggestion heartbeat",
	Long: `Run one suggestion heartbeat, the same as POST /heartbeat.

Expires stale offers, then offers at most one new suggestion per eligible
open task for the best free window within the horizon. Offered suggestions
are delivered to the configured sink.`,
	RunE: runTick,
}

func init() {
	tickCmd.Flags().StringVar(&tickAt, "at", "", "Tick as of this RFC3339 time instead of now")
}

func runTick(cmd *cobra.Command, args []string) error {
	now := time.Now()
	if tickAt != "" {
		t, err := time.Parse(time.RFC3339, tickAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = t
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	recs, tickErr := a.suggest.Tick(ctx, now)
	if len(recs) > 0 {
		if err := a.sink.Deliver(ctx, recs); err != nil {
			return fmt.Errorf("deliver suggestions: %w", err)
		}
	}

	if len(recs) == 0 {
		printStatus("·", "No suggestions this tick", color.FgCyan)
	}
	for _, r := range recs {
		printSuggestion(r)
	}
	if tickErr != nil {
		return fmt.Errorf("tick: %w", tickErr)
	}
	return nil
}

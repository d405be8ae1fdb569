package main

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/budget"
	"github.com/ShayCichocki/monica/internal/tui"
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the read-only dashboard",
	Long: `Open a terminal dashboard over the state database: budget usage,
pending suggestions and recent ledger entries, refreshed every
tui.refresh_rate. Use 'monica serve --dash' to also see live engine events.`,
	RunE: runDash,
}

func runDash(cmd *cobra.Command, args []string) error {
	db, err := openState(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Logging.File == "" {
		log.SetOutput(io.Discard)
	}

	guard := budget.NewGuard(cfg.Budget.MonthlyCap,
		budget.WithStore(db),
		budget.WithWarningThreshold(cfg.Budget.WarningThreshold),
	)

	program, _ := tui.NewProgram(tui.Config{
		Source:      db,
		Budget:      guard,
		RefreshRate: cfg.TUI.RefreshRate,
	})
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/budget"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show model spend against the monthly cap",
	RunE:  runBudget,
}

func runBudget(cmd *cobra.Command, args []string) error {
	db, err := openState(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	guard := budget.NewGuard(cfg.Budget.MonthlyCap,
		budget.WithStore(db),
		budget.WithWarningThreshold(cfg.Budget.WarningThreshold),
	)
	u := guard.Usage()

	statusColor := color.FgGreen
	switch u.Status {
	case budget.StatusWarning:
		statusColor = color.FgYellow
	case budget.StatusExhausted:
		statusColor = color.FgRed
	}

	if u.Cap <= 0 {
		printStatus("●", fmt.Sprintf("%s: model calls disabled (budget.monthly_cap is 0)", u.Period), statusColor)
	} else {
		printStatus("●", fmt.Sprintf("%s: $%.4f of $%.2f (%.0f%%) %s",
			u.Period, u.Spent, u.Cap, u.Percentage*100, u.Status), statusColor)
	}

	counters, err := db.ListBudgetCounters()
	if err != nil {
		return err
	}
	if len(counters) > 1 {
		fmt.Println("\nHistory:")
		for _, c := range counters {
			if c.Period == u.Period {
				continue
			}
			fmt.Printf("  %s  $%.4f of $%.2f\n", c.Period, c.Spent, c.Cap)
		}
	}
	return nil
}

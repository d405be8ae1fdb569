package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/pkg/models"
)

var (
	ledgerOutcome string
	ledgerLimit   int
	ledgerOutput  string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the idempotency ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show [fingerprint]",
	Short: "Show recorded completion outcomes",
	Long: `Show recorded outcomes, newest first, or one entry by fingerprint.

Examples:
  monica ledger show
  monica ledger show --outcome failed
  monica ledger show 't-42@2026-03-02T09:00:00Z'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLedgerShow,
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger and suggestion history as YAML",
	RunE:  runLedgerExport,
}

func init() {
	ledgerShowCmd.Flags().StringVar(&ledgerOutcome, "outcome", "", "Filter by outcome: successor_created, no_successor_needed, failed")
	ledgerShowCmd.Flags().IntVar(&ledgerLimit, "limit", 20, "Maximum entries to show (0 for all)")
	ledgerExportCmd.Flags().StringVarP(&ledgerOutput, "output", "o", "", "Write to file instead of stdout")

	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	db, err := openState(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		entry, err := db.GetEntry(models.Fingerprint(args[0]))
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("no ledger entry for %s", args[0])
		}
		printOutcome(entry.Fingerprint, entry.Outcome)
		fmt.Printf("  task %s  event %s  recorded %s\n", entry.TaskID, entry.EventID, formatAge(entry.RecordedAt))
		return nil
	}

	var kind *models.OutcomeKind
	if ledgerOutcome != "" {
		k := models.OutcomeKind(strings.ToLower(ledgerOutcome))
		if !k.Valid() {
			return fmt.Errorf("unknown outcome %q", ledgerOutcome)
		}
		kind = &k
	}

	entries, err := db.ListEntries(kind, ledgerLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Ledger is empty.")
	}
	for _, e := range entries {
		printOutcome(e.Fingerprint, e.Outcome)
	}

	claims, err := db.ListClaims()
	if err != nil {
		return err
	}
	if len(claims) > 0 {
		fmt.Println()
		printStatus("⚠", fmt.Sprintf("%d completion(s) in flight", len(claims)), color.FgYellow)
		for _, c := range claims {
			fmt.Printf("  %s  owner %s  expires %s\n", c.Fingerprint, c.Owner, c.ExpiresAt.Local().Format("15:04:05"))
		}
	}
	return nil
}

// exportDocument is the YAML shape written by ledger export.
type exportDocument struct {
	Ledger      []models.LedgerEntry      `yaml:"ledger"`
	Suggestions []models.SuggestionRecord `yaml:"suggestions"`
	Budget      []models.BudgetCounter    `yaml:"budget"`
}

func runLedgerExport(cmd *cobra.Command, args []string) error {
	db, err := openState(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	doc, err := buildExport(db)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if ledgerOutput != "" {
		f, err := os.Create(ledgerOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", ledgerOutput, err)
		}
		defer f.Close()
		out = f
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return enc.Close()
}

func buildExport(db *state.DB) (*exportDocument, error) {
	entries, err := db.ListEntries(nil, 0)
	if err != nil {
		return nil, err
	}
	recs, err := db.ListSuggestions(nil)
	if err != nil {
		return nil, err
	}
	counters, err := db.ListBudgetCounters()
	if err != nil {
		return nil, err
	}
	return &exportDocument{Ledger: entries, Suggestions: recs, Budget: counters}, nil
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/pkg/models"
)

var (
	suggestionsStatus string
	suggestionsTask   string
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "List suggestion history",
	Long: `List offered suggestions, newest first.

Examples:
  monica suggestions                  # everything
  monica suggestions --status pending
  monica suggestions --task t-42      # every offer of one task, oldest first`,
	RunE: runSuggestions,
}

var respondCmd = &cobra.Command{
	Use:   "respond <task-id> <accepted|declined>",
	Short: "Accept or decline a pending suggestion",
	Long: `Record the response to a task's pending suggestion. A task that was
accepted or declined is never suggested again.`,
	Args: cobra.ExactArgs(2),
	RunE: runRespond,
}

func init() {
	suggestionsCmd.Flags().StringVar(&suggestionsStatus, "status", "", "Filter by response: pending, accepted, declined, expired")
	suggestionsCmd.Flags().StringVar(&suggestionsTask, "task", "", "Show the history of one task")
}

func runSuggestions(cmd *cobra.Command, args []string) error {
	db, err := openState(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := listSuggestions(db, suggestionsTask, suggestionsStatus)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No suggestions.")
		return nil
	}
	for _, r := range recs {
		printSuggestion(r)
	}
	return nil
}

func listSuggestions(db *state.DB, taskID, status string) ([]models.SuggestionRecord, error) {
	if taskID != "" {
		return db.SuggestionHistory(taskID)
	}
	if status == "" {
		return db.ListSuggestions(nil)
	}
	response := models.SuggestionResponse(strings.ToLower(status))
	if !response.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	return db.ListSuggestions(&response)
}

func runRespond(cmd *cobra.Command, args []string) error {
	response, err := parseResponse(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.suggest.Respond(args[0], response, time.Now())
	if err != nil {
		return fmt.Errorf("respond to %s: %w", args[0], err)
	}
	printStatus("✓", fmt.Sprintf("Recorded %s", rec.Response), color.FgGreen)
	printSuggestion(*rec)
	return nil
}

// parseResponse accepts the final responses and their short forms.
func parseResponse(s string) (models.SuggestionResponse, error) {
	switch strings.ToLower(s) {
	case "accepted", "accept", "yes", "y":
		return models.ResponseAccepted, nil
	case "declined", "decline", "no", "n":
		return models.ResponseDeclined, nil
	default:
		return "", fmt.Errorf("response must be accepted or declined, got %q", s)
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/pkg/models"
)

var (
	completeAt      string
	completeMark    bool
	completeEventID string
)

var completeCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Handle a task completion",
	Long: `Handle one completion event for a task and create its successor.

Running this twice for the same completion is safe: the second run reports
the recorded outcome instead of creating another successor. Without --at
the completion time is read from the task store, so repeated runs share a
fingerprint. A task with no recorded completion time needs --at (or --mark)
for that guarantee.

With --mark the task is first marked completed in the task store, at --at
or now.

Examples:
  monica complete L1/AAMkAD...
  monica complete t-42 --mark
  monica complete t-42 --at 2026-03-02T09:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVar(&completeAt, "at", "", "Completion time in RFC3339 (default: the task's recorded completion time)")
	completeCmd.Flags().BoolVar(&completeMark, "mark", false, "Mark the task completed in the task store first")
	completeCmd.Flags().StringVar(&completeEventID, "event-id", "", "Delivery ID (default: random)")
}

func runComplete(cmd *cobra.Command, args []string) error {
	var at time.Time
	if completeAt != "" {
		t, err := time.Parse(time.RFC3339, completeAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		at = t
	}
	eventID := completeEventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if completeMark {
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if err := a.tasks.Complete(ctx, args[0], at); err != nil {
			return fmt.Errorf("mark %s completed: %w", args[0], err)
		}
		printStatus("✓", fmt.Sprintf("Marked %s completed", args[0]), color.FgGreen)
	}
	if at.IsZero() {
		task, err := a.tasks.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}
		at = completionTime(task, time.Now())
		if task.CompletedAt == nil {
			printStatus("⚠", fmt.Sprintf("%s has no recorded completion time; using now. Pass --at to make reruns safe", args[0]), color.FgYellow)
		}
	}

	ev := models.CompletionEvent{EventID: eventID, TaskID: args[0], CompletedAt: at}
	outcome, err := a.chain.HandleCompletion(ctx, ev)
	if err != nil {
		if models.IsRetryable(err) {
			return fmt.Errorf("transient failure, retry later: %w", err)
		}
		return err
	}
	printOutcome(ev.Fingerprint(), outcome)
	return nil
}

// completionTime is the task's recorded completion time, or now when the
// store has none.
func completionTime(task *models.Task, now time.Time) time.Time {
	if task.CompletedAt != nil {
		return *task.CompletedAt
	}
	return now.UTC()
}

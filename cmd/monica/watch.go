package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/pkg/models"
)

const watchRetryInterval = 30 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Chain tasks completed in the task file",
	Long: `Watch the YAML task file (store.backend: file) and handle every task
that moves from open to completed, as if a webhook had delivered it.

Transient failures are retried on the next change to the file, and at
least every 30 seconds, until an outcome is recorded.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.files == nil {
		return fmt.Errorf("watch needs store.backend: file")
	}

	w, err := a.files.Watch(ctx, watchRetryInterval)
	if err != nil {
		return fmt.Errorf("watch %s: %w", a.files.Path(), err)
	}
	printStatus("◉", fmt.Sprintf("Watching %s (Ctrl+C to stop)", a.files.Path()), color.FgCyan)

	for ev := range w.Events() {
		outcome, err := a.chain.HandleCompletion(ctx, ev)
		if err != nil {
			if models.IsRetryable(err) {
				w.Retry(ev)
				log.Printf("[watch] %s: will retry: %v", ev.TaskID, err)
			}
			printStatus("✗", fmt.Sprintf("%s: %v", ev.TaskID, err), color.FgRed)
			continue
		}
		printOutcome(ev.Fingerprint(), outcome)
	}
	return nil
}

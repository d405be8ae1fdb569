package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// Advisor asks the model how well a task fits a free window.
type Advisor struct {
	m metered
}

// NewAdvisor creates an advisor that charges every call to meter.
func NewAdvisor(completer Completer, meter Meter, cfg ClassifierConfig) *Advisor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8
	}
	return &Advisor{m: metered{
		completer: completer,
		meter:     meter,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}}
}

// Fit returns the model's fit estimate in [0,1]. ok is false when the
// budget refused the call or the reply was not a number.
func (a *Advisor) Fit(ctx context.Context, task *models.Task, window models.AvailabilityWindow) (float64, bool, error) {
	resp, ok, err := a.m.call(ctx, fitPrompt(task, window))
	if err != nil {
		return 0, false, fmt.Errorf("fit task %s: %w", task.ID, err)
	}
	if !ok {
		return 0, false, nil
	}
	return parseFit(resp.Text)
}

func fitPrompt(task *models.Task, window models.AvailabilityWindow) string {
	var sb strings.Builder
	sb.WriteString("Rate how well this task fits this free time slot.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", task.Title)
	if task.List != "" {
		fmt.Fprintf(&sb, "List: %s\n", task.List)
	}
	if task.EstimatedDuration > 0 {
		fmt.Fprintf(&sb, "Estimate: %s\n", task.EstimatedDuration)
	}
	if task.Due != nil {
		fmt.Fprintf(&sb, "Due: %s\n", task.Due.Format(time.RFC1123))
	}
	fmt.Fprintf(&sb, "Slot: %s to %s (%s, calendar %q)\n",
		window.Start.Format(time.RFC1123), window.End.Format("15:04"), window.Duration(), window.Source)
	sb.WriteString("\nReply with a single number between 0 and 1.")
	return sb.String()
}

func parseFit(reply string) (float64, bool, error) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimRight(fields[0], ".,"), 64)
	if err != nil {
		return 0, false, nil
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, true, nil
}

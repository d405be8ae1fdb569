package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// Classifier infers a chain tag for a completed task that has none.
type Classifier struct {
	m metered
}

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// NewClassifier creates a classifier that charges every call to meter.
func NewClassifier(completer Completer, meter Meter, cfg ClassifierConfig) *Classifier {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 16
	}
	return &Classifier{m: metered{
		completer: completer,
		meter:     meter,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}}
}

// ClassifyTag asks the model which of tags, if any, fits the task. It
// returns "" when no tag fits, when tags is empty, or when the budget
// refuses the call. Only a failed model call returns an error.
func (c *Classifier) ClassifyTag(ctx context.Context, task *models.Task, tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}

	resp, ok, err := c.m.call(ctx, classifyPrompt(task, tags))
	if err != nil {
		return "", fmt.Errorf("classify task %s: %w", task.ID, err)
	}
	if !ok {
		return "", nil
	}
	return matchTag(resp.Text, tags), nil
}

func classifyPrompt(task *models.Task, tags []string) string {
	var sb strings.Builder
	sb.WriteString("A task was just completed in a personal to-do list.\n")
	sb.WriteString("Decide which follow-up chain it belongs to.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", task.Title)
	if task.List != "" {
		fmt.Fprintf(&sb, "List: %s\n", task.List)
	}
	if len(task.Categories) > 0 {
		fmt.Fprintf(&sb, "Categories: %s\n", strings.Join(task.Categories, ", "))
	}
	fmt.Fprintf(&sb, "\nChains: %s\n\n", strings.Join(tags, ", "))
	sb.WriteString("Reply with exactly one chain name from the list, or NONE if no chain fits.")
	return sb.String()
}

// matchTag maps a model reply onto one of tags, case-insensitively.
// Anything else, including NONE, yields "".
func matchTag(reply string, tags []string) string {
	word := strings.TrimSpace(reply)
	if i := strings.IndexAny(word, "\n "); i >= 0 {
		word = word[:i]
	}
	word = strings.Trim(word, "`'\".,")
	for _, tag := range tags {
		if strings.EqualFold(word, tag) {
			return tag
		}
	}
	return ""
}

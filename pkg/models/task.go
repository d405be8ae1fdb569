package models

import (
	"fmt"
	"time"
)

// TaskState represents the lifecycle state of a task in the task store.
type TaskState string

const (
	// TaskStateOpen indicates the task has not been completed.
	TaskStateOpen TaskState = "open"
	// TaskStateCompleted indicates the task was marked complete.
	TaskStateCompleted TaskState = "completed"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateOpen, TaskStateCompleted:
		return true
	default:
		return false
	}
}

// Task is a read-only projection of a task owned by the task store.
type Task struct {
	// ID is the opaque identifier, stable across updates.
	ID string `json:"id" yaml:"id"`
	// Title is the short description of the task.
	Title string `json:"title" yaml:"title"`
	// List is the display name of the list the task belongs to.
	List string `json:"list,omitempty" yaml:"list,omitempty"`
	// Categories are the domain categories applied to the task.
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
	// Due is the due date, if any.
	Due *time.Time `json:"due,omitempty" yaml:"due,omitempty"`
	// EstimatedDuration is how long the task is expected to take, if known.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty" yaml:"estimate,omitempty"`
	// State is the current lifecycle state.
	State TaskState `json:"state" yaml:"state"`
	// ChainTag selects chain rules for this task.
	ChainTag string `json:"chain_tag,omitempty" yaml:"chain,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// IsOpen reports whether the task is still open.
func (t *Task) IsOpen() bool {
	return t.State == TaskStateOpen
}

// HasCategory reports whether the task carries the given category.
func (t *Task) HasCategory(category string) bool {
	for _, c := range t.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// TaskTemplate is a concrete intent to create a task.
type TaskTemplate struct {
	Title             string        `json:"title"`
	List              string        `json:"list,omitempty"`
	Categories        []string      `json:"categories,omitempty"`
	Due               *time.Time    `json:"due,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	ChainTag          string        `json:"chain_tag,omitempty"`
}

// Validate checks the template before it is sent to a task store.
// A validation failure is permanent: retrying the same template cannot succeed.
func (t *TaskTemplate) Validate() error {
	if t.Title == "" {
		return Failed("successor title is empty")
	}
	if len(t.Title) > 255 {
		return Failed(fmt.Sprintf("successor title exceeds 255 characters (%d)", len(t.Title)))
	}
	if t.EstimatedDuration < 0 {
		return Failed("successor estimate is negative")
	}
	return nil
}

// CompletionEvent is a single delivery of a task-completed notification.
// EventID is unique per delivery, not per logical completion.
type CompletionEvent struct {
	EventID     string    `json:"event_id"`
	TaskID      string    `json:"task_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Fingerprint returns the logical completion identity of the event.
func (e CompletionEvent) Fingerprint() Fingerprint {
	return NewFingerprint(e.TaskID, e.CompletedAt)
}

// AvailabilityWindow is a free slot reported by an availability source.
type AvailabilityWindow struct {
	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
	Source string    `json:"source" yaml:"source"`
}

// Duration returns the length of the window.
func (w AvailabilityWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// String renders the window for logs.
func (w AvailabilityWindow) String() string {
	return fmt.Sprintf("%s %s-%s", w.Source, w.Start.Format(time.RFC3339), w.End.Format("15:04"))
}

// Package taskstore defines the task store and availability source
// contracts, and provides a YAML file-backed implementation of both.
package taskstore

import (
	"context"
	"sort"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// Client is the task store the engines read from and write successors to.
// Implementations map missing tasks to models.ErrNotFound, transient
// failures to models.Retryable, and rejected input to models.Failed.
type Client interface {
	Get(ctx context.Context, id string) (*models.Task, error)
	// Create creates a task from a template and returns its ID.
	Create(ctx context.Context, tmpl *models.TaskTemplate) (string, error)
	ListOpen(ctx context.Context) ([]models.Task, error)
	Complete(ctx context.Context, id string, at time.Time) error
	Update(ctx context.Context, task *models.Task) error
}

// AvailabilitySource reports free windows.
type AvailabilitySource interface {
	// ListWindows returns windows intersecting [from, to], clipped to it,
	// ordered by start.
	ListWindows(ctx context.Context, from, to time.Time) ([]models.AvailabilityWindow, error)
}

// ClipWindows keeps the parts of windows that fall inside [from, to],
// dropping empty results, and sorts them by start then source.
func ClipWindows(windows []models.AvailabilityWindow, from, to time.Time) []models.AvailabilityWindow {
	var out []models.AvailabilityWindow
	for _, w := range windows {
		if !w.End.After(from) || !w.Start.Before(to) {
			continue
		}
		if w.Start.Before(from) {
			w.Start = from
		}
		if w.End.After(to) {
			w.End = to
		}
		if w.End.After(w.Start) {
			out = append(out, w)
		}
	}
	SortWindows(out)
	return out
}

// SortWindows orders windows by start, then source.
func SortWindows(windows []models.AvailabilityWindow) {
	sort.SliceStable(windows, func(i, j int) bool { return windowLess(windows[i], windows[j]) })
}

func windowLess(a, b models.AvailabilityWindow) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return a.Source < b.Source
}

package taskstore

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/ShayCichocki/monica/pkg/models"
)

// Watcher delivers completions detected in a task file. A completion whose
// handling failed transiently is handed back with Retry and delivered again
// until the consumer stops retrying it.
type Watcher struct {
	events chan models.CompletionEvent

	mu    sync.Mutex
	retry map[string]models.CompletionEvent // by task ID
}

// Events returns the completion channel. It is closed when the watch ends.
func (w *Watcher) Events() <-chan models.CompletionEvent {
	return w.events
}

// Retry queues ev for redelivery on the next change to the file or the
// next retry interval, whichever comes first. The redelivery keeps the
// completion time, so it carries the same fingerprint. It is dropped if
// the task has been reopened or removed by then.
func (w *Watcher) Retry(ev models.CompletionEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.retry[ev.TaskID] = ev
}

// Pending returns the number of completions waiting for redelivery.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.retry)
}

// takeRetries drains the retry queue, keeping only tasks still completed in
// current. Each redelivery gets a fresh event id.
func (w *Watcher) takeRetries(current map[string]models.Task) []models.CompletionEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []models.CompletionEvent
	for id, ev := range w.retry {
		delete(w.retry, id)
		if task, ok := current[id]; !ok || task.State != models.TaskStateCompleted {
			continue
		}
		ev.EventID = uuid.New().String()
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func (w *Watcher) send(ctx context.Context, evs []models.CompletionEvent) bool {
	for _, ev := range evs {
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Watch emits a CompletionEvent each time a task in the file moves from
// open to completed. The events channel is closed when ctx is done.
// retryEvery, when positive, also redelivers retried completions on a
// timer so they do not wait for the next edit.
//
// The parent directory is watched rather than the file so that editors
// which replace the file on save are still observed.
func (s *FileStore) Watch(ctx context.Context, retryEvery time.Duration) (*Watcher, error) {
	known, err := s.tasksByID()
	if err != nil {
		return nil, fmt.Errorf("initial read: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		events: make(chan models.CompletionEvent),
		retry:  make(map[string]models.CompletionEvent),
	}
	go s.watchLoop(ctx, fw, w, known, retryEvery)
	return w, nil
}

func (s *FileStore) watchLoop(ctx context.Context, fw *fsnotify.Watcher, w *Watcher, known map[string]models.Task, retryEvery time.Duration) {
	defer close(w.events)
	defer fw.Close()

	var tick <-chan time.Time
	if retryEvery > 0 {
		ticker := time.NewTicker(retryEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	base := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			current, err := s.tasksByID()
			if err != nil {
				log.Printf("[taskstore] Warning: reload %s: %v", s.path, err)
				continue
			}
			pending := append(w.takeRetries(current), completions(known, current, s.now())...)
			known = current
			if !w.send(ctx, pending) {
				return
			}
		case <-tick:
			if w.Pending() == 0 {
				continue
			}
			current, err := s.tasksByID()
			if err != nil {
				log.Printf("[taskstore] Warning: reload %s: %v", s.path, err)
				continue
			}
			if !w.send(ctx, w.takeRetries(current)) {
				return
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Printf("[taskstore] Warning: watcher error: %v", err)
		}
	}
}

// completions diffs two snapshots and returns an event for every task
// that was open before and is completed now.
func completions(before, after map[string]models.Task, now time.Time) []models.CompletionEvent {
	var out []models.CompletionEvent
	for id, task := range after {
		prev, ok := before[id]
		if !ok || prev.State != models.TaskStateOpen || task.State != models.TaskStateCompleted {
			continue
		}
		completedAt := now.UTC()
		if task.CompletedAt != nil {
			completedAt = *task.CompletedAt
		}
		out = append(out, models.CompletionEvent{
			EventID:     uuid.New().String(),
			TaskID:      id,
			CompletedAt: completedAt,
		})
	}
	return out
}

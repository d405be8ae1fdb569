package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

func TestCompletions(t *testing.T) {
	completedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)

	before := map[string]models.Task{
		"a": {ID: "a", State: models.TaskStateOpen},
		"b": {ID: "b", State: models.TaskStateOpen},
		"c": {ID: "c", State: models.TaskStateCompleted},
	}
	after := map[string]models.Task{
		"a": {ID: "a", State: models.TaskStateCompleted, CompletedAt: &completedAt},
		"b": {ID: "b", State: models.TaskStateCompleted},
		"c": {ID: "c", State: models.TaskStateCompleted},
		"d": {ID: "d", State: models.TaskStateCompleted},
	}

	events := completions(before, after, now)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	byTask := make(map[string]models.CompletionEvent)
	for _, ev := range events {
		if ev.EventID == "" {
			t.Error("event id should be set")
		}
		byTask[ev.TaskID] = ev
	}
	if !byTask["a"].CompletedAt.Equal(completedAt) {
		t.Errorf("a completed at %v, want recorded time", byTask["a"].CompletedAt)
	}
	if !byTask["b"].CompletedAt.Equal(now) {
		t.Errorf("b completed at %v, want now", byTask["b"].CompletedAt)
	}
}

func TestFileStore_Watch(t *testing.T) {
	s := newTestStore(t, sampleFile)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w, err := s.Watch(ctx, 0)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	at := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	if err := s.Complete(context.Background(), "t1", at); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	ev := nextEvent(ctx, t, w)
	if ev.TaskID != "t1" || !ev.CompletedAt.Equal(at) {
		t.Errorf("unexpected event %+v", ev)
	}

	cancel()
	for range w.Events() {
	}
}

func TestFileStore_WatchRedeliversRetriedCompletion(t *testing.T) {
	s := newTestStore(t, sampleFile)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w, err := s.Watch(ctx, 0)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	at := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	if err := s.Complete(context.Background(), "t1", at); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	first := nextEvent(ctx, t, w)

	// Handling failed transiently; an unrelated edit must bring it back.
	w.Retry(first)
	if _, err := s.Create(context.Background(), &models.TaskTemplate{Title: "Unrelated"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	again := nextEvent(ctx, t, w)
	if again.TaskID != "t1" {
		t.Fatalf("redelivered %q, want t1", again.TaskID)
	}
	if again.Fingerprint() != first.Fingerprint() {
		t.Errorf("fingerprint changed: %s, want %s", again.Fingerprint(), first.Fingerprint())
	}
	if again.EventID == first.EventID {
		t.Error("redelivery should carry a new event id")
	}
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d after redelivery, want 0", w.Pending())
	}

	cancel()
	for range w.Events() {
	}
}

func TestFileStore_WatchRetriesOnTimer(t *testing.T) {
	s := newTestStore(t, sampleFile)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w, err := s.Watch(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	at := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	if err := s.Complete(context.Background(), "t1", at); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	first := nextEvent(ctx, t, w)
	w.Retry(first)

	if again := nextEvent(ctx, t, w); again.TaskID != "t1" || !again.CompletedAt.Equal(at) {
		t.Errorf("unexpected redelivery %+v", again)
	}

	cancel()
	for range w.Events() {
	}
}

func TestWatcher_TakeRetriesDropsReopened(t *testing.T) {
	w := &Watcher{retry: make(map[string]models.CompletionEvent)}
	w.Retry(models.CompletionEvent{EventID: "e1", TaskID: "a"})
	w.Retry(models.CompletionEvent{EventID: "e2", TaskID: "b"})

	current := map[string]models.Task{
		"a": {ID: "a", State: models.TaskStateOpen},
		"b": {ID: "b", State: models.TaskStateCompleted},
	}
	got := w.takeRetries(current)
	if len(got) != 1 || got[0].TaskID != "b" {
		t.Fatalf("takeRetries() = %+v, want only b", got)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", w.Pending())
	}
}

func nextEvent(ctx context.Context, t *testing.T, w *Watcher) models.CompletionEvent {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-ctx.Done():
		t.Fatal("timed out waiting for completion event")
	}
	return models.CompletionEvent{}
}

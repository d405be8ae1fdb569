package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/monica/pkg/models"
)

// Sink delivers offered suggestions to the user. The engine never delivers
// on its own; callers hand Tick's output to a Sink.
type Sink interface {
	Deliver(ctx context.Context, recs []models.SuggestionRecord) error
}

// LogSink writes suggestions to the standard logger.
type LogSink struct{}

// Deliver logs each suggestion.
func (LogSink) Deliver(ctx context.Context, recs []models.SuggestionRecord) error {
	for _, r := range recs {
		log.Printf("[suggest] SUGGESTION: %q fits %s (score %.2f, id %s)", r.TaskTitle, r.Window, r.Score, r.ID)
	}
	return nil
}

// JSONLinesSink appends one JSON object per suggestion to a file, for
// pickup by a notifier.
type JSONLinesSink struct {
	path string
	mu   sync.Mutex
}

// NewJSONLinesSink creates a sink appending to path.
func NewJSONLinesSink(path string) *JSONLinesSink {
	return &JSONLinesSink{path: path}
}

// Deliver appends the records.
func (s *JSONLinesSink) Deliver(ctx context.Context, recs []models.SuggestionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create sink directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open sink %s: %w", s.path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write suggestion %s: %w", r.ID, err)
		}
	}
	return nil
}

// MultiSink delivers to every sink, reporting the first error.
type MultiSink []Sink

// Deliver fans out to each sink.
func (m MultiSink) Deliver(ctx context.Context, recs []models.SuggestionRecord) error {
	var first error
	for _, s := range m {
		if err := s.Deliver(ctx, recs); err != nil && first == nil {
			first = err
		}
	}
	return first
}

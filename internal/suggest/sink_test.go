package suggest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/monica/pkg/models"
)

func TestJSONLinesSink_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "suggestions.jsonl")
	sink := NewJSONLinesSink(path)
	ctx := context.Background()

	first := []models.SuggestionRecord{{ID: "s1", TaskID: "T1", Window: window(tenAM, 0, "work")}}
	second := []models.SuggestionRecord{{ID: "s2", TaskID: "T2"}, {ID: "s3", TaskID: "T3"}}
	if err := sink.Deliver(ctx, first); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if err := sink.Deliver(ctx, second); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec models.SuggestionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) != 3 || ids[0] != "s1" || ids[2] != "s3" {
		t.Errorf("ids = %v", ids)
	}
}

func TestJSONLinesSink_EmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suggestions.jsonl")
	if err := NewJSONLinesSink(path).Deliver(context.Background(), nil); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("empty delivery should not create the file")
	}
}

type failingSink struct{ calls int }

func (s *failingSink) Deliver(ctx context.Context, recs []models.SuggestionRecord) error {
	s.calls++
	return errors.New("down")
}

func TestMultiSink_DeliversToAll(t *testing.T) {
	a, b := &failingSink{}, &failingSink{}
	err := MultiSink{a, LogSink{}, b}.Deliver(context.Background(), []models.SuggestionRecord{{ID: "s1"}})
	if err == nil {
		t.Error("expected first error")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d, %d; every sink should be tried", a.calls, b.calls)
	}
}

package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/monica/internal/budget"
	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/pkg/models"
)

type fakeSource struct {
	suggestions []models.SuggestionRecord
	entries     []models.LedgerEntry
	err         error

	gotResponse *models.SuggestionResponse
	gotLimit    int
}

func (f *fakeSource) ListSuggestions(response *models.SuggestionResponse) ([]models.SuggestionRecord, error) {
	f.gotResponse = response
	return f.suggestions, f.err
}

func (f *fakeSource) ListEntries(kind *models.OutcomeKind, limit int) ([]models.LedgerEntry, error) {
	f.gotLimit = limit
	return f.entries, nil
}

type fakeBudget struct {
	usage budget.Usage
}

func (f fakeBudget) Usage() budget.Usage { return f.usage }

func sampleSource() *fakeSource {
	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	return &fakeSource{
		suggestions: []models.SuggestionRecord{{
			ID:        "s1",
			TaskID:    "L1/T1",
			TaskTitle: "Write report",
			Seq:       1,
			OfferedAt: start.Add(-time.Hour),
			Window:    models.AvailabilityWindow{Start: start, End: start.Add(time.Hour), Source: "work"},
			Score:     0.82,
			Response:  models.ResponsePending,
		}},
		entries: []models.LedgerEntry{{
			Fingerprint: "L1/T0@2026-03-02T09:00:00Z",
			TaskID:      "L1/T0",
			Outcome:     models.SuccessorCreated("L1/T9"),
			RecordedAt:  start.Add(-5 * time.Hour),
		}},
	}
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestLoadSnapshot(t *testing.T) {
	src := sampleSource()
	guard := fakeBudget{usage: budget.Usage{Period: "2026-03", Spent: 4, Cap: 10, Percentage: 0.4}}

	snap := LoadSnapshot(src, guard, 25)

	if snap.Err != nil {
		t.Fatalf("unexpected error: %v", snap.Err)
	}
	if src.gotResponse == nil || *src.gotResponse != models.ResponsePending {
		t.Errorf("expected pending filter, got %v", src.gotResponse)
	}
	if src.gotLimit != 25 {
		t.Errorf("expected ledger limit 25, got %d", src.gotLimit)
	}
	if len(snap.Pending) != 1 || len(snap.Ledger) != 1 {
		t.Errorf("expected 1 pending and 1 entry, got %d and %d", len(snap.Pending), len(snap.Ledger))
	}
	if snap.Usage == nil || snap.Usage.Spent != 4 {
		t.Errorf("expected usage to be captured, got %+v", snap.Usage)
	}
}

func TestLoadSnapshot_NoBudgetAndError(t *testing.T) {
	src := &fakeSource{err: errors.New("database is locked")}

	snap := LoadSnapshot(src, nil, 10)

	if snap.Usage != nil {
		t.Error("expected no usage without a budget reporter")
	}
	if snap.Err == nil || !strings.Contains(snap.Err.Error(), "database is locked") {
		t.Errorf("expected wrapped source error, got %v", snap.Err)
	}
}

func TestNewDashboard_Defaults(t *testing.T) {
	d := NewDashboard(Config{Source: &fakeSource{}})

	if d.cfg.RefreshRate != DefaultRefreshRate {
		t.Errorf("expected default refresh rate, got %v", d.cfg.RefreshRate)
	}
	if d.cfg.LedgerLimit != DefaultLedgerLimit {
		t.Errorf("expected default ledger limit, got %d", d.cfg.LedgerLimit)
	}
	if d.tabs.Active() != TabIndexSuggestions {
		t.Errorf("expected suggestions tab first, got %d", d.tabs.Active())
	}
	if !d.suggestions.Focused() {
		t.Error("expected suggestions table to have focus")
	}
}

func TestDashboard_SnapshotRendersTables(t *testing.T) {
	src := sampleSource()
	d := NewDashboard(Config{Source: src, Location: time.UTC})
	d.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	_, cmd := d.Update(SnapshotMsg{Snapshot: LoadSnapshot(src, nil, 10)})
	if cmd == nil {
		t.Error("expected a refresh to be scheduled after a snapshot")
	}

	view := d.View()
	if !strings.Contains(view, "Write report") {
		t.Errorf("suggestions tab should list the pending task, got:\n%s", view)
	}
	if !strings.Contains(view, "14:00-15:00") {
		t.Errorf("suggestions tab should show the window, got:\n%s", view)
	}

	d.Update(keyMsg("2"))
	view = d.View()
	if !strings.Contains(view, "SuccessorCreated(L1/T9)") {
		t.Errorf("ledger tab should show the outcome, got:\n%s", view)
	}
}

func TestDashboard_OnlyOneRefreshTimer(t *testing.T) {
	src := sampleSource()
	d := NewDashboard(Config{Source: src})

	_, first := d.Update(SnapshotMsg{Snapshot: LoadSnapshot(src, nil, 10)})
	_, second := d.Update(SnapshotMsg{Snapshot: LoadSnapshot(src, nil, 10)})

	if first == nil {
		t.Fatal("expected the first snapshot to schedule a refresh")
	}
	if second != nil {
		t.Error("a second snapshot must not start another timer")
	}

	_, cmd := d.Update(refreshMsg{})
	if cmd == nil {
		t.Fatal("refresh should trigger a load")
	}
	if _, ok := cmd().(SnapshotMsg); !ok {
		t.Error("refresh load should produce a SnapshotMsg")
	}
}

func TestDashboard_SnapshotError(t *testing.T) {
	d := NewDashboard(Config{Source: &fakeSource{}})
	d.Update(SnapshotMsg{Snapshot: Snapshot{Err: errors.New("boom"), At: time.Now()}})

	if !strings.Contains(d.View(), "Error: boom") {
		t.Errorf("expected error in view, got:\n%s", d.View())
	}
}

func TestDashboard_BudgetHeader(t *testing.T) {
	usage := budget.Usage{Period: "2026-03", Spent: 8.5, Cap: 10, Percentage: 0.85, Status: budget.StatusWarning}
	d := NewDashboard(Config{Source: &fakeSource{}})
	d.Update(SnapshotMsg{Snapshot: Snapshot{Usage: &usage, At: time.Now()}})

	view := d.View()
	for _, want := range []string{"Budget 2026-03", "$8.50 / $10.00", "85%", "Warning"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in header, got:\n%s", want, view)
		}
	}
}

func TestDashboard_DisabledBudget(t *testing.T) {
	usage := budget.Usage{Period: "2026-03", Cap: 0, Percentage: 1, Status: budget.StatusExhausted}
	d := NewDashboard(Config{Source: &fakeSource{}})
	d.Update(SnapshotMsg{Snapshot: Snapshot{Usage: &usage, At: time.Now()}})

	if !strings.Contains(d.View(), "model calls disabled") {
		t.Errorf("expected disabled notice, got:\n%s", d.View())
	}
}

func TestDashboard_TabSwitching(t *testing.T) {
	d := NewDashboard(Config{Source: &fakeSource{}})

	d.Update(keyMsg("3"))
	if d.tabs.Active() != TabIndexEvents {
		t.Fatalf("expected events tab, got %d", d.tabs.Active())
	}
	if !d.logs.focused || d.suggestions.Focused() {
		t.Error("focus should follow the active tab")
	}

	d.Update(keyMsg("tab"))
	if d.tabs.Active() != TabIndexSuggestions {
		t.Errorf("tab should wrap to suggestions, got %d", d.tabs.Active())
	}
}

func TestDashboard_Quit(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			d := NewDashboard(Config{Source: &fakeSource{}})
			_, cmd := d.Update(keyMsg(key))
			if cmd == nil {
				t.Fatal("expected quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Error("expected tea.QuitMsg")
			}
			if d.View() != "" {
				t.Error("view should be empty after quitting")
			}
		})
	}
}

func TestDashboard_EventsFeedLog(t *testing.T) {
	ch := make(chan events.Event, 1)
	d := NewDashboard(Config{Source: &fakeSource{}, Events: ch})

	ch <- events.Event{Type: events.SuggestionOffered, TaskID: "L1/T1", Message: "offered Write report"}
	msg := d.waitForEvent()()
	ev, ok := msg.(EventMsg)
	if !ok {
		t.Fatalf("expected EventMsg, got %T", msg)
	}

	_, cmd := d.Update(ev)
	if cmd == nil {
		t.Error("expected to keep listening for events")
	}
	if d.logs.LogCount() != 1 {
		t.Fatalf("expected 1 log entry, got %d", d.logs.LogCount())
	}

	close(ch)
	if _, ok := d.waitForEvent()().(eventsClosedMsg); !ok {
		t.Error("closed channel should report eventsClosedMsg")
	}
	d.Update(eventsClosedMsg{})
	if d.waitForEvent() != nil {
		t.Error("no listener should run after the channel closed")
	}
}

func TestDashboard_NoEventsChannel(t *testing.T) {
	d := NewDashboard(Config{Source: &fakeSource{}})
	if d.waitForEvent() != nil {
		t.Error("expected nil command without an events channel")
	}
}

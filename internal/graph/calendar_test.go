package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

func at(day, hour, minute int) time.Time {
	// March 2026: the 2nd is a Monday.
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func nineToSix() WorkingHours {
	return WorkingHours{Start: 9 * time.Hour, End: 18 * time.Hour, Location: time.UTC, SkipWeekends: true}
}

func TestParseWorkingHours(t *testing.T) {
	wh, err := ParseWorkingHours("09:30", "17:00", "UTC", true)
	if err != nil {
		t.Fatalf("ParseWorkingHours() error = %v", err)
	}
	if wh.Start != 9*time.Hour+30*time.Minute || wh.End != 17*time.Hour {
		t.Errorf("hours = %v-%v", wh.Start, wh.End)
	}
	if _, err := ParseWorkingHours("18:00", "09:00", "", false); err == nil {
		t.Error("end before start should fail")
	}
	if _, err := ParseWorkingHours("9am", "17:00", "", false); err == nil {
		t.Error("malformed time should fail")
	}
}

func TestMergeIntervals(t *testing.T) {
	got := MergeIntervals([]Interval{
		{at(2, 13, 0), at(2, 14, 0)},
		{at(2, 9, 0), at(2, 10, 0)},
		{at(2, 9, 30), at(2, 11, 0)},
		{at(2, 11, 0), at(2, 11, 30)},
	})
	want := []Interval{{at(2, 9, 0), at(2, 11, 30)}, {at(2, 13, 0), at(2, 14, 0)}}
	if len(got) != len(want) {
		t.Fatalf("MergeIntervals() = %v", got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("interval %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFreeWindows(t *testing.T) {
	busy := []Interval{
		{at(2, 10, 0), at(2, 11, 0)},
		{at(2, 11, 0), at(2, 12, 0)},
		{at(2, 12, 10), at(2, 17, 0)},
	}

	got := FreeWindows(at(2, 8, 0), at(2, 20, 0), busy, nineToSix(), 15*time.Minute, "work")
	want := []models.AvailabilityWindow{
		{Start: at(2, 9, 0), End: at(2, 10, 0), Source: "work"},
		{Start: at(2, 17, 0), End: at(2, 18, 0), Source: "work"},
	}
	if len(got) != len(want) {
		t.Fatalf("FreeWindows() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFreeWindows_ClampsToRange(t *testing.T) {
	got := FreeWindows(at(2, 14, 0), at(2, 15, 30), nil, nineToSix(), 0, "work")
	if len(got) != 1 || !got[0].Start.Equal(at(2, 14, 0)) || !got[0].End.Equal(at(2, 15, 30)) {
		t.Errorf("FreeWindows() = %v", got)
	}
}

func TestFreeWindows_SkipsWeekends(t *testing.T) {
	// Friday 6th to Monday 9th.
	got := FreeWindows(at(6, 17, 0), at(9, 10, 0), nil, nineToSix(), 0, "work")
	if len(got) != 2 {
		t.Fatalf("FreeWindows() = %v, want Friday and Monday windows", got)
	}
	if got[0].Start.Weekday() != time.Friday || got[1].Start.Weekday() != time.Monday {
		t.Errorf("windows on %v and %v", got[0].Start.Weekday(), got[1].Start.Weekday())
	}
}

func TestFreeWindows_OverlappingBusyCoveringDay(t *testing.T) {
	busy := []Interval{{at(2, 8, 0), at(2, 19, 0)}}
	if got := FreeWindows(at(2, 0, 0), at(3, 0, 0), busy, nineToSix(), 0, "work"); len(got) != 0 {
		t.Errorf("FreeWindows() = %v, want none", got)
	}
}

func TestCalendarSource_ListWindows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me/calendarView", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != `outlook.timezone="UTC"` {
			t.Errorf("Prefer = %q", r.Header.Get("Prefer"))
		}
		json.NewEncoder(w).Encode(page[event]{Value: []event{
			{Subject: "Standup", ShowAs: "busy",
				Start: &dateTimeTimeZone{DateTime: "2026-03-02T09:00:00.0000000", TimeZone: "UTC"},
				End:   &dateTimeTimeZone{DateTime: "2026-03-02T12:00:00.0000000", TimeZone: "UTC"}},
			{Subject: "Optional", ShowAs: "free",
				Start: &dateTimeTimeZone{DateTime: "2026-03-02T12:00:00.0000000", TimeZone: "UTC"},
				End:   &dateTimeTimeZone{DateTime: "2026-03-02T13:00:00.0000000", TimeZone: "UTC"}},
			{Subject: "Cancelled", ShowAs: "busy", IsCancelled: true,
				Start: &dateTimeTimeZone{DateTime: "2026-03-02T13:00:00.0000000", TimeZone: "UTC"},
				End:   &dateTimeTimeZone{DateTime: "2026-03-02T14:00:00.0000000", TimeZone: "UTC"}},
		}})
	})
	mux.HandleFunc("GET /me/calendars/{id}/calendarView", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "focus-cal" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(page[event]{Value: []event{
			{Subject: "Focus", ShowAs: "free",
				Start: &dateTimeTimeZone{DateTime: "2026-03-02T12:30:00.0000000", TimeZone: "UTC"},
				End:   &dateTimeTimeZone{DateTime: "2026-03-02T13:30:00.0000000", TimeZone: "UTC"}},
		}})
	})

	src := NewCalendarSource(newTestClient(t, mux), []Calendar{
		{Name: "work", Kind: KindBusy},
		{Name: "focus", ID: "focus-cal", Kind: KindFree},
	}, nineToSix(), 15*time.Minute)

	windows, err := src.ListWindows(context.Background(), at(2, 9, 0), at(2, 15, 0))
	if err != nil {
		t.Fatalf("ListWindows() error = %v", err)
	}
	want := []models.AvailabilityWindow{
		{Start: at(2, 12, 0), End: at(2, 15, 0), Source: "work"},
		{Start: at(2, 12, 30), End: at(2, 13, 30), Source: "focus"},
	}
	if len(windows) != len(want) {
		t.Fatalf("ListWindows() = %v, want %v", windows, want)
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Errorf("window %d = %v, want %v", i, windows[i], want[i])
		}
	}
}

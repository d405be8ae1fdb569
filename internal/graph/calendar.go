package graph

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ShayCichocki/monica/internal/taskstore"
	"github.com/ShayCichocki/monica/pkg/models"
)

// Calendar kinds.
const (
	// KindBusy calendars block time; free windows are the gaps.
	KindBusy = "busy"
	// KindFree calendars hold events that are themselves offered windows.
	KindFree = "free"
)

// Calendar is one calendar consulted for availability.
type Calendar struct {
	// Name is the window source reported for this calendar.
	Name string
	// ID is the Graph calendar ID; empty means the default calendar.
	ID   string
	Kind string
}

// WorkingHours bounds the free windows derived from busy calendars.
type WorkingHours struct {
	Start        time.Duration // offset from local midnight
	End          time.Duration
	Location     *time.Location
	SkipWeekends bool
}

// ParseWorkingHours builds WorkingHours from "HH:MM" bounds and a zone name.
func ParseWorkingHours(start, end, zone string, skipWeekends bool) (WorkingHours, error) {
	wh := WorkingHours{Location: time.UTC, SkipWeekends: skipWeekends}
	var err error
	if wh.Start, err = parseClock(start); err != nil {
		return wh, err
	}
	if wh.End, err = parseClock(end); err != nil {
		return wh, err
	}
	if wh.End <= wh.Start {
		return wh, fmt.Errorf("workday end %s is not after start %s", end, start)
	}
	if zone != "" {
		if wh.Location, err = time.LoadLocation(zone); err != nil {
			return wh, fmt.Errorf("load time zone %q: %w", zone, err)
		}
	}
	return wh, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Interval is a half-open time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// MergeIntervals sorts and coalesces overlapping or touching intervals.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// FreeWindows returns the gaps between busy intervals inside working hours
// within [from, to]. Gaps shorter than minWindow are dropped.
func FreeWindows(from, to time.Time, busy []Interval, hours WorkingHours, minWindow time.Duration, source string) []models.AvailabilityWindow {
	loc := hours.Location
	if loc == nil {
		loc = time.UTC
	}
	merged := MergeIntervals(busy)

	var windows []models.AvailabilityWindow
	y, m, d := from.In(loc).Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, loc); day.Before(to); day = day.AddDate(0, 0, 1) {
		if hours.SkipWeekends && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		start := maxTime(day.Add(hours.Start), from)
		end := minTime(day.Add(hours.End), to)
		if !start.Before(end) {
			continue
		}

		cursor := start
		for _, b := range merged {
			if !b.End.After(cursor) {
				continue
			}
			if !b.Start.Before(end) {
				break
			}
			if b.Start.After(cursor) {
				windows = appendWindow(windows, cursor, b.Start, minWindow, source)
			}
			cursor = b.End
			if !cursor.Before(end) {
				break
			}
		}
		if cursor.Before(end) {
			windows = appendWindow(windows, cursor, end, minWindow, source)
		}
	}
	return windows
}

func appendWindow(ws []models.AvailabilityWindow, start, end time.Time, minLen time.Duration, source string) []models.AvailabilityWindow {
	if end.Sub(start) < minLen {
		return ws
	}
	return append(ws, models.AvailabilityWindow{Start: start.UTC(), End: end.UTC(), Source: source})
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// CalendarSource implements taskstore.AvailabilitySource over Graph
// calendars.
type CalendarSource struct {
	client    *Client
	calendars []Calendar
	hours     WorkingHours
	minWindow time.Duration
}

var _ taskstore.AvailabilitySource = (*CalendarSource)(nil)

// NewCalendarSource creates an availability source. Windows derived from
// busy calendars are attributed to the first busy calendar.
func NewCalendarSource(client *Client, calendars []Calendar, hours WorkingHours, minWindow time.Duration) *CalendarSource {
	return &CalendarSource{client: client, calendars: calendars, hours: hours, minWindow: minWindow}
}

type event struct {
	Subject     string            `json:"subject"`
	ShowAs      string            `json:"showAs"`
	IsCancelled bool              `json:"isCancelled"`
	Start       *dateTimeTimeZone `json:"start"`
	End         *dateTimeTimeZone `json:"end"`
}

// ListWindows returns free windows in [from, to] ordered by start.
func (s *CalendarSource) ListWindows(ctx context.Context, from, to time.Time) ([]models.AvailabilityWindow, error) {
	var busy []Interval
	var windows []models.AvailabilityWindow
	busySource := ""

	for _, cal := range s.calendars {
		intervals, err := s.events(ctx, cal, from, to)
		if err != nil {
			return nil, err
		}
		switch cal.Kind {
		case KindFree:
			for _, iv := range intervals {
				if iv.End.Sub(iv.Start) >= s.minWindow {
					windows = append(windows, models.AvailabilityWindow{Start: iv.Start, End: iv.End, Source: cal.Name})
				}
			}
		default:
			if busySource == "" {
				busySource = cal.Name
			}
			busy = append(busy, intervals...)
		}
	}

	if busySource != "" {
		windows = append(windows, FreeWindows(from, to, busy, s.hours, s.minWindow, busySource)...)
	}
	return taskstore.ClipWindows(windows, from, to), nil
}

// events fetches the calendar view of one calendar as intervals, skipping
// cancelled events and, on busy calendars, events shown as free.
func (s *CalendarSource) events(ctx context.Context, cal Calendar, from, to time.Time) ([]Interval, error) {
	base := s.client.userPath() + "/calendarView"
	if cal.ID != "" {
		base = fmt.Sprintf("%s/calendars/%s/calendarView", s.client.userPath(), url.PathEscape(cal.ID))
	}
	q := url.Values{}
	q.Set("startDateTime", from.UTC().Format(time.RFC3339))
	q.Set("endDateTime", to.UTC().Format(time.RFC3339))
	q.Set("$select", "subject,start,end,showAs,isCancelled")
	path := base + "?" + q.Encode()

	var intervals []Interval
	for path != "" {
		var p page[event]
		if err := s.client.do(ctx, "GET", path, nil, &p, "Prefer", `outlook.timezone="UTC"`); err != nil {
			return nil, fmt.Errorf("calendar view %s: %w", cal.Name, err)
		}
		for _, e := range p.Value {
			if e.IsCancelled || e.Start == nil || e.End == nil {
				continue
			}
			if cal.Kind != KindFree && strings.EqualFold(e.ShowAs, "free") {
				continue
			}
			start, err := e.Start.Time()
			if err != nil {
				continue
			}
			end, err := e.End.Time()
			if err != nil || !end.After(start) {
				continue
			}
			intervals = append(intervals, Interval{Start: start, End: end})
		}
		path = p.NextLink
	}
	return intervals, nil
}

package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestTaskState_Valid(t *testing.T) {
	tests := []struct {
		name  string
		state TaskState
		want  bool
	}{
		{"open is valid", TaskStateOpen, true},
		{"completed is valid", TaskStateCompleted, true},
		{"empty string is invalid", TaskState(""), false},
		{"unknown state is invalid", TaskState("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Valid(); got != tt.want {
				t.Errorf("TaskState(%q).Valid() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestTask_HasCategory(t *testing.T) {
	task := Task{Categories: []string{"[00] System", "[01] Self"}}

	if !task.HasCategory("[01] Self") {
		t.Error("expected category [01] Self to be present")
	}
	if task.HasCategory("[05] Family") {
		t.Error("unexpected category [05] Family")
	}
}

func TestTaskTemplate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    TaskTemplate
		wantErr bool
	}{
		{"valid", TaskTemplate{Title: "Draft report (next)"}, false},
		{"empty title", TaskTemplate{}, true},
		{"title too long", TaskTemplate{Title: strings.Repeat("x", 256)}, true},
		{"negative estimate", TaskTemplate{Title: "x", EstimatedDuration: -time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tmpl.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if _, ok := IsFailed(err); !ok {
					t.Errorf("validation error should be permanent, got %v", err)
				}
			}
		})
	}
}

func TestNewFingerprint_BucketsToMinute(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	a := NewFingerprint("T1", base.Add(5*time.Second))
	b := NewFingerprint("T1", base.Add(59*time.Second))
	c := NewFingerprint("T1", base.Add(61*time.Second))

	if a != b {
		t.Errorf("same minute should share fingerprint: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("different minutes should differ: %q", a)
	}
	if want := Fingerprint("T1@2026-03-02T09:00:00Z"); a != want {
		t.Errorf("fingerprint = %q, want %q", a, want)
	}
}

func TestNewFingerprint_NormalizesTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	utc := time.Date(2026, 3, 2, 9, 0, 30, 0, time.UTC)

	if NewFingerprint("T1", utc) != NewFingerprint("T1", utc.In(loc)) {
		t.Error("fingerprint should not depend on the reporting timezone")
	}
}

func TestCompletionEvent_FingerprintIgnoresEventID(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	first := CompletionEvent{EventID: "delivery-1", TaskID: "T1", CompletedAt: at}
	second := CompletionEvent{EventID: "delivery-2", TaskID: "T1", CompletedAt: at.Add(10 * time.Second)}

	if first.Fingerprint() != second.Fingerprint() {
		t.Error("redeliveries of one completion should share a fingerprint")
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{SuccessorCreated("abc"), "SuccessorCreated(abc)"},
		{NoSuccessorNeeded(), "NoSuccessorNeeded"},
		{FailedOutcome("bad title"), "Failed(bad title)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.outcome.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSuggestionResponse_Final(t *testing.T) {
	tests := []struct {
		response SuggestionResponse
		final    bool
	}{
		{ResponsePending, false},
		{ResponseExpired, false},
		{ResponseAccepted, true},
		{ResponseDeclined, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.response), func(t *testing.T) {
			if !tt.response.Valid() {
				t.Fatalf("%q should be valid", tt.response)
			}
			if got := tt.response.Final(); got != tt.final {
				t.Errorf("Final() = %v, want %v", got, tt.final)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	cause := errors.New("connection reset")
	err := Retryable(cause)

	if !errors.Is(err, ErrRetryable) {
		t.Error("expected ErrRetryable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
	if !IsRetryable(fmt.Errorf("get task T1: %w", err)) {
		t.Error("wrapped retryable error should stay retryable")
	}
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
	if Retryable(err) != err {
		t.Error("Retryable should not double wrap")
	}
}

func TestIsRetryable_DeadlineExceeded(t *testing.T) {
	if !IsRetryable(fmt.Errorf("list tasks: %w", context.DeadlineExceeded)) {
		t.Error("timeouts should map to retryable")
	}
	if IsRetryable(ErrNotFound) {
		t.Error("not found must not be retryable")
	}
}

func TestIsFailed(t *testing.T) {
	reason, ok := IsFailed(fmt.Errorf("create: %w", Failed("invalid list")))
	if !ok || reason != "invalid list" {
		t.Errorf("IsFailed() = (%q, %v), want (\"invalid list\", true)", reason, ok)
	}
	if _, ok := IsFailed(ErrNotFound); ok {
		t.Error("ErrNotFound is not a permanent failure")
	}
}

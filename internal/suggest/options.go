package suggest

import (
	"context"
	"time"

	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/internal/taskstore"
	"github.com/ShayCichocki/monica/pkg/models"
)

// Defaults for an unconfigured engine.
const (
	DefaultHorizon             = 4 * time.Hour
	DefaultExpiry              = 2 * time.Hour
	DefaultMaxOffers           = 2
	DefaultMinScore            = 0.5
	DefaultTaskStoreTimeout    = 10 * time.Second
	DefaultAvailabilityTimeout = 10 * time.Second
)

// BudgetGate reports whether model spend is exhausted for the period.
type BudgetGate interface {
	Exhausted() bool
}

// FitAdvisor estimates how well a task suits a window. ok is false when
// the budget refused the call.
type FitAdvisor interface {
	Fit(ctx context.Context, task *models.Task, window models.AvailabilityWindow) (fit float64, ok bool, err error)
}

// RequiredConfig contains the collaborators an Engine cannot run without.
type RequiredConfig struct {
	Tasks        taskstore.Client
	Availability taskstore.AvailabilitySource
	History      state.SuggestionStore
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

type engineOptions struct {
	matcher             MatcherConfig
	horizon             time.Duration
	expiry              time.Duration
	maxOffers           int
	minScore            float64
	budget              BudgetGate
	advisor             FitAdvisor
	advisorWeight       float64
	taskStoreTimeout    time.Duration
	availabilityTimeout time.Duration
	emitter             *events.Emitter
}

// WithMatcher sets the scoring configuration.
func WithMatcher(cfg MatcherConfig) Option {
	return func(o *engineOptions) { o.matcher = cfg }
}

// WithHorizon sets how far ahead of now windows are considered.
func WithHorizon(d time.Duration) Option {
	return func(o *engineOptions) { o.horizon = d }
}

// WithExpiry sets how long a suggestion stays Pending.
func WithExpiry(d time.Duration) Option {
	return func(o *engineOptions) { o.expiry = d }
}

// WithMaxOffers caps how many times a task is ever offered.
func WithMaxOffers(n int) Option {
	return func(o *engineOptions) { o.maxOffers = n }
}

// WithMinScore sets the minimum fit for a suggestion.
func WithMinScore(s float64) Option {
	return func(o *engineOptions) { o.minScore = s }
}

// WithBudget gates the tick on model spend.
func WithBudget(b BudgetGate) Option {
	return func(o *engineOptions) { o.budget = b }
}

// WithAdvisor blends a model fit estimate into the best candidate's score
// with the given weight in [0,1].
func WithAdvisor(a FitAdvisor, weight float64) Option {
	return func(o *engineOptions) {
		o.advisor = a
		o.advisorWeight = clamp01(weight)
	}
}

// WithTimeouts bounds task store and availability calls.
func WithTimeouts(taskStore, availability time.Duration) Option {
	return func(o *engineOptions) {
		o.taskStoreTimeout = taskStore
		o.availabilityTimeout = availability
	}
}

// WithEmitter publishes engine activity.
func WithEmitter(e *events.Emitter) Option {
	return func(o *engineOptions) { o.emitter = e }
}

// Package suggest matches open tasks to free time and offers each task at
// most once per expiry cycle.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/internal/taskstore"
	"github.com/ShayCichocki/monica/pkg/models"
)

// ErrNotPending is returned when responding to a task whose latest
// suggestion is no longer awaiting a response.
var ErrNotPending = errors.New("no pending suggestion")

// Engine runs heartbeat ticks and records operator responses.
type Engine struct {
	tasks        taskstore.Client
	availability taskstore.AvailabilitySource
	history      state.SuggestionStore
	matcher      *Matcher

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

// NewEngine creates a suggestion engine.
func NewEngine(req RequiredConfig, opts ...Option) *Engine {
	o := engineOptions{
		matcher:             DefaultMatcherConfig(),
		horizon:             DefaultHorizon,
		expiry:              DefaultExpiry,
		maxOffers:           DefaultMaxOffers,
		minScore:            DefaultMinScore,
		taskStoreTimeout:    DefaultTaskStoreTimeout,
		availabilityTimeout: DefaultAvailabilityTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxOffers < 1 {
		o.maxOffers = 1
	}

	return &Engine{
		tasks:               req.Tasks,
		availability:        req.Availability,
		history:             req.History,
		matcher:             NewMatcher(o.matcher),
		horizon:             o.horizon,
		expiry:              o.expiry,
		maxOffers:           o.maxOffers,
		minScore:            o.minScore,
		budget:              o.budget,
		advisor:             o.advisor,
		advisorWeight:       o.advisorWeight,
		taskStoreTimeout:    o.taskStoreTimeout,
		availabilityTimeout: o.availabilityTimeout,
		emitter:             o.emitter,
	}
}

// candidate is the best window found for one task.
type candidate struct {
	task   models.Task
	window models.AvailabilityWindow
	score  float64
}

// Tick expires stale offers, then offers each eligible open task its best
// window. The returned records were all written as Pending and are valid
// even when an error is also returned.
func (e *Engine) Tick(ctx context.Context, now time.Time) ([]models.SuggestionRecord, error) {
	// A task whose offer expires now is first offered again on a later tick.
	justExpired, err := e.expire(now)
	if err != nil {
		return nil, err
	}

	if e.budget != nil && e.budget.Exhausted() {
		log.Printf("[suggest] budget exhausted, skipping suggestions this tick")
		e.emitter.Emit(events.Event{Type: events.TickSkipped, Message: "budget exhausted", Timestamp: now})
		return nil, nil
	}

	windows, err := e.listWindows(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, nil
	}

	open, err := e.listOpen(ctx)
	if err != nil {
		return nil, err
	}

	summaries, err := e.history.SuggestionSummaries()
	if err != nil {
		return nil, fmt.Errorf("load suggestion history: %w", models.Retryable(err))
	}

	var candidates []candidate
	for _, task := range open {
		if !task.IsOpen() || justExpired[task.ID] || !e.eligible(summaries, task.ID) {
			continue
		}
		if c, ok := e.best(ctx, task, windows, now); ok {
			candidates = append(candidates, c)
		}
	}

	var offered []models.SuggestionRecord
	var errs []error
	for _, c := range candidates {
		rec := models.SuggestionRecord{
			ID:        uuid.New().String(),
			TaskID:    c.task.ID,
			TaskTitle: c.task.Title,
			OfferedAt: now.UTC(),
			Window:    c.window,
			Score:     c.score,
		}
		ok, err := e.history.OfferSuggestion(&rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			// Another invocation offered first.
			continue
		}
		log.Printf("[suggest] offered %q in %s (score %.2f)", c.task.Title, c.window, c.score)
		e.emitter.Emit(events.Event{
			Type:      events.SuggestionOffered,
			TaskID:    c.task.ID,
			TaskTitle: c.task.Title,
			Message:   c.window.String(),
			Timestamp: now,
		})
		offered = append(offered, rec)
	}

	if len(errs) > 0 {
		return offered, fmt.Errorf("offer suggestions: %w", models.Retryable(errors.Join(errs...)))
	}
	return offered, nil
}

// ExpireStale moves Pending offers older than the expiry to Expired and
// returns how many it moved.
func (e *Engine) ExpireStale(now time.Time) (int, error) {
	expired, err := e.expire(now)
	return len(expired), err
}

func (e *Engine) expire(now time.Time) (map[string]bool, error) {
	pending := models.ResponsePending
	recs, err := e.history.ListSuggestions(&pending)
	if err != nil {
		return nil, fmt.Errorf("list pending suggestions: %w", models.Retryable(err))
	}
	expired := make(map[string]bool)
	for _, rec := range recs {
		if now.Sub(rec.OfferedAt) < e.expiry {
			continue
		}
		ok, err := e.history.TransitionSuggestion(rec.ID, models.ResponsePending, models.ResponseExpired, now.UTC())
		if err != nil {
			return expired, fmt.Errorf("expire suggestion for task %s: %w", rec.TaskID, models.Retryable(err))
		}
		if ok {
			expired[rec.TaskID] = true
			log.Printf("[suggest] suggestion for %q expired unanswered", rec.TaskTitle)
			e.emitter.Emit(events.Event{
				Type:      events.SuggestionExpired,
				TaskID:    rec.TaskID,
				TaskTitle: rec.TaskTitle,
				Timestamp: now,
			})
		}
	}
	return expired, nil
}

// eligible reports whether a task may be offered: it has never been
// offered, or its latest offer expired and the offer cap is not reached.
func (e *Engine) eligible(summaries map[string]state.SuggestionSummary, taskID string) bool {
	s, ok := summaries[taskID]
	if !ok {
		return true
	}
	return s.Latest.Response == models.ResponseExpired && s.Offers < e.maxOffers
}

// best picks the highest scoring window at or above the minimum score.
// windows are sorted by start then source, so the first of equal scores
// wins the tie.
func (e *Engine) best(ctx context.Context, task models.Task, windows []models.AvailabilityWindow, now time.Time) (candidate, bool) {
	var c candidate
	found := false
	for _, w := range windows {
		score, ok := e.matcher.Score(&task, w, now)
		if !ok || score < e.minScore {
			continue
		}
		if !found || score > c.score {
			c = candidate{task: task, window: w, score: score}
			found = true
		}
	}
	if !found || e.advisor == nil || e.advisorWeight == 0 {
		return c, found
	}

	fit, ok, err := e.advisor.Fit(ctx, &task, c.window)
	if err != nil {
		log.Printf("[suggest] advisor unavailable for task %s, using rule score: %v", task.ID, err)
		return c, true
	}
	if !ok {
		return c, true
	}
	c.score = (1-e.advisorWeight)*c.score + e.advisorWeight*fit
	return c, c.score >= e.minScore
}

func (e *Engine) listWindows(ctx context.Context, now time.Time) ([]models.AvailabilityWindow, error) {
	ctx, cancel := context.WithTimeout(ctx, e.availabilityTimeout)
	defer cancel()

	from, to := now, now.Add(e.horizon)
	windows, err := e.availability.ListWindows(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list availability windows: %w", models.Retryable(err))
	}
	return taskstore.ClipWindows(windows, from, to), nil
}

func (e *Engine) listOpen(ctx context.Context) ([]models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, e.taskStoreTimeout)
	defer cancel()

	tasks, err := e.tasks.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", models.Retryable(err))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// Respond records the operator's answer to a task's pending suggestion.
// Only Accepted and Declined are valid answers; either is final.
func (e *Engine) Respond(taskID string, response models.SuggestionResponse, at time.Time) (*models.SuggestionRecord, error) {
	if !response.Final() {
		return nil, models.Failed(fmt.Sprintf("response must be accepted or declined, got %q", response))
	}

	latest, err := e.history.LatestSuggestion(taskID)
	if err != nil {
		return nil, fmt.Errorf("respond to task %s: %w", taskID, models.Retryable(err))
	}
	if latest == nil {
		return nil, fmt.Errorf("respond to task %s: %w", taskID, models.ErrNotFound)
	}
	if latest.Response != models.ResponsePending {
		return nil, fmt.Errorf("respond to task %s: %w (latest is %s)", taskID, ErrNotPending, latest.Response)
	}

	ok, err := e.history.TransitionSuggestion(latest.ID, models.ResponsePending, response, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("respond to task %s: %w", taskID, models.Retryable(err))
	}
	if !ok {
		return nil, fmt.Errorf("respond to task %s: %w", taskID, ErrNotPending)
	}

	respondedAt := at.UTC()
	latest.Response = response
	latest.RespondedAt = &respondedAt
	log.Printf("[suggest] task %s: suggestion %s", taskID, response)
	e.emitter.Emit(events.Event{
		Type:      events.SuggestionResponded,
		TaskID:    taskID,
		TaskTitle: latest.TaskTitle,
		Message:   string(response),
		Timestamp: at,
	})
	return latest, nil
}

// Package chain creates successor tasks exactly once per logical
// completion, however many times the completion is delivered.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/internal/rules"
	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/internal/taskstore"
	"github.com/ShayCichocki/monica/pkg/models"
)

// ErrClaimHeld is returned, wrapped as retryable, when another invocation
// is handling the same fingerprint.
var ErrClaimHeld = errors.New("completion is being handled by another invocation")

// errUnrecorded marks a successor that exists but whose outcome could not
// be written. The claim is kept so redeliveries within the lease back off.
var errUnrecorded = errors.New("successor created but outcome not recorded")

// Engine handles completion events.
type Engine struct {
	tasks    taskstore.Client
	ledger   state.LedgerStore
	resolver *rules.Resolver

	classifier       TagClassifier
	taskStoreTimeout time.Duration
	claimLease       time.Duration
	owner            string
	now              func() time.Time
	emitter          *events.Emitter
}

// NewEngine creates a chaining engine.
func NewEngine(req RequiredConfig, opts ...Option) *Engine {
	o := engineOptions{
		taskStoreTimeout: DefaultTaskStoreTimeout,
		claimLease:       DefaultClaimLease,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.owner == "" {
		o.owner = uuid.New().String()
	}

	return &Engine{
		tasks:            req.Tasks,
		ledger:           req.Ledger,
		resolver:         req.Resolver,
		classifier:       o.classifier,
		taskStoreTimeout: o.taskStoreTimeout,
		claimLease:       o.claimLease,
		owner:            o.owner,
		now:              o.now,
		emitter:          o.emitter,
	}
}

// HandleCompletion processes one delivery of a completion event.
//
// A fingerprint with a recorded outcome is replayed without side effects.
// Otherwise the completed task is loaded, resolved against the rule table,
// and its successor created at most once. The returned error is nil for
// every recorded outcome, including Failed; it wraps models.ErrNotFound
// when the task is gone and is retryable when nothing was recorded and
// the delivery should be repeated.
func (e *Engine) HandleCompletion(ctx context.Context, ev models.CompletionEvent) (models.Outcome, error) {
	fp := ev.Fingerprint()

	existing, err := e.ledger.GetEntry(fp)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("completion %s: %w", fp, models.Retryable(err))
	}
	if existing != nil {
		log.Printf("[chain] %s: replaying recorded outcome %s (event %s)", fp, existing.Outcome, ev.EventID)
		e.emit(events.CompletionReplayed, ev, fp, existing.Outcome.String(), nil)
		replayed := existing.Outcome
		replayed.Replayed = true
		return replayed, nil
	}

	owner := e.owner + "/" + uuid.New().String()
	claimed, err := e.ledger.ClaimFingerprint(fp, owner, e.now(), e.claimLease)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("completion %s: %w", fp, models.Retryable(err))
	}
	if !claimed {
		err := fmt.Errorf("completion %s: %w", fp, models.Retryable(ErrClaimHeld))
		e.emit(events.CompletionRetryable, ev, fp, "claim held", err)
		return models.Outcome{}, err
	}

	outcome, err := e.process(ctx, ev, fp)
	if err != nil {
		// Nothing was recorded; let the next delivery try again.
		if !errors.Is(err, errUnrecorded) {
			if rerr := e.ledger.ReleaseClaim(fp, owner); rerr != nil {
				log.Printf("[chain] %s: release claim: %v", fp, rerr)
			}
		}
		if models.IsRetryable(err) {
			e.emit(events.CompletionRetryable, ev, fp, "retryable", err)
		}
		return models.Outcome{}, err
	}
	return outcome, nil
}

// process runs while the claim is held. An error means no outcome was
// recorded.
func (e *Engine) process(ctx context.Context, ev models.CompletionEvent, fp models.Fingerprint) (models.Outcome, error) {
	task, err := e.getTask(ctx, ev.TaskID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Printf("[chain] %s: task %s not found, nothing to chain", fp, ev.TaskID)
			return models.Outcome{}, fmt.Errorf("completion %s: %w", fp, err)
		}
		if reason, ok := models.IsFailed(err); ok {
			return e.record(ev, fp, models.FailedOutcome(reason))
		}
		return models.Outcome{}, fmt.Errorf("completion %s: %w", fp, models.Retryable(err))
	}

	tmpl, rule, err := e.resolve(ctx, task, ev.CompletedAt)
	if err != nil {
		reason, ok := models.IsFailed(err)
		if !ok {
			reason = err.Error()
		}
		return e.record(ev, fp, models.FailedOutcome(reason))
	}
	if tmpl == nil {
		return e.record(ev, fp, models.NoSuccessorNeeded())
	}

	successorID, err := e.createTask(ctx, tmpl)
	if err != nil {
		if reason, ok := models.IsFailed(err); ok {
			log.Printf("[chain] %s: rule %s: successor rejected: %s", fp, rule.Name, reason)
			return e.record(ev, fp, models.FailedOutcome(reason))
		}
		return models.Outcome{}, fmt.Errorf("completion %s: create successor: %w", fp, models.Retryable(err))
	}
	log.Printf("[chain] %s: rule %s created %q as %s", fp, rule.Name, tmpl.Title, successorID)

	return e.record(ev, fp, models.SuccessorCreated(successorID))
}

// resolve matches the task against the rule table. When no rule matches an
// untagged task, the classifier may supply a tag and resolution is retried
// once. Classifier failures fall back to the rule-only result.
func (e *Engine) resolve(ctx context.Context, task *models.Task, completedAt time.Time) (*models.TaskTemplate, *rules.ChainRule, error) {
	tmpl, rule, err := e.resolver.Resolve(task, completedAt)
	if err != nil || tmpl != nil {
		return tmpl, rule, err
	}
	if task.ChainTag != "" || e.classifier == nil {
		return nil, nil, nil
	}
	tags := e.resolver.Tags()
	if len(tags) == 0 {
		return nil, nil, nil
	}

	tag, err := e.classifier.ClassifyTag(ctx, task, tags)
	if err != nil {
		log.Printf("[chain] task %s: classifier unavailable, using rules only: %v", task.ID, err)
		return nil, nil, nil
	}
	if tag == "" {
		return nil, nil, nil
	}

	tagged := *task
	tagged.ChainTag = tag
	log.Printf("[chain] task %s: classified as %q", task.ID, tag)
	return e.resolver.Resolve(&tagged, completedAt)
}

func (e *Engine) getTask(ctx context.Context, id string) (*models.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, e.taskStoreTimeout)
	defer cancel()
	return e.tasks.Get(ctx, id)
}

func (e *Engine) createTask(ctx context.Context, tmpl *models.TaskTemplate) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.taskStoreTimeout)
	defer cancel()
	return e.tasks.Create(ctx, tmpl)
}

// record writes the terminal outcome. If a concurrent invocation whose claim
// had expired recorded first, its outcome wins and is returned.
func (e *Engine) record(ev models.CompletionEvent, fp models.Fingerprint, outcome models.Outcome) (models.Outcome, error) {
	entry := &models.LedgerEntry{
		Fingerprint: fp,
		TaskID:      ev.TaskID,
		EventID:     ev.EventID,
		Outcome:     outcome,
		RecordedAt:  e.now().UTC(),
	}
	stored, inserted, err := e.ledger.RecordOutcome(entry)
	if err != nil {
		if outcome.Kind == models.OutcomeSuccessorCreated {
			log.Printf("[chain] %s: WARNING: successor %s created but not recorded: %v", fp, outcome.SuccessorID, err)
			return models.Outcome{}, fmt.Errorf("completion %s: %w: %w", fp, errUnrecorded, models.Retryable(err))
		}
		return models.Outcome{}, fmt.Errorf("completion %s: %w", fp, models.Retryable(err))
	}
	result := stored.Outcome
	if !inserted {
		log.Printf("[chain] %s: outcome already recorded as %s", fp, stored.Outcome)
		result.Replayed = true
	}
	e.emit(events.CompletionRecorded, ev, fp, stored.Outcome.String(), nil)
	return result, nil
}

func (e *Engine) emit(t events.Type, ev models.CompletionEvent, fp models.Fingerprint, msg string, err error) {
	e.emitter.Emit(events.Event{
		Type:        t,
		TaskID:      ev.TaskID,
		Fingerprint: string(fp),
		Message:     msg,
		Error:       err,
		Timestamp:   e.now(),
	})
}

package chain

import (
	"context"
	"time"

	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/internal/rules"
	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/internal/taskstore"
	"github.com/ShayCichocki/monica/pkg/models"
)

// Default bounds for external calls.
const (
	DefaultTaskStoreTimeout = 10 * time.Second
	DefaultClaimLease       = 2 * time.Minute
)

// TagClassifier infers a chain tag for a task that carries none. An empty
// tag means no suggestion, including when the budget refused the call.
type TagClassifier interface {
	ClassifyTag(ctx context.Context, task *models.Task, tags []string) (string, error)
}

// RequiredConfig contains the collaborators an Engine cannot run without.
type RequiredConfig struct {
	Tasks    taskstore.Client
	Ledger   state.LedgerStore
	Resolver *rules.Resolver
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

type engineOptions struct {
	classifier       TagClassifier
	taskStoreTimeout time.Duration
	claimLease       time.Duration
	owner            string
	now              func() time.Time
	emitter          *events.Emitter
}

// WithClassifier enables model-assisted tagging of untagged tasks.
func WithClassifier(c TagClassifier) Option {
	return func(o *engineOptions) { o.classifier = c }
}

// WithTaskStoreTimeout bounds each task store call.
func WithTaskStoreTimeout(d time.Duration) Option {
	return func(o *engineOptions) { o.taskStoreTimeout = d }
}

// WithClaimLease sets how long a claim blocks concurrent handlers of the
// same fingerprint.
func WithClaimLease(d time.Duration) Option {
	return func(o *engineOptions) { o.claimLease = d }
}

// WithOwner sets the instance identity recorded with each claim.
// Defaults to a random ID. Every HandleCompletion call still claims under
// its own owner derived from it.
func WithOwner(owner string) Option {
	return func(o *engineOptions) { o.owner = owner }
}

// WithClock overrides the clock used for claims and ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithEmitter publishes engine activity.
func WithEmitter(e *events.Emitter) Option {
	return func(o *engineOptions) { o.emitter = e }
}

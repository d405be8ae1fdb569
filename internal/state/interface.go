package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// LedgerStore is the idempotency ledger: completion fingerprints mapped to
// terminal outcomes, written with conditional inserts.
type LedgerStore interface {
	GetEntry(fp models.Fingerprint) (*models.LedgerEntry, error)
	RecordOutcome(entry *models.LedgerEntry) (*models.LedgerEntry, bool, error)
	ClaimFingerprint(fp models.Fingerprint, owner string, now time.Time, lease time.Duration) (bool, error)
	ReleaseClaim(fp models.Fingerprint, owner string) error
}

// SuggestionStore is the suggestion history. Records are only ever
// inserted or transitioned.
type SuggestionStore interface {
	OfferSuggestion(rec *models.SuggestionRecord) (bool, error)
	TransitionSuggestion(id string, from, to models.SuggestionResponse, at time.Time) (bool, error)
	LatestSuggestion(taskID string) (*models.SuggestionRecord, error)
	ListSuggestions(response *models.SuggestionResponse) ([]models.SuggestionRecord, error)
	SuggestionSummaries() (map[string]SuggestionSummary, error)
}

// BudgetStore persists the per-period model spend counter.
type BudgetStore interface {
	BudgetCounter(period string, cap float64, now time.Time) (*models.BudgetCounter, error)
	ChargeBudget(period string, amount, cap float64, now time.Time) (bool, float64, error)
	AdjustBudget(period string, delta, cap float64, now time.Time) (float64, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore composes every persistence concern behind one handle.
type StateStore interface {
	io.Closer
	Migrator
	LedgerStore
	SuggestionStore
	BudgetStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore      = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ LedgerStore     = (*DB)(nil)
	_ SuggestionStore = (*DB)(nil)
	_ BudgetStore     = (*DB)(nil)
)

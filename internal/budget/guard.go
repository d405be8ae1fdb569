// Package budget enforces the hard monthly ceiling on language-model spend.
package budget

import (
	"log"
	"sync"
	"time"

	"github.com/ShayCichocki/monica/internal/state"
)

// Status represents the current state of budget consumption.
type Status int

const (
	// StatusOK indicates spend is below the warning threshold.
	StatusOK Status = iota
	// StatusWarning indicates spend is between the warning threshold and the cap.
	StatusWarning
	// StatusExhausted indicates spend has reached the cap.
	StatusExhausted
)

// String returns a human-readable representation of the budget status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "Warning"
	case StatusExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// DefaultWarningThreshold is the default fraction of the cap at which warnings begin.
const DefaultWarningThreshold = 0.80

// PeriodKey returns the billing period containing t (UTC calendar month).
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Usage is a snapshot of the current period's spend.
type Usage struct {
	Period     string
	Spent      float64
	Cap        float64
	Percentage float64
	Status     Status
}

// Guard tracks cumulative model spend against a cap per billing period and
// vetoes AI-dependent work once the cap is reached. Callers fall back to a
// non-AI path when Charge returns false; the guard never returns an error.
//
// A cap of zero or less disables model calls entirely.
type Guard struct {
	cap              float64
	warningThreshold float64
	store            state.BudgetStore
	now              func() time.Time

	mu     sync.Mutex
	period string
	spent  float64
	warned string
}

// Option configures a Guard.
type Option func(*Guard)

// WithStore persists the counter so independent invocations share it.
func WithStore(store state.BudgetStore) Option {
	return func(g *Guard) {
		g.store = store
	}
}

// WithClock overrides the time source used to find the billing period.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithWarningThreshold sets the warning fraction, clamped to [0, 1].
func WithWarningThreshold(threshold float64) Option {
	return func(g *Guard) {
		if threshold < 0 {
			threshold = 0
		}
		if threshold > 1 {
			threshold = 1
		}
		g.warningThreshold = threshold
	}
}

// NewGuard creates a guard with the given per-period cap in USD.
func NewGuard(cap float64, opts ...Option) *Guard {
	g := &Guard{
		cap:              cap,
		warningThreshold: DefaultWarningThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Cap returns the configured per-period cap.
func (g *Guard) Cap() float64 {
	return g.cap
}

// Charge records amount against the current period if spend is still below
// the cap, and reports whether the AI-dependent call may proceed.
func (g *Guard) Charge(amount float64) bool {
	if amount < 0 || g.cap <= 0 {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	period := g.rollover(now)

	if g.store != nil {
		ok, spent, err := g.store.ChargeBudget(period, amount, g.cap, now)
		if err != nil {
			log.Printf("[budget] Charge refused, counter unavailable: %v", err)
			return false
		}
		g.spent = spent
		g.checkWarning(period)
		if !ok {
			log.Printf("[budget] Period %s exhausted (%.4f / %.2f), using fallback", period, spent, g.cap)
		}
		return ok
	}

	if g.spent >= g.cap {
		log.Printf("[budget] Period %s exhausted (%.4f / %.2f), using fallback", period, g.spent, g.cap)
		return false
	}
	g.spent += amount
	g.checkWarning(period)
	return true
}

// Adjust corrects the current period's spend, typically reconciling an
// estimated charge with the cost reported after the call.
func (g *Guard) Adjust(delta float64) {
	if delta == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	period := g.rollover(now)

	if g.store != nil {
		spent, err := g.store.AdjustBudget(period, delta, g.cap, now)
		if err != nil {
			log.Printf("[budget] Warning: failed to adjust spend by %.6f: %v", delta, err)
			return
		}
		g.spent = spent
	} else {
		g.spent += delta
		if g.spent < 0 {
			g.spent = 0
		}
	}
	g.checkWarning(period)
}

// Exhausted reports whether the current period's spend has reached the cap.
func (g *Guard) Exhausted() bool {
	return g.Usage().Status == StatusExhausted
}

// Status returns the current budget status.
func (g *Guard) Status() Status {
	return g.Usage().Status
}

// Usage returns the current period's spend snapshot.
func (g *Guard) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	period := g.rollover(now)

	if g.store != nil {
		counter, err := g.store.BudgetCounter(period, g.cap, now)
		if err != nil {
			log.Printf("[budget] Warning: counter unavailable, reporting exhausted: %v", err)
			return Usage{Period: period, Spent: g.spent, Cap: g.cap, Percentage: 1, Status: StatusExhausted}
		}
		g.spent = counter.Spent
	}

	u := Usage{Period: period, Spent: g.spent, Cap: g.cap}
	if g.cap <= 0 {
		u.Percentage = 1
		u.Status = StatusExhausted
		return u
	}
	u.Percentage = g.spent / g.cap
	switch {
	case u.Percentage >= 1.0:
		u.Status = StatusExhausted
	case u.Percentage >= g.warningThreshold:
		u.Status = StatusWarning
	default:
		u.Status = StatusOK
	}
	return u
}

// rollover resets the in-memory counter when the billing period changes.
// Must be called with lock held.
func (g *Guard) rollover(now time.Time) string {
	period := PeriodKey(now)
	if period != g.period {
		if g.period != "" {
			log.Printf("[budget] New billing period %s (previous %s spent %.4f)", period, g.period, g.spent)
		}
		g.period = period
		g.spent = 0
	}
	return period
}

// checkWarning logs once per period when spend crosses the warning threshold.
// Must be called with lock held.
func (g *Guard) checkWarning(period string) {
	if g.cap <= 0 || g.warned == period {
		return
	}
	if g.spent/g.cap >= g.warningThreshold {
		g.warned = period
		log.Printf("[budget] Spend for %s at %.0f%% of cap (%.4f / %.2f)", period, 100*g.spent/g.cap, g.spent, g.cap)
	}
}

package state

import (
	"fmt"
	"log"
	"time"
)

// InterruptedCompletion describes a fingerprint whose handler stopped
// between claiming it and recording an outcome.
type InterruptedCompletion struct {
	Claim
	// Recorded is true when an outcome exists despite the leftover claim.
	Recorded bool
}

// RecoveryManager detects and clears claims left behind by invocations
// that crashed or timed out mid-operation.
type RecoveryManager struct {
	db *DB
}

// NewRecoveryManager creates a new RecoveryManager with the given database.
func NewRecoveryManager(db *DB) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted lists expired claims as of now.
// Returns an empty slice if nothing was interrupted.
func (rm *RecoveryManager) CheckForInterrupted(now time.Time) ([]InterruptedCompletion, error) {
	claims, err := rm.db.ListClaims()
	if err != nil {
		return nil, err
	}

	var interrupted []InterruptedCompletion
	for _, c := range claims {
		if c.ExpiresAt.After(now) {
			continue
		}
		entry, err := rm.db.GetEntry(c.Fingerprint)
		if err != nil {
			return nil, err
		}
		interrupted = append(interrupted, InterruptedCompletion{Claim: c, Recorded: entry != nil})
	}
	return interrupted, nil
}

// Clean removes expired claims so redeliveries of their completions can
// proceed. A claim never implies the successor was created, so removing it
// cannot record success for an action that did not happen.
func (rm *RecoveryManager) Clean(now time.Time) (int, error) {
	interrupted, err := rm.CheckForInterrupted(now)
	if err != nil {
		return 0, fmt.Errorf("check interrupted completions: %w", err)
	}

	cleaned := 0
	for _, ic := range interrupted {
		if err := rm.db.ReleaseClaim(ic.Fingerprint, ic.Owner); err != nil {
			log.Printf("[state] Warning: failed to release claim %s: %v", ic.Fingerprint, err)
			continue
		}
		if ic.Recorded {
			log.Printf("[state] Released leftover claim %s (outcome already recorded)", ic.Fingerprint)
		} else {
			log.Printf("[state] Released expired claim %s held by %s since %s",
				ic.Fingerprint, ic.Owner, ic.ClaimedAt.Format(time.RFC3339))
		}
		cleaned++
	}
	return cleaned, nil
}

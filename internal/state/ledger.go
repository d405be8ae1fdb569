package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// Claim is a short-lived lease on a fingerprint held by one invocation
// while it performs the external side effect. A claim is never an outcome.
type Claim struct {
	Fingerprint models.Fingerprint
	Owner       string
	ClaimedAt   time.Time
	ExpiresAt   time.Time
}

// GetEntry returns the ledger entry for a fingerprint, or nil if none exists.
func (db *DB) GetEntry(fp models.Fingerprint) (*models.LedgerEntry, error) {
	row := db.QueryRow(`
		SELECT fingerprint, task_id, event_id, outcome, successor_id, reason, recorded_at
		FROM ledger WHERE fingerprint = ?
	`, string(fp))

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %s: %w", fp, err)
	}
	return entry, nil
}

// RecordOutcome writes the terminal outcome for a fingerprint only if no
// entry exists yet, and releases any claim on it. It returns the entry that
// is stored after the call and whether this call inserted it. When another
// invocation recorded first, its entry is returned unchanged.
func (db *DB) RecordOutcome(entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	if !entry.Outcome.Kind.Valid() {
		return nil, false, fmt.Errorf("record ledger entry %s: invalid outcome %q", entry.Fingerprint, entry.Outcome.Kind)
	}

	var inserted bool
	err := db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO ledger (fingerprint, task_id, event_id, outcome, successor_id, reason, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fingerprint) DO NOTHING
		`, string(entry.Fingerprint), entry.TaskID, entry.EventID, string(entry.Outcome.Kind),
			nullString(entry.Outcome.SuccessorID), nullString(entry.Outcome.Reason), formatTime(entry.RecordedAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n == 1

		_, err = tx.Exec("DELETE FROM ledger_claims WHERE fingerprint = ?", string(entry.Fingerprint))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("record ledger entry %s: %w", entry.Fingerprint, err)
	}

	if inserted {
		return entry, true, nil
	}

	stored, err := db.GetEntry(entry.Fingerprint)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

// ListEntries lists ledger entries, newest first, optionally filtered by outcome.
// A limit of zero or less returns all entries.
func (db *DB) ListEntries(kind *models.OutcomeKind, limit int) ([]models.LedgerEntry, error) {
	query := `
		SELECT fingerprint, task_id, event_id, outcome, successor_id, reason, recorded_at
		FROM ledger`
	var args []any
	if kind != nil {
		query += " WHERE outcome = ?"
		args = append(args, string(*kind))
	}
	query += " ORDER BY recorded_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// ClaimFingerprint takes a lease on a fingerprint. It returns false while
// any live claim exists, whoever holds it. Expired claims are taken over.
func (db *DB) ClaimFingerprint(fp models.Fingerprint, owner string, now time.Time, lease time.Duration) (bool, error) {
	var claimed bool
	err := db.Transaction(func(tx *sql.Tx) error {
		var expiresAt string
		var holder string
		err := tx.QueryRow(
			"SELECT owner, expires_at FROM ledger_claims WHERE fingerprint = ?", string(fp),
		).Scan(&holder, &expiresAt)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return err
		default:
			exp, perr := parseTime(expiresAt)
			if perr == nil && exp.After(now) {
				return nil
			}
			if _, err := tx.Exec("DELETE FROM ledger_claims WHERE fingerprint = ?", string(fp)); err != nil {
				return err
			}
		}

		res, err := tx.Exec(`
			INSERT INTO ledger_claims (fingerprint, owner, claimed_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(fingerprint) DO NOTHING
		`, string(fp), owner, formatTime(now), formatTime(now.Add(lease)))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", fp, err)
	}
	return claimed, nil
}

// ReleaseClaim drops a claim held by owner so a redelivery can proceed.
func (db *DB) ReleaseClaim(fp models.Fingerprint, owner string) error {
	_, err := db.Exec("DELETE FROM ledger_claims WHERE fingerprint = ? AND owner = ?", string(fp), owner)
	if err != nil {
		return fmt.Errorf("release claim %s: %w", fp, err)
	}
	return nil
}

// ListClaims returns all outstanding claims.
func (db *DB) ListClaims() ([]Claim, error) {
	rows, err := db.Query("SELECT fingerprint, owner, claimed_at, expires_at FROM ledger_claims ORDER BY claimed_at")
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var c Claim
		var fp, claimedAt, expiresAt string
		if err := rows.Scan(&fp, &c.Owner, &claimedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		c.Fingerprint = models.Fingerprint(fp)
		c.ClaimedAt, _ = parseTime(claimedAt)
		c.ExpiresAt, _ = parseTime(expiresAt)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var fp, kind, recordedAt string
	var successorID, reason sql.NullString
	if err := row.Scan(&fp, &e.TaskID, &e.EventID, &kind, &successorID, &reason, &recordedAt); err != nil {
		return nil, err
	}
	e.Fingerprint = models.Fingerprint(fp)
	e.Outcome = models.Outcome{
		Kind:        models.OutcomeKind(kind),
		SuccessorID: successorID.String,
		Reason:      reason.String,
	}
	e.RecordedAt, _ = parseTime(recordedAt)
	return &e, nil
}

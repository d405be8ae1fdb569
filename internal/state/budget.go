package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// BudgetCounter returns the counter for a billing period, creating it with
// the given cap if the period has not been seen yet.
func (db *DB) BudgetCounter(period string, cap float64, now time.Time) (*models.BudgetCounter, error) {
	var counter models.BudgetCounter
	err := db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO budget (period, spent, cap, updated_at) VALUES (?, 0, ?, ?)
			ON CONFLICT(period) DO NOTHING
		`, period, cap, formatTime(now)); err != nil {
			return err
		}

		var updatedAt string
		if err := tx.QueryRow(
			"SELECT period, spent, cap, updated_at FROM budget WHERE period = ?", period,
		).Scan(&counter.Period, &counter.Spent, &counter.Cap, &updatedAt); err != nil {
			return err
		}
		counter.UpdatedAt, _ = parseTime(updatedAt)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("budget counter %s: %w", period, err)
	}
	return &counter, nil
}

// ChargeBudget adds amount to the period's spend only while spend is below
// cap. It returns whether the charge was accepted and the spend afterwards.
func (db *DB) ChargeBudget(period string, amount, cap float64, now time.Time) (bool, float64, error) {
	if _, err := db.BudgetCounter(period, cap, now); err != nil {
		return false, 0, err
	}

	res, err := db.Exec(`
		UPDATE budget SET spent = spent + ?, cap = ?, updated_at = ?
		WHERE period = ? AND spent < ?
	`, amount, cap, formatTime(now), period, cap)
	if err != nil {
		return false, 0, fmt.Errorf("charge budget %s: %w", period, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("get rows affected: %w", err)
	}

	counter, err := db.BudgetCounter(period, cap, now)
	if err != nil {
		return false, 0, err
	}
	return n == 1, counter.Spent, nil
}

// AdjustBudget applies a correction to the period's spend, for example the
// difference between an estimated and an actual model call cost. Spend
// never drops below zero.
func (db *DB) AdjustBudget(period string, delta, cap float64, now time.Time) (float64, error) {
	if _, err := db.BudgetCounter(period, cap, now); err != nil {
		return 0, err
	}

	if _, err := db.Exec(`
		UPDATE budget SET spent = MAX(spent + ?, 0), updated_at = ? WHERE period = ?
	`, delta, formatTime(now), period); err != nil {
		return 0, fmt.Errorf("adjust budget %s: %w", period, err)
	}

	counter, err := db.BudgetCounter(period, cap, now)
	if err != nil {
		return 0, err
	}
	return counter.Spent, nil
}

// ListBudgetCounters returns all recorded periods, newest first.
func (db *DB) ListBudgetCounters() ([]models.BudgetCounter, error) {
	rows, err := db.Query("SELECT period, spent, cap, updated_at FROM budget ORDER BY period DESC")
	if err != nil {
		return nil, fmt.Errorf("list budget counters: %w", err)
	}
	defer rows.Close()

	var counters []models.BudgetCounter
	for rows.Next() {
		var c models.BudgetCounter
		var updatedAt string
		if err := rows.Scan(&c.Period, &c.Spent, &c.Cap, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan budget counter: %w", err)
		}
		c.UpdatedAt, _ = parseTime(updatedAt)
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

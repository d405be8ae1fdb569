package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// SuggestionSummary condenses a task's offer history for eligibility checks.
type SuggestionSummary struct {
	TaskID string
	// Latest is the most recent offer instance.
	Latest models.SuggestionRecord
	// Offers is the total number of offer instances for the task.
	Offers int
}

const suggestionColumns = `id, task_id, task_title, seq, offered_at, window_start, window_end,
	window_source, score, response, responded_at`

// OfferSuggestion inserts a new Pending offer for rec.TaskID. The write is
// conditional: it only succeeds when the task has no history, or its latest
// offer is Expired. It assigns rec.Seq and returns false if the task is not
// eligible or a concurrent invocation offered first.
func (db *DB) OfferSuggestion(rec *models.SuggestionRecord) (bool, error) {
	var offered bool
	err := db.Transaction(func(tx *sql.Tx) error {
		var seq int
		var response string
		err := tx.QueryRow(`
			SELECT seq, response FROM suggestions
			WHERE task_id = ? ORDER BY seq DESC LIMIT 1
		`, rec.TaskID).Scan(&seq, &response)
		switch {
		case err == sql.ErrNoRows:
			seq = 0
		case err != nil:
			return err
		case models.SuggestionResponse(response) != models.ResponseExpired:
			return nil
		}

		res, err := tx.Exec(`
			INSERT INTO suggestions (`+suggestionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
			ON CONFLICT DO NOTHING
		`, rec.ID, rec.TaskID, nullString(rec.TaskTitle), seq+1, formatTime(rec.OfferedAt),
			formatTime(rec.Window.Start), formatTime(rec.Window.End), rec.Window.Source,
			rec.Score, string(models.ResponsePending))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			offered = true
			rec.Seq = seq + 1
			rec.Response = models.ResponsePending
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("offer suggestion for task %s: %w", rec.TaskID, err)
	}
	return offered, nil
}

// TransitionSuggestion moves a record from one response to another. It is a
// compare-and-set: it returns false if the record is no longer in from.
func (db *DB) TransitionSuggestion(id string, from, to models.SuggestionResponse, at time.Time) (bool, error) {
	if !to.Valid() || to == models.ResponsePending {
		return false, fmt.Errorf("transition suggestion %s: invalid target %q", id, to)
	}

	res, err := db.Exec(`
		UPDATE suggestions SET response = ?, responded_at = ?
		WHERE id = ? AND response = ?
	`, string(to), formatTime(at), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition suggestion %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}

// GetSuggestion retrieves a record by ID, or nil if none exists.
func (db *DB) GetSuggestion(id string) (*models.SuggestionRecord, error) {
	row := db.QueryRow("SELECT "+suggestionColumns+" FROM suggestions WHERE id = ?", id)
	rec, err := scanSuggestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion %s: %w", id, err)
	}
	return rec, nil
}

// LatestSuggestion returns the most recent offer for a task, or nil.
func (db *DB) LatestSuggestion(taskID string) (*models.SuggestionRecord, error) {
	row := db.QueryRow(
		"SELECT "+suggestionColumns+" FROM suggestions WHERE task_id = ? ORDER BY seq DESC LIMIT 1",
		taskID,
	)
	rec, err := scanSuggestion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest suggestion for task %s: %w", taskID, err)
	}
	return rec, nil
}

// SuggestionHistory returns every offer for a task, oldest first.
func (db *DB) SuggestionHistory(taskID string) ([]models.SuggestionRecord, error) {
	rows, err := db.Query(
		"SELECT "+suggestionColumns+" FROM suggestions WHERE task_id = ? ORDER BY seq",
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("suggestion history for task %s: %w", taskID, err)
	}
	return collectSuggestions(rows)
}

// ListSuggestions lists records, newest first, optionally filtered by response.
func (db *DB) ListSuggestions(response *models.SuggestionResponse) ([]models.SuggestionRecord, error) {
	var rows *sql.Rows
	var err error

	if response != nil {
		rows, err = db.Query(
			"SELECT "+suggestionColumns+" FROM suggestions WHERE response = ? ORDER BY offered_at DESC",
			string(*response),
		)
	} else {
		rows, err = db.Query("SELECT " + suggestionColumns + " FROM suggestions ORDER BY offered_at DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	return collectSuggestions(rows)
}

// SuggestionSummaries returns the latest offer and offer count per task.
func (db *DB) SuggestionSummaries() (map[string]SuggestionSummary, error) {
	rows, err := db.Query(`
		SELECT ` + suggestionColumns + `, (SELECT COUNT(*) FROM suggestions c WHERE c.task_id = s.task_id)
		FROM suggestions s
		WHERE s.seq = (SELECT MAX(seq) FROM suggestions m WHERE m.task_id = s.task_id)
	`)
	if err != nil {
		return nil, fmt.Errorf("suggestion summaries: %w", err)
	}
	defer rows.Close()

	summaries := make(map[string]SuggestionSummary)
	for rows.Next() {
		var count int
		rec, err := scanSuggestion(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion summary: %w", err)
		}
		summaries[rec.TaskID] = SuggestionSummary{TaskID: rec.TaskID, Latest: *rec, Offers: count}
	}
	return summaries, rows.Err()
}

func collectSuggestions(rows *sql.Rows) ([]models.SuggestionRecord, error) {
	defer rows.Close()

	var records []models.SuggestionRecord
	for rows.Next() {
		rec, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanSuggestion(row rowScanner, extra ...any) (*models.SuggestionRecord, error) {
	var r models.SuggestionRecord
	var title, respondedAt sql.NullString
	var offeredAt, start, end, response string

	dest := []any{&r.ID, &r.TaskID, &title, &r.Seq, &offeredAt, &start, &end,
		&r.Window.Source, &r.Score, &response, &respondedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	r.TaskTitle = title.String
	r.OfferedAt, _ = parseTime(offeredAt)
	r.Window.Start, _ = parseTime(start)
	r.Window.End, _ = parseTime(end)
	r.Response = models.SuggestionResponse(response)
	r.RespondedAt = parseNullableTime(respondedAt)
	return &r, nil
}

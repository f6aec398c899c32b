package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

const (
	requestWorklogLimit = 200
	userWorklogLimit    = 500
)

// AddWorklog records hours against a request and refreshes the request's
// accumulated worklog_hours. It returns the new total.
func (db *DB) AddWorklog(ctx context.Context, w *model.Worklog) (float64, error) {
	if w.Hours <= 0 {
		return 0, fmt.Errorf("invalid hours: %v", w.Hours)
	}
	var total float64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO worklogs (id, request_id, user_id, user_name, hours, note, logged_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.RequestID, w.UserID, w.UserName, w.Hours, nullString(w.Note),
			w.LoggedAt.UTC(), w.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to add worklog: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(hours), 0) FROM worklogs WHERE request_id = ?`, w.RequestID).Scan(&total); err != nil {
			return fmt.Errorf("failed to sum worklogs: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE requests SET worklog_hours = ? WHERE id = ?`, total, w.RequestID)
		if err != nil {
			return fmt.Errorf("failed to update worklog hours: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("request %s: %w", w.RequestID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// RequestWorklogs lists a request's worklogs, newest first, with their sum.
func (db *DB) RequestWorklogs(ctx context.Context, requestID string) ([]model.Worklog, float64, error) {
	logs, err := db.queryWorklogs(ctx, `
		SELECT id, request_id, user_id, user_name, hours, note, logged_at, created_at
		FROM worklogs WHERE request_id = ? ORDER BY logged_at DESC LIMIT ?`,
		requestID, requestWorklogLimit)
	if err != nil {
		return nil, 0, err
	}

	var total float64
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(hours), 0) FROM worklogs WHERE request_id = ?`, requestID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to sum worklogs: %w", err)
	}
	return logs, total, nil
}

// UserWorklogs lists a user's worklogs inside the optional [from, to] range,
// newest first.
func (db *DB) UserWorklogs(ctx context.Context, userID string, from, to *time.Time) ([]model.Worklog, error) {
	query := `
		SELECT id, request_id, user_id, user_name, hours, note, logged_at, created_at
		FROM worklogs WHERE user_id = ?`
	args := []any{userID}
	if from != nil {
		query += ` AND logged_at >= ?`
		args = append(args, from.UTC())
	}
	if to != nil {
		query += ` AND logged_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY logged_at DESC LIMIT ?`
	args = append(args, userWorklogLimit)
	return db.queryWorklogs(ctx, query, args...)
}

func (db *DB) queryWorklogs(ctx context.Context, query string, args ...any) ([]model.Worklog, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query worklogs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs := []model.Worklog{}
	for rows.Next() {
		var w model.Worklog
		var note sql.NullString
		if err := rows.Scan(&w.ID, &w.RequestID, &w.UserID, &w.UserName, &w.Hours, &note,
			&w.LoggedAt, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan worklog: %w", err)
		}
		w.Note = stringPtr(note)
		w.LoggedAt = w.LoggedAt.UTC()
		w.CreatedAt = w.CreatedAt.UTC()
		logs = append(logs, w)
	}
	return logs, rows.Err()
}

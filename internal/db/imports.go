package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/baiirun/mesa/internal/model"
)

// ImportRequest inserts a request with its history unless the id is already
// live. It reports whether a row was written.
func (db *DB) ImportRequest(ctx context.Context, r *model.Request) (bool, error) {
	exists, err := db.RequestExists(ctx, r.ID)
	if err != nil || exists {
		return false, err
	}
	if err := db.CreateRequest(ctx, r); err != nil {
		return false, err
	}
	return true, nil
}

// ImportTrashEntry stores a trash snapshot unless one with the same id
// exists.
func (db *DB) ImportTrashEntry(ctx context.Context, e *model.TrashEntry) (bool, error) {
	snapshot, err := json.Marshal(e.Request)
	if err != nil {
		return false, fmt.Errorf("failed to encode request snapshot: %w", err)
	}
	result, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trash (id, title, department, requester_name, request_json,
		                             deleted_at, deleted_by_id, deleted_by_name, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Request.Title, e.Request.Department, e.Request.RequesterName, string(snapshot),
		e.DeletedAt.UTC(), e.DeletedByID, e.DeletedByName, e.ExpiresAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to import trash entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ImportWorklog stores a worklog unless its id exists, then refreshes the
// owning request's total if that request is live.
func (db *DB) ImportWorklog(ctx context.Context, w *model.Worklog) (bool, error) {
	if w.Hours <= 0 {
		return false, fmt.Errorf("invalid hours: %v", w.Hours)
	}
	var inserted bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO worklogs (id, request_id, user_id, user_name, hours, note, logged_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, w.RequestID, w.UserID, w.UserName, w.Hours, nullString(w.Note),
			w.LoggedAt.UTC(), w.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to import worklog: %w", err)
		}
		rows, _ := result.RowsAffected()
		if inserted = rows > 0; !inserted {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE requests SET worklog_hours =
				(SELECT COALESCE(SUM(hours), 0) FROM worklogs WHERE request_id = ?)
			WHERE id = ?`, w.RequestID, w.RequestID)
		if err != nil {
			return fmt.Errorf("failed to update worklog hours: %w", err)
		}
		return nil
	})
	return inserted, err
}

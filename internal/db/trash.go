package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

// ErrAlreadyLive is returned when restoring an ID that exists outside the trash.
var ErrAlreadyLive = errors.New("a live request already has this id")

// MoveToTrash deletes a request and keeps a snapshot of it for ttl.
func (db *DB) MoveToTrash(ctx context.Context, id, byID, byName string, ttl time.Duration) (*model.TrashEntry, error) {
	req, err := db.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request snapshot: %w", err)
	}

	now := db.Now()
	entry := &model.TrashEntry{
		ID:            req.ID,
		Request:       *req,
		DeletedAt:     now,
		DeletedByID:   byID,
		DeletedByName: byName,
		ExpiresAt:     now.Add(ttl),
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete request: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("request %s: %w", id, ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO trash (id, title, department, requester_name, request_json,
			                   deleted_at, deleted_by_id, deleted_by_name, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title, department = excluded.department,
				requester_name = excluded.requester_name, request_json = excluded.request_json,
				deleted_at = excluded.deleted_at, deleted_by_id = excluded.deleted_by_id,
				deleted_by_name = excluded.deleted_by_name, expires_at = excluded.expires_at`,
			entry.ID, req.Title, req.Department, req.RequesterName, string(snapshot),
			entry.DeletedAt, entry.DeletedByID, entry.DeletedByName, entry.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert trash entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListTrash returns trash entries newest deletion first. q matches title or
// requester name.
func (db *DB) ListTrash(ctx context.Context, q string, page, pageSize int) (*model.TrashPage, error) {
	where := "1=1"
	args := []any{}
	if q = strings.TrimSpace(q); q != "" {
		where = "(title LIKE ? ESCAPE '\\' OR requester_name LIKE ? ESCAPE '\\')"
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trash WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count trash: %w", err)
	}
	p := model.NewPage(total, page, pageSize)

	rows, err := db.QueryContext(ctx, `
		SELECT id, title, department, requester_name, deleted_at, deleted_by_name, expires_at
		FROM trash WHERE `+where+` ORDER BY deleted_at DESC, id ASC LIMIT ? OFFSET ?`,
		append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trash: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []model.TrashItem{}
	for rows.Next() {
		var it model.TrashItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Department, &it.RequesterName,
			&it.DeletedAt, &it.DeletedByName, &it.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan trash entry: %w", err)
		}
		it.DeletedAt = it.DeletedAt.UTC()
		it.ExpiresAt = it.ExpiresAt.UTC()
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &model.TrashPage{Items: items, Page: p}, nil
}

// GetTrashEntry returns a trash entry with its request snapshot.
func (db *DB) GetTrashEntry(ctx context.Context, id string) (*model.TrashEntry, error) {
	var e model.TrashEntry
	var raw string
	err := db.QueryRowContext(ctx, `
		SELECT id, request_json, deleted_at, deleted_by_id, deleted_by_name, expires_at
		FROM trash WHERE id = ?`, id).
		Scan(&e.ID, &raw, &e.DeletedAt, &e.DeletedByID, &e.DeletedByName, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trash entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trash entry: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &e.Request); err != nil {
		return nil, fmt.Errorf("failed to decode request snapshot: %w", err)
	}
	e.DeletedAt = e.DeletedAt.UTC()
	e.ExpiresAt = e.ExpiresAt.UTC()
	return &e, nil
}

// RestoreFromTrash puts a trashed request back in the live table.
// It fails with ErrAlreadyLive if the ID is in use.
func (db *DB) RestoreFromTrash(ctx context.Context, id string) (*model.Request, error) {
	entry, err := db.GetTrashEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	req := entry.Request
	req.UpdatedAt = db.Now()
	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("trash entry %s: %w", id, err)
	}

	err = db.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE id = ?`, id).Scan(&n); err != nil {
			return fmt.Errorf("failed to check request: %w", err)
		}
		if n > 0 {
			return ErrAlreadyLive
		}
		if err := insertRequest(ctx, tx, &req); err != nil {
			return err
		}
		for _, ev := range req.StateHistory {
			if err := insertEvent(ctx, tx, req.ID, ev); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM trash WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to remove trash entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// PurgeTrash permanently removes one trash entry and its worklogs.
func (db *DB) PurgeTrash(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM trash WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to purge trash entry: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("trash entry %s: %w", id, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM worklogs WHERE request_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete worklogs: %w", err)
		}
		return nil
	})
}

// EmptyTrash removes every trash entry and returns how many were purged.
func (db *DB) EmptyTrash(ctx context.Context) (int64, error) {
	return db.purgeTrashWhere(ctx, "1=1")
}

// PurgeExpiredTrash removes entries whose recovery window has closed.
func (db *DB) PurgeExpiredTrash(ctx context.Context) (int64, error) {
	return db.purgeTrashWhere(ctx, "expires_at <= ?", db.Now())
}

// CountTrash returns the number of entries in the trash.
func (db *DB) CountTrash(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trash`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trash: %w", err)
	}
	return n, nil
}

func (db *DB) purgeTrashWhere(ctx context.Context, where string, args ...any) (int64, error) {
	var purged int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM worklogs WHERE request_id IN (SELECT id FROM trash WHERE `+where+`)`, args...); err != nil {
			return fmt.Errorf("failed to delete worklogs: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM trash WHERE `+where, args...)
		if err != nil {
			return fmt.Errorf("failed to purge trash: %w", err)
		}
		purged, _ = result.RowsAffected()
		return nil
	})
	return purged, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

package db

import (
	"context"
	"fmt"
	"time"
)

// RecordFailedLogin remembers a failed attempt for key until window elapses.
func (db *DB) RecordFailedLogin(ctx context.Context, key string, window time.Duration) error {
	now := db.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO failed_logins (key, created_at, expires_at) VALUES (?, ?, ?)`,
		key, now, now.Add(window))
	if err != nil {
		return fmt.Errorf("failed to record failed login: %w", err)
	}
	return nil
}

// CountFailedLogins counts failures for key newer than since.
func (db *DB) CountFailedLogins(ctx context.Context, key string, since time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM failed_logins WHERE key = ? AND created_at >= ?`,
		key, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed logins: %w", err)
	}
	return n, nil
}

// PruneFailedLogins drops attempts whose window has closed.
func (db *DB) PruneFailedLogins(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM failed_logins WHERE expires_at <= ?`, db.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to prune failed logins: %w", err)
	}
	return result.RowsAffected()
}

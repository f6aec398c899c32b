package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/baiirun/mesa/internal/model"
)

// ErrUsernameTaken is returned when a username collides with another user.
var ErrUsernameTaken = errors.New("username already registered")

const userColumns = `id, username, full_name, departments, position, role, password_hash, created_at, updated_at`

// CreateUser inserts a new user.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	if !u.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	depts, err := encodeDepartments(u.Departments)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.FullName, depts, u.Position, u.Role, u.PasswordHash,
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by login name.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by full name.
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY full_name, username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser overwrites the mutable fields of a user.
func (db *DB) UpdateUser(ctx context.Context, u *model.User) error {
	if !u.Role.IsValid() {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	depts, err := encodeDepartments(u.Departments)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, full_name = ?, departments = ?, position = ?, role = ?,
		    password_hash = ?, updated_at = ?
		WHERE id = ?`,
		u.Username, u.FullName, depts, u.Position, u.Role, u.PasswordHash, db.Now(), u.ID)
	if isUniqueViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", u.ID, ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountUsersByRole returns how many users hold role.
func (db *DB) CountUsersByRole(ctx context.Context, role model.Role) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CountOpenAssigned returns how many open requests are assigned to userID.
func (db *DB) CountOpenAssigned(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requests
		WHERE assigned_to = ? AND status IN (?, ?, ?)`,
		userID, model.StatusPending, model.StatusInProgress, model.StatusInReview).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count assigned requests: %w", err)
	}
	return n, nil
}

// UserNames maps user IDs to full names.
func (db *DB) UserNames(ctx context.Context) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, full_name FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	u := &model.User{}
	var depts string
	if err := s.Scan(&u.ID, &u.Username, &u.FullName, &depts, &u.Position, &u.Role,
		&u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(depts), &u.Departments); err != nil {
		return nil, fmt.Errorf("failed to decode departments for user %s: %w", u.ID, err)
	}
	return u, nil
}

func encodeDepartments(depts []string) (string, error) {
	if depts == nil {
		depts = []string{}
	}
	b, err := json.Marshal(depts)
	if err != nil {
		return "", fmt.Errorf("failed to encode departments: %w", err)
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/baiirun/mesa/internal/model"
)

// ListDepartments returns all departments ordered by name.
func (db *DB) ListDepartments(ctx context.Context) ([]model.Department, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, description, active FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query departments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	depts := []model.Department{}
	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.Name, &d.Description, &d.Active); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		depts = append(depts, d)
	}
	return depts, rows.Err()
}

// EnsureDepartment creates a department if it doesn't exist.
func (db *DB) EnsureDepartment(ctx context.Context, d model.Department) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO departments (name, description, active) VALUES (?, ?, ?)`,
		d.Name, d.Description, d.Active)
	if err != nil {
		return fmt.Errorf("failed to ensure department: %w", err)
	}
	return nil
}

// ReplaceDepartments swaps the department catalog for depts.
func (db *DB) ReplaceDepartments(ctx context.Context, depts []model.Department) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM departments`); err != nil {
			return fmt.Errorf("failed to clear departments: %w", err)
		}
		for _, d := range depts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO departments (name, description, active) VALUES (?, ?, ?)`,
				d.Name, d.Description, d.Active)
			if err != nil {
				return fmt.Errorf("failed to insert department %q: %w", d.Name, err)
			}
		}
		return nil
	})
}

// DepartmentStats are request counts for one department.
type DepartmentStats struct {
	Total             int      `json:"total"`
	Open              int      `json:"open"`
	Completed         int      `json:"completed"`
	AvgResolutionTime *float64 `json:"avg_resolution_time"` // hours
}

// DepartmentStatsByName aggregates requests per department.
func (db *DB) DepartmentStatsByName(ctx context.Context) (map[string]DepartmentStats, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT department,
		       COUNT(*),
		       SUM(CASE WHEN status IN (?, ?, ?) THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END),
		       AVG(CASE WHEN completion_date IS NOT NULL
		                THEN (julianday(completion_date) - julianday(requested_at)) * 24 END)
		FROM requests GROUP BY department`,
		model.StatusPending, model.StatusInProgress, model.StatusInReview,
		model.StatusFinished, model.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate departments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := map[string]DepartmentStats{}
	for rows.Next() {
		var name string
		var s DepartmentStats
		var avg sql.NullFloat64
		if err := rows.Scan(&name, &s.Total, &s.Open, &s.Completed, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan department stats: %w", err)
		}
		if avg.Valid {
			h := math.Round(avg.Float64*100) / 100
			s.AvgResolutionTime = &h
		}
		stats[name] = s
	}
	return stats, rows.Err()
}

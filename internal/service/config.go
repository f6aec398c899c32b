package service

import (
	"context"
	"errors"
	"strings"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/model"
)

const requestOptionsKey = "request_options"

// DepartmentView is a department plus, for staff, its request counts.
type DepartmentView struct {
	model.Department
	Stats *db.DepartmentStats `json:"stats,omitempty"`
}

func (s *Service) Departments(ctx context.Context, actor *model.User) ([]DepartmentView, error) {
	depts, err := s.db.ListDepartments(ctx)
	if err != nil {
		return nil, storeErr(err, "Department")
	}
	var stats map[string]db.DepartmentStats
	if actor.Role.IsStaff() {
		if stats, err = s.db.DepartmentStatsByName(ctx); err != nil {
			return nil, storeErr(err, "Department")
		}
	}

	out := make([]DepartmentView, 0, len(depts))
	for _, d := range depts {
		v := DepartmentView{Department: d}
		if stats != nil {
			st := stats[d.Name]
			v.Stats = &st
		}
		out = append(out, v)
	}
	return out, nil
}

type ConfigView struct {
	Departments    []model.Department   `json:"departments"`
	RequestOptions model.RequestOptions `json:"request_options"`
}

func (s *Service) Config(ctx context.Context) (*ConfigView, error) {
	depts, err := s.db.ListDepartments(ctx)
	if err != nil {
		return nil, storeErr(err, "Department")
	}
	opts, err := s.RequestOptions(ctx)
	if err != nil {
		return nil, err
	}
	return &ConfigView{Departments: depts, RequestOptions: opts}, nil
}

// RequestOptions returns the stored form options, or the defaults when none
// were saved.
func (s *Service) RequestOptions(ctx context.Context) (model.RequestOptions, error) {
	opts := model.DefaultRequestOptions()
	err := s.db.GetSetting(ctx, requestOptionsKey, &opts)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return opts, storeErr(err, "Setting")
	}
	if opts.Categories == nil {
		opts.Categories = []string{}
	}
	return opts, nil
}

// SLAHours returns the resolution target per priority.
func (s *Service) SLAHours(ctx context.Context) (map[model.Priority]int, error) {
	opts, err := s.RequestOptions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[model.Priority]int, len(model.DefaultSLAHours))
	for p, h := range model.DefaultSLAHours {
		out[p] = h
	}
	for name, h := range opts.SLAHoursByPriority {
		if p := model.Priority(name); p.IsValid() && h > 0 {
			out[p] = h
		}
	}
	return out, nil
}

// ReplaceDepartments swaps the department catalog. Admin only.
func (s *Service) ReplaceDepartments(ctx context.Context, actor *model.User, depts []model.Department) ([]model.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	clean := make([]model.Department, 0, len(depts))
	for _, d := range depts {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, apperr.Invalid("department name is required")
		}
		if seen[strings.ToLower(d.Name)] {
			return nil, apperr.Invalid("duplicate department: %s", d.Name)
		}
		seen[strings.ToLower(d.Name)] = true
		clean = append(clean, d)
	}
	if err := s.db.ReplaceDepartments(ctx, clean); err != nil {
		return nil, storeErr(err, "Department")
	}
	out, err := s.db.ListDepartments(ctx)
	return out, storeErr(err, "Department")
}

// ReplaceRequestOptions stores new form options. Admin only.
func (s *Service) ReplaceRequestOptions(ctx context.Context, actor *model.User, opts model.RequestOptions) (model.RequestOptions, error) {
	if err := requireAdmin(actor); err != nil {
		return opts, err
	}
	cats := make([]string, 0, len(opts.Categories))
	for _, c := range opts.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	opts.Categories = cats
	for name, h := range opts.SLAHoursByPriority {
		if !model.Priority(name).IsValid() {
			return opts, apperr.Invalid("invalid priority in sla_hours_by_priority: %s", name)
		}
		if h <= 0 {
			return opts, apperr.Invalid("sla hours for %s must be positive", name)
		}
	}
	if opts.SLAHoursByPriority == nil {
		opts.SLAHoursByPriority = model.DefaultRequestOptions().SLAHoursByPriority
	}
	if err := s.db.PutSetting(ctx, requestOptionsKey, opts); err != nil {
		return opts, storeErr(err, "Setting")
	}
	return opts, nil
}

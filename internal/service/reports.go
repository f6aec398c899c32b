package service

import (
	"context"
	"time"

	"github.com/baiirun/mesa/internal/analytics"
	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/model"
)

// Summary computes the dashboard for the period containing now. Support or
// admin only.
func (s *Service) Summary(ctx context.Context, actor *model.User, period analytics.Period, extended bool) (*analytics.Summary, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, extended)
	if err != nil {
		return nil, err
	}
	sum := analytics.Summarize(period, snap, extended)
	return &sum, nil
}

type ProductivityReport struct {
	Range analytics.Range              `json:"range"`
	Items []analytics.TechProductivity `json:"items"`
}

// Productivity reports per-technician workload over [start, end).
func (s *Service) Productivity(ctx context.Context, actor *model.User, start, end time.Time) (*ProductivityReport, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, apperr.Invalid("end must be after start")
	}
	snap, err := s.snapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	start, end = start.UTC(), end.UTC()
	return &ProductivityReport{
		Range: analytics.Range{Start: start, End: end},
		Items: analytics.Productivity(snap.Requests, snap.Names, start, end),
	}, nil
}

func (s *Service) snapshot(ctx context.Context, withHistory bool) (analytics.Snapshot, error) {
	reqs, err := s.db.AllRequests(ctx)
	if err != nil {
		return analytics.Snapshot{}, storeErr(err, "Request")
	}
	if withHistory {
		if err := s.db.HistoriesFor(ctx, reqs); err != nil {
			return analytics.Snapshot{}, storeErr(err, "Request")
		}
	}
	names, err := s.db.UserNames(ctx)
	if err != nil {
		return analytics.Snapshot{}, storeErr(err, "User")
	}
	sla, err := s.SLAHours(ctx)
	if err != nil {
		return analytics.Snapshot{}, err
	}
	return analytics.Snapshot{Requests: reqs, Names: names, SLAHours: sla, Now: s.now()}, nil
}

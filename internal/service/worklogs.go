package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/model"
)

type WorklogInput struct {
	Hours float64    `json:"hours" validate:"gt=0,lte=24"`
	Note  *string    `json:"note" validate:"omitempty,max=1000"`
	Date  *time.Time `json:"fecha"`
}

type WorklogResult struct {
	OK                bool           `json:"ok"`
	Worklog           *model.Worklog `json:"worklog"`
	WorklogTotalHours float64        `json:"worklog_total_hours"`
}

// AddWorklog records hours spent on a request. Support or admin only.
func (s *Service) AddWorklog(ctx context.Context, actor *model.User, requestID string, in WorklogInput) (*WorklogResult, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if in.Hours <= 0 {
		return nil, apperr.Invalid("hours must be greater than 0")
	}
	if err := check(in); err != nil {
		return nil, err
	}
	if in.Note != nil {
		trimmed := strings.TrimSpace(*in.Note)
		in.Note = &trimmed
		if trimmed == "" {
			in.Note = nil
		}
	}

	now := s.now()
	w := &model.Worklog{
		ID:        model.GenerateID(),
		RequestID: requestID,
		UserID:    actor.ID,
		UserName:  actor.FullName,
		Hours:     in.Hours,
		Note:      in.Note,
		LoggedAt:  now,
		CreatedAt: now,
	}
	if in.Date != nil {
		w.LoggedAt = in.Date.UTC()
	}
	total, err := s.db.AddWorklog(ctx, w)
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	return &WorklogResult{OK: true, Worklog: w, WorklogTotalHours: total}, nil
}

type WorklogList struct {
	Items      []model.Worklog `json:"items"`
	TotalHours float64         `json:"total_hours"`
}

// RequestWorklogs lists the hours logged on a request. The requester, the
// assignee and staff may read them.
func (s *Service) RequestWorklogs(ctx context.Context, actor *model.User, requestID string) (*WorklogList, error) {
	r, err := s.fetch(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() && r.RequesterID != actor.ID && !r.IsAssignee(actor.ID) {
		return nil, apperr.Forbidden("Not enough permissions")
	}
	items, total, err := s.db.RequestWorklogs(ctx, requestID)
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	return &WorklogList{Items: items, TotalHours: total}, nil
}

type MyWorklogs struct {
	Items      []model.Worklog    `json:"items"`
	SumByDay   map[string]float64 `json:"sum_by_day"`
	TotalHours float64            `json:"total_hours"`
}

// MyWorklogs lists the actor's own worklogs in [from, to] with daily sums.
func (s *Service) MyWorklogs(ctx context.Context, actor *model.User, from, to *time.Time) (*MyWorklogs, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, apperr.Invalid("date_to must not be before date_from")
	}
	items, err := s.db.UserWorklogs(ctx, actor.ID, from, to)
	if err != nil {
		return nil, storeErr(err, "Worklog")
	}

	out := &MyWorklogs{Items: items, SumByDay: map[string]float64{}}
	for _, w := range items {
		out.SumByDay[w.LoggedAt.Format("2006-01-02")] += w.Hours
		out.TotalHours += w.Hours
	}
	out.TotalHours = math.Round(out.TotalHours*100) / 100
	return out, nil
}

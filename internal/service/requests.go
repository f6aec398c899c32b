package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/workflow"
)

type CreateRequestInput struct {
	Title       string            `json:"title" validate:"required,max=200"`
	Description string            `json:"description" validate:"max=5000"`
	Priority    model.Priority    `json:"priority"`
	Type        model.RequestType `json:"type"`
	Channel     model.Channel     `json:"channel"`
	RequestedAt *time.Time        `json:"requested_at"`

	// Admin only; ignored for everyone else.
	Level          *int       `json:"level" validate:"omitempty,min=1,max=3"`
	EstimatedHours *float64   `json:"estimated_hours" validate:"omitempty,gt=0"`
	EstimatedDue   *time.Time `json:"estimated_due"`
	AssignedTo     *string    `json:"assigned_to"`
}

// CreateRequest files a request on behalf of actor. Requester and department
// come from the actor; the initial history event has no from status.
func (s *Service) CreateRequest(ctx context.Context, actor *model.User, in CreateRequestInput) (*model.Request, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := check(in); err != nil {
		return nil, err
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if in.Type == "" {
		in.Type = model.TypeSupport
	}
	if in.Channel == "" {
		in.Channel = model.ChannelSystem
	}
	if err := checkEnums(in.Priority, in.Type, in.Channel); err != nil {
		return nil, err
	}

	now := s.now()
	r := &model.Request{
		ID:            model.GenerateID(),
		Title:         in.Title,
		Description:   in.Description,
		Priority:      in.Priority,
		Type:          in.Type,
		Channel:       in.Channel,
		Department:    actor.PrimaryDepartment(),
		Status:        model.StatusPending,
		RequesterID:   actor.ID,
		RequesterName: actor.FullName,
		RequestedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.RequestedAt != nil {
		r.RequestedAt = in.RequestedAt.UTC()
	}

	if actor.Role == model.RoleAdmin {
		r.Level = in.Level
		r.EstimatedHours = in.EstimatedHours
		r.EstimatedDue = in.EstimatedDue
		if in.AssignedTo != nil && *in.AssignedTo != "" {
			assignee, err := s.assignee(ctx, *in.AssignedTo)
			if err != nil {
				return nil, err
			}
			r.AssignedTo = &assignee.ID
			r.AssignedToName = &assignee.FullName
			r.AssignedByID = &actor.ID
			r.AssignedByName = &actor.FullName
		}
	}

	r.StateHistory = []model.StateEvent{{
		To: model.StatusPending, At: now, ByUserID: actor.ID, ByUserName: actor.FullName,
	}}
	if err := s.db.CreateRequest(ctx, r); err != nil {
		return nil, storeErr(err, "Request")
	}
	s.log.WithFields(logrus.Fields{"request_id": r.ID, "actor": actor.Username}).Info("Created request")
	return r, nil
}

func checkEnums(p model.Priority, t model.RequestType, c model.Channel) error {
	if p != "" && !p.IsValid() {
		return apperr.Invalid("invalid priority: %s", p)
	}
	if t != "" && !t.IsValid() {
		return apperr.Invalid("invalid type: %s", t)
	}
	if c != "" && !c.IsValid() {
		return apperr.Invalid("invalid channel: %s", c)
	}
	return nil
}

// assignee loads a user who can be made responsible for a request.
func (s *Service) assignee(ctx context.Context, id string) (*model.User, error) {
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		if apperr.Is(storeErr(err, "User"), apperr.KindNotFound) {
			return nil, apperr.BadRequest("assigned user does not exist")
		}
		return nil, storeErr(err, "User")
	}
	if !u.Role.IsStaff() {
		return nil, apperr.BadRequest("requests can only be assigned to support or admin users")
	}
	return u, nil
}

// ListRequests returns one page of requests. Employees only see their own.
func (s *Service) ListRequests(ctx context.Context, actor *model.User, f db.RequestFilter) (*model.RequestPage, error) {
	if err := s.checkPage(f.Page, f.PageSize); err != nil {
		return nil, err
	}
	f = scope(actor, f)
	page, err := s.db.ListRequests(ctx, f)
	return page, storeErr(err, "Request")
}

// ExportRequests returns every request matching f that actor can see.
func (s *Service) ExportRequests(ctx context.Context, actor *model.User, f db.RequestFilter) ([]model.Request, error) {
	reqs, err := s.db.FindRequests(ctx, scope(actor, f))
	return reqs, storeErr(err, "Request")
}

func scope(actor *model.User, f db.RequestFilter) db.RequestFilter {
	if !actor.Role.IsStaff() {
		f.RequesterID = actor.ID
	}
	return f
}

func (s *Service) checkPage(page, size int) error {
	if page < 1 {
		return apperr.Invalid("page must be at least 1")
	}
	if size < 1 || size > s.opts.MaxPageSize {
		return apperr.Invalid("page_size must be between 1 and %d", s.opts.MaxPageSize)
	}
	return nil
}

// GetRequest returns a request with its history. Employees get not found for
// requests they did not file.
func (s *Service) GetRequest(ctx context.Context, actor *model.User, id string) (*model.Request, error) {
	r, err := s.db.GetRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	if !visible(actor, r) {
		return nil, apperr.NotFound("Request not found")
	}
	return r, nil
}

func visible(actor *model.User, r *model.Request) bool {
	return actor.Role.IsStaff() || r.RequesterID == actor.ID
}

type UpdateRequestInput struct {
	Title          *string            `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string            `json:"description" validate:"omitempty,max=5000"`
	Priority       *model.Priority    `json:"priority"`
	Type           *model.RequestType `json:"type"`
	Channel        *model.Channel     `json:"channel"`
	Department     *string            `json:"department"`
	Level          *int               `json:"level" validate:"omitempty,min=1,max=3"`
	AssignedTo     *string            `json:"assigned_to"`
	EstimatedHours *float64           `json:"estimated_hours" validate:"omitempty,gt=0"`
	EstimatedDue   *time.Time         `json:"estimated_due"`
	Status         *model.Status      `json:"status"`
	Comment        string             `json:"comment"`
	EvidenceLink   string             `json:"evidence_link"`
}

// UpdateRequest edits a request's fields. A status change goes through the
// same checks as Transition and is committed together with the edits.
func (s *Service) UpdateRequest(ctx context.Context, actor *model.User, id string, in UpdateRequestInput) (*model.Request, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
	}
	if err := check(in); err != nil {
		return nil, err
	}

	r, err := s.db.GetRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	if in.Status != nil && *in.Status != r.Status {
		if _, err := workflow.Check(actor, r, *in.Status, workflow.Input{Comment: in.Comment, EvidenceLink: in.EvidenceLink}); err != nil {
			return nil, err
		}
	}

	if in.Title != nil {
		r.Title = *in.Title
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Priority != nil {
		r.Priority = *in.Priority
	}
	if in.Type != nil {
		r.Type = *in.Type
	}
	if in.Channel != nil {
		r.Channel = *in.Channel
	}
	if err := checkEnums(r.Priority, r.Type, r.Channel); err != nil {
		return nil, err
	}
	if in.Department != nil {
		r.Department = strings.TrimSpace(*in.Department)
	}
	if in.Level != nil {
		r.Level = in.Level
	}
	if in.EstimatedHours != nil {
		r.EstimatedHours = in.EstimatedHours
	}
	if in.EstimatedDue != nil {
		r.EstimatedDue = in.EstimatedDue
	}
	if in.AssignedTo != nil && !r.IsAssignee(*in.AssignedTo) {
		if *in.AssignedTo == "" {
			r.AssignedTo, r.AssignedToName, r.AssignedByID, r.AssignedByName = nil, nil, nil, nil
		} else {
			assignee, err := s.assignee(ctx, *in.AssignedTo)
			if err != nil {
				return nil, err
			}
			r.AssignedTo = &assignee.ID
			r.AssignedToName = &assignee.FullName
			r.AssignedByID = &actor.ID
			r.AssignedByName = &actor.FullName
		}
	}
	if in.Status != nil && *in.Status != r.Status {
		return s.transition(ctx, actor, r, *in.Status, workflow.Input{Comment: in.Comment, EvidenceLink: in.EvidenceLink}, true)
	}
	if err := s.db.UpdateRequest(ctx, r); err != nil {
		return nil, storeErr(err, "Request")
	}
	return s.fetch(ctx, id)
}

type ClassifyInput struct {
	Level    int            `json:"level" validate:"required,min=1,max=3"`
	Priority model.Priority `json:"priority" validate:"required"`
}

// Classify sets level and priority. Admin only.
func (s *Service) Classify(ctx context.Context, actor *model.User, id string, in ClassifyInput) (*model.Request, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := check(in); err != nil {
		return nil, err
	}
	if !in.Priority.IsValid() {
		return nil, apperr.Invalid("invalid priority: %s", in.Priority)
	}
	if err := s.db.Classify(ctx, id, in.Level, in.Priority); err != nil {
		return nil, storeErr(err, "Request")
	}
	return s.fetch(ctx, id)
}

type AssignInput struct {
	UserID         *string    `json:"user_id"`
	EstimatedHours *float64   `json:"estimated_hours" validate:"omitempty,gt=0"`
	EstimatedDue   *time.Time `json:"estimated_due"`
}

// Assign makes a user responsible for a request, defaulting to the actor.
// Admin only.
func (s *Service) Assign(ctx context.Context, actor *model.User, id string, in AssignInput) (*model.Request, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := check(in); err != nil {
		return nil, err
	}
	targetID := actor.ID
	if in.UserID != nil && *in.UserID != "" {
		targetID = *in.UserID
	}
	target, err := s.assignee(ctx, targetID)
	if err != nil {
		return nil, err
	}

	err = s.db.Assign(ctx, id, db.Assignment{
		AssigneeID:     target.ID,
		AssigneeName:   target.FullName,
		AssignerID:     actor.ID,
		AssignerName:   actor.FullName,
		EstimatedHours: in.EstimatedHours,
		EstimatedDue:   in.EstimatedDue,
	})
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	s.log.WithFields(logrus.Fields{"request_id": id, "assignee": target.Username, "actor": actor.Username}).Info("Assigned request")
	return s.fetch(ctx, id)
}

// Unassign clears the responsible user and the estimate. Admin only.
func (s *Service) Unassign(ctx context.Context, actor *model.User, id string) (*model.Request, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.db.Unassign(ctx, id); err != nil {
		return nil, storeErr(err, "Request")
	}
	return s.fetch(ctx, id)
}

// TransitionInput names the target either by status or by action.
type TransitionInput struct {
	To           model.Status    `json:"to"`
	Action       workflow.Action `json:"action"`
	Comment      string          `json:"comment"`
	EvidenceLink string          `json:"evidence_link"`
}

// Transition moves a request through the workflow.
func (s *Service) Transition(ctx context.Context, actor *model.User, id string, in TransitionInput) (*model.Request, error) {
	r, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	to := in.To
	if to == "" && in.Action != "" {
		target, ok := workflow.Target(r.Status, in.Action)
		if !ok {
			return nil, apperr.BadRequest("action %s is not available from %s", in.Action, r.Status)
		}
		to = target
	}
	if to == "" {
		return nil, apperr.Invalid("to is required")
	}
	return s.transition(ctx, actor, r, to, workflow.Input{Comment: in.Comment, EvidenceLink: in.EvidenceLink}, false)
}

// transition applies a checked status change. With withEdits, r's editable
// fields are written in the same transaction.
func (s *Service) transition(ctx context.Context, actor *model.User, r *model.Request, to model.Status, input workflow.Input, withEdits bool) (*model.Request, error) {
	input, err := workflow.Check(actor, r, to, input)
	if err != nil {
		return nil, err
	}
	action, _ := workflow.ActionFor(r.Status, to)

	now := s.now()
	from := r.Status
	t := db.Transition{
		From: from,
		To:   to,
		Event: model.StateEvent{
			From: &from, To: to, At: now, ByUserID: actor.ID, ByUserName: actor.FullName,
		},
		TakeOver: action == workflow.ActionTake,
	}
	if withEdits {
		t.Edits = r
	}
	if to.IsTerminal() {
		t.CompletionDate = &now
	}
	switch action {
	case workflow.ActionReject:
		t.RejectionReason = &input.Comment
	case workflow.ActionReview:
		t.Evidence = &model.ReviewEvidence{Type: "link", URL: input.EvidenceLink, By: actor.FullName, At: now}
	}

	if err := s.db.ApplyTransition(ctx, r.ID, t); err != nil {
		return nil, storeErr(err, "Request")
	}
	s.metrics.Transition(string(from), string(to))
	s.log.WithFields(logrus.Fields{
		"request_id": r.ID, "from": from, "to": to, "actor": actor.Username,
	}).Info("Request status changed")
	return s.fetch(ctx, r.ID)
}

type FeedbackInput struct {
	Rating  model.Rating `json:"rating" validate:"required"`
	Comment *string      `json:"comment" validate:"omitempty,max=2000"`
}

// Feedback records the requester's one-time rating of a finished request.
func (s *Service) Feedback(ctx context.Context, actor *model.User, id string, in FeedbackInput) (*model.Request, error) {
	r, err := s.GetRequest(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CanFeedback(actor, r, in.Rating); err != nil {
		return nil, err
	}
	if err := check(in); err != nil {
		return nil, err
	}
	if in.Comment != nil {
		trimmed := strings.TrimSpace(*in.Comment)
		in.Comment = &trimmed
		if trimmed == "" {
			in.Comment = nil
		}
	}

	err = s.db.SetFeedback(ctx, id, model.Feedback{
		Rating: in.Rating, Comment: in.Comment, At: s.now(), ByUserID: actor.ID, ByUserName: actor.FullName,
	})
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	return s.fetch(ctx, id)
}

func (s *Service) fetch(ctx context.Context, id string) (*model.Request, error) {
	r, err := s.db.GetRequest(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	return r, nil
}

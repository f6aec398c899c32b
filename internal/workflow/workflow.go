// Package workflow holds the request status policy: which transitions exist,
// who may perform them and what input each one requires.
//
// The server enforces it on every mutation; clients consult the same table to
// decide which actions to offer.
package workflow

import (
	"net/url"
	"strings"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/model"
)

type Action string

const (
	ActionTake     Action = "take"
	ActionReject   Action = "reject"
	ActionReview   Action = "review"
	ActionReturn   Action = "return"
	ActionFinish   Action = "finish"
	ActionFeedback Action = "feedback"
	ActionClassify Action = "classify"
	ActionAssign   Action = "assign"
	ActionDelete   Action = "delete"
)

type edge struct {
	from, to model.Status
}

// transitions is the allow-list. Terminal statuses have no outgoing edges.
var transitions = map[edge]Action{
	{model.StatusPending, model.StatusInProgress}:  ActionTake,
	{model.StatusPending, model.StatusRejected}:    ActionReject,
	{model.StatusInProgress, model.StatusInReview}: ActionReview,
	{model.StatusInReview, model.StatusInProgress}: ActionReturn,
	{model.StatusInReview, model.StatusFinished}:   ActionFinish,
}

// Allowed returns the statuses reachable from s.
func Allowed(s model.Status) []model.Status {
	var out []model.Status
	for _, to := range model.Statuses {
		if _, ok := transitions[edge{s, to}]; ok {
			out = append(out, to)
		}
	}
	return out
}

// ActionFor names the action that moves a request from one status to another.
func ActionFor(from, to model.Status) (Action, bool) {
	a, ok := transitions[edge{from, to}]
	return a, ok
}

// Target is the status an action leads to from the given status.
func Target(from model.Status, a Action) (model.Status, bool) {
	for e, act := range transitions {
		if e.from == from && act == a {
			return e.to, true
		}
	}
	return "", false
}

// EnsureTransition rejects any move that is not on the allow-list.
func EnsureTransition(from, to model.Status) error {
	if _, ok := transitions[edge{from, to}]; !ok {
		return apperr.BadRequest("transition not allowed: %s → %s", from, to)
	}
	return nil
}

// Input carries the free-form data some transitions require.
type Input struct {
	Comment      string
	EvidenceLink string
}

// Check validates a transition for actor on req: the edge must exist, the
// actor must satisfy the action's constraint and required input must be
// present. It returns the cleaned input.
func Check(actor *model.User, req *model.Request, to model.Status, in Input) (Input, error) {
	if !to.IsValid() {
		return in, apperr.Invalid("invalid status: %s", to)
	}
	if err := EnsureTransition(req.Status, to); err != nil {
		return in, err
	}
	action, _ := ActionFor(req.Status, to)

	switch action {
	case ActionReview:
		if actor.Role != model.RoleAdmin && !req.IsAssignee(actor.ID) && !req.IsAssigner(actor.ID) {
			return in, apperr.Forbidden("only the assignee or whoever assigned the request can send it to review")
		}
		link, err := ValidateEvidenceLink(in.EvidenceLink)
		if err != nil {
			return in, err
		}
		in.EvidenceLink = link
	case ActionReject:
		if !actor.Role.IsStaff() {
			return in, apperr.Forbidden("only support or admin can reject requests")
		}
		reason, err := ValidateRejectReason(in.Comment)
		if err != nil {
			return in, err
		}
		in.Comment = reason
	default:
		if !actor.Role.IsStaff() {
			return in, apperr.Forbidden("only support or admin can move requests")
		}
	}
	return in, nil
}

// ValidateRejectReason trims reason and requires it to be non-empty.
func ValidateRejectReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", apperr.Invalid("a rejection reason is required")
	}
	return reason, nil
}

// ValidateEvidenceLink requires an absolute http or https URL.
func ValidateEvidenceLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", apperr.Invalid("review evidence (link) is required")
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.Invalid("review evidence must be an http or https link")
	}
	return link, nil
}

// CanFeedback checks the one-shot feedback rule: only the requester, only
// once the request is finished, only once.
func CanFeedback(actor *model.User, req *model.Request, rating model.Rating) error {
	if !rating.IsValid() {
		return apperr.Invalid("rating must be up or down")
	}
	if req.RequesterID != actor.ID {
		return apperr.Forbidden("only the requester can submit feedback")
	}
	if req.Status != model.StatusFinished {
		return apperr.BadRequest("the request is not finished")
	}
	if req.Feedback != nil {
		return apperr.Conflict("feedback was already submitted")
	}
	return nil
}

// Actions lists what actor may do with req right now, in display order.
// Required input is not checked here; Check does that at submit time.
func Actions(actor *model.User, req *model.Request) []Action {
	var out []Action
	for _, to := range Allowed(req.Status) {
		a, _ := ActionFor(req.Status, to)
		if a == ActionReview {
			if actor.Role == model.RoleAdmin || req.IsAssignee(actor.ID) || req.IsAssigner(actor.ID) {
				out = append(out, a)
			}
			continue
		}
		if actor.Role.IsStaff() {
			out = append(out, a)
		}
	}
	if CanFeedback(actor, req, model.RatingUp) == nil {
		out = append(out, ActionFeedback)
	}
	if actor.Role == model.RoleAdmin {
		if req.Status.IsOpen() {
			out = append(out, ActionClassify, ActionAssign)
		}
		out = append(out, ActionDelete)
	}
	return out
}

// Has reports whether a is in actions.
func Has(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}

package client

import (
	"time"

	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/workflow"
)

// Request and response bodies as they travel over the wire. They mirror the
// server's JSON so client consumers do not link the store or the service.

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
}

// NewRequest is the body of a create. Level, estimates and assignee are only
// honored for admins.
type NewRequest struct {
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Priority       model.Priority    `json:"priority,omitempty"`
	Type           model.RequestType `json:"type,omitempty"`
	Channel        model.Channel     `json:"channel,omitempty"`
	RequestedAt    *time.Time        `json:"requested_at,omitempty"`
	Level          *int              `json:"level,omitempty"`
	EstimatedHours *float64          `json:"estimated_hours,omitempty"`
	EstimatedDue   *time.Time        `json:"estimated_due,omitempty"`
	AssignedTo     *string           `json:"assigned_to,omitempty"`
}

// RequestChanges is a partial update; nil fields are left alone.
type RequestChanges struct {
	Title       *string            `json:"title,omitempty"`
	Description *string            `json:"description,omitempty"`
	Priority    *model.Priority    `json:"priority,omitempty"`
	Type        *model.RequestType `json:"type,omitempty"`
	Channel     *model.Channel     `json:"channel,omitempty"`
	Department  *string            `json:"department,omitempty"`
}

// Assignment targets UserID, or the caller when UserID is nil.
type Assignment struct {
	UserID         *string    `json:"user_id,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	EstimatedDue   *time.Time `json:"estimated_due,omitempty"`
}

// TransitionInput names the target by status or by action.
type TransitionInput struct {
	To           model.Status    `json:"to,omitempty"`
	Action       workflow.Action `json:"action,omitempty"`
	Comment      string          `json:"comment,omitempty"`
	EvidenceLink string          `json:"evidence_link,omitempty"`
}

type UserChanges struct {
	Username    *string            `json:"username,omitempty"`
	Password    *string            `json:"password,omitempty"`
	FullName    *string            `json:"full_name,omitempty"`
	Departments *model.Departments `json:"department,omitempty"`
	Position    *string            `json:"position,omitempty"`
	Role        *model.Role        `json:"role,omitempty"`
}

type WorklogInput struct {
	Hours float64    `json:"hours"`
	Note  *string    `json:"note,omitempty"`
	Date  *time.Time `json:"fecha,omitempty"`
}

type WorklogResult struct {
	Worklog           *model.Worklog `json:"worklog"`
	WorklogTotalHours float64        `json:"worklog_total_hours"`
}

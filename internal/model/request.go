package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "Pendiente"
	StatusInProgress Status = "En progreso"
	StatusInReview   Status = "En revisión"
	StatusFinished   Status = "Finalizada"
	StatusRejected   Status = "Rechazada"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusInReview, StatusFinished, StatusRejected}

// OpenStatuses are the statuses a request can still move out of.
var OpenStatuses = []Status{StatusPending, StatusInProgress, StatusInReview}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusInReview, StatusFinished, StatusRejected:
		return true
	}
	return false
}

func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusInReview
}

func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusRejected
}

type Priority string

const (
	PriorityHigh   Priority = "Alta"
	PriorityMedium Priority = "Media"
	PriorityLow    Priority = "Baja"
)

var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) IsValid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// Rank orders priorities for sorting, highest first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

type RequestType string

const (
	TypeSupport     RequestType = "Soporte"
	TypeImprovement RequestType = "Mejora"
	TypeDevelopment RequestType = "Desarrollo"
	TypeTraining    RequestType = "Capacitación"
)

var RequestTypes = []RequestType{TypeSupport, TypeImprovement, TypeDevelopment, TypeTraining}

func (t RequestType) IsValid() bool {
	switch t {
	case TypeSupport, TypeImprovement, TypeDevelopment, TypeTraining:
		return true
	}
	return false
}

type Channel string

const (
	ChannelWhatsApp Channel = "WhatsApp"
	ChannelEmail    Channel = "Correo"
	ChannelSystem   Channel = "Sistema"
)

var Channels = []Channel{ChannelWhatsApp, ChannelEmail, ChannelSystem}

func (c Channel) IsValid() bool {
	return c == ChannelWhatsApp || c == ChannelEmail || c == ChannelSystem
}

const (
	MinLevel = 1
	MaxLevel = 3
)

// ValidLevel reports whether lvl is inside the classification range.
func ValidLevel(lvl int) bool {
	return lvl >= MinLevel && lvl <= MaxLevel
}

type Rating string

const (
	RatingUp   Rating = "up"
	RatingDown Rating = "down"
)

func (r Rating) IsValid() bool {
	return r == RatingUp || r == RatingDown
}

// StateEvent is one entry of a request's status history.
type StateEvent struct {
	From       *Status   `json:"from_status"`
	To         Status    `json:"to_status"`
	At         time.Time `json:"at"`
	ByUserID   string    `json:"by_user_id"`
	ByUserName string    `json:"by_user_name"`
}

type Feedback struct {
	Rating     Rating    `json:"rating"`
	Comment    *string   `json:"comment"`
	At         time.Time `json:"at"`
	ByUserID   string    `json:"by_user_id"`
	ByUserName string    `json:"by_user_name"`
}

// ReviewEvidence is the link attached when a request is sent to review.
type ReviewEvidence struct {
	Type string    `json:"type"`
	URL  string    `json:"url"`
	By   string    `json:"by"`
	At   time.Time `json:"at"`
}

type Request struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Priority        Priority        `json:"priority"`
	Type            RequestType     `json:"type"`
	Channel         Channel         `json:"channel"`
	Department      string          `json:"department"`
	Level           *int            `json:"level"`
	Status          Status          `json:"status"`
	RequesterID     string          `json:"requester_id"`
	RequesterName   string          `json:"requester_name"`
	AssignedTo      *string         `json:"assigned_to"`
	AssignedToName  *string         `json:"assigned_to_name"`
	AssignedByID    *string         `json:"assigned_by_id"`
	AssignedByName  *string         `json:"assigned_by_name"`
	EstimatedHours  *float64        `json:"estimated_hours"`
	EstimatedDue    *time.Time      `json:"estimated_due"`
	RequestedAt     time.Time       `json:"requested_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletionDate  *time.Time      `json:"completion_date"`
	RejectionReason *string         `json:"rejection_reason"`
	ReviewEvidence  *ReviewEvidence `json:"review_evidence"`
	Feedback        *Feedback       `json:"feedback"`
	WorklogHours    float64         `json:"worklog_hours"`
	StateHistory    []StateEvent    `json:"state_history"`
}

// IsAssignee reports whether userID is the request's responsible technician.
func (r *Request) IsAssignee(userID string) bool {
	return r.AssignedTo != nil && *r.AssignedTo == userID
}

// IsAssigner reports whether userID assigned the request.
func (r *Request) IsAssigner(userID string) bool {
	return r.AssignedByID != nil && *r.AssignedByID == userID
}

var legacyStatuses = map[string]Status{
	"Completada":  StatusFinished,
	"Completado":  StatusFinished,
	"completada":  StatusFinished,
	"completado":  StatusFinished,
	"En Progreso": StatusInProgress,
	"En Revisión": StatusInReview,
	"Cancelada":   StatusRejected,
	"Cancelado":   StatusRejected,
}

// NormalizeStatus maps stored spellings from older releases onto the
// canonical set. Unknown values fall back to Pendiente.
func NormalizeStatus(raw string) Status {
	raw = strings.TrimSpace(raw)
	if s, ok := legacyStatuses[raw]; ok {
		return s
	}
	if s := Status(raw); s.IsValid() {
		return s
	}
	return StatusPending
}

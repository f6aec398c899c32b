package legacy

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/baiirun/mesa/internal/model"
)

// Documents as the previous release stored them.

type userDoc struct {
	ID           string    `bson:"id"`
	Username     string    `bson:"username"`
	FullName     string    `bson:"full_name"`
	Department   any       `bson:"department"`
	Position     string    `bson:"position"`
	Role         string    `bson:"role"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

type departmentDoc struct {
	Name        string `bson:"name"`
	Description string `bson:"description"`
	Active      *bool  `bson:"is_active"`
}

type eventDoc struct {
	From       string    `bson:"from_status"`
	To         string    `bson:"to_status"`
	At         time.Time `bson:"at"`
	ByUserID   string    `bson:"by_user_id"`
	ByUserName string    `bson:"by_user_name"`
}

type feedbackDoc struct {
	Rating     string    `bson:"rating"`
	Comment    *string   `bson:"comment"`
	At         time.Time `bson:"at"`
	ByUserID   string    `bson:"by_user_id"`
	ByUserName string    `bson:"by_user_name"`
}

type evidenceDoc struct {
	Type string    `bson:"type"`
	URL  string    `bson:"url"`
	By   string    `bson:"by"`
	At   time.Time `bson:"at"`
}

type requestDoc struct {
	ID              string       `bson:"id"`
	Title           string       `bson:"title"`
	Description     string       `bson:"description"`
	Priority        string       `bson:"priority"`
	Type            string       `bson:"type"`
	Channel         string       `bson:"channel"`
	Level           *int         `bson:"level"`
	Status          string       `bson:"status"`
	RequesterID     string       `bson:"requester_id"`
	RequesterName   string       `bson:"requester_name"`
	Department      string       `bson:"department"`
	AssignedTo      *string      `bson:"assigned_to"`
	AssignedToName  *string      `bson:"assigned_to_name"`
	EstimatedHours  *float64     `bson:"estimated_hours"`
	EstimatedDue    *time.Time   `bson:"estimated_due"`
	RequestedAt     time.Time    `bson:"requested_at"`
	CreatedAt       time.Time    `bson:"created_at"`
	UpdatedAt       time.Time    `bson:"updated_at"`
	CompletionDate  *time.Time   `bson:"completion_date"`
	StateHistory    []eventDoc   `bson:"state_history"`
	Feedback        *feedbackDoc `bson:"feedback"`
	RejectionReason *string      `bson:"rejection_reason"`
	ReviewEvidence  *evidenceDoc `bson:"review_evidence"`
}

type trashDoc struct {
	ID            string     `bson:"id"`
	Request       requestDoc `bson:"request_doc"`
	DeletedAt     time.Time  `bson:"deleted_at"`
	DeletedByID   string     `bson:"deleted_by_id"`
	DeletedByName string     `bson:"deleted_by_name"`
	ExpireAt      time.Time  `bson:"expireAt"`
}

type worklogDoc struct {
	ID        string    `bson:"id"`
	TicketID  string    `bson:"ticket_id"`
	UserID    string    `bson:"user_id"`
	Date      any       `bson:"fecha"`
	Hours     float64   `bson:"horas"`
	Note      string    `bson:"nota"`
	CreatedAt time.Time `bson:"created_at"`
}

var legacyChannels = map[string]model.Channel{
	"Correo Electrónico": model.ChannelEmail,
	"Google Sheets":      model.ChannelSystem,
}

func toUser(d userDoc, now time.Time) model.User {
	created := orNow(d.CreatedAt, now)
	role := model.Role(strings.ToLower(strings.TrimSpace(d.Role)))
	if !role.IsValid() {
		role = model.RoleEmployee
	}
	return model.User{
		ID:           d.ID,
		Username:     strings.TrimSpace(d.Username),
		FullName:     d.FullName,
		Departments:  departments(d.Department),
		Position:     d.Position,
		Role:         role,
		PasswordHash: d.PasswordHash,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// departments accepts the single-string and list shapes.
func departments(v any) model.Departments {
	var raw []any
	switch t := v.(type) {
	case string:
		raw = []any{t}
	case primitive.A:
		raw = t
	case []any:
		raw = t
	}
	var out model.Departments
	for _, item := range raw {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func toDepartment(d departmentDoc) model.Department {
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return model.Department{Name: strings.TrimSpace(d.Name), Description: d.Description, Active: active}
}

func toRequest(d requestDoc, now time.Time) model.Request {
	created := orNow(d.CreatedAt, now)
	r := model.Request{
		ID:              d.ID,
		Title:           d.Title,
		Description:     d.Description,
		Priority:        model.Priority(d.Priority),
		Type:            model.RequestType(d.Type),
		Channel:         model.Channel(d.Channel),
		Department:      d.Department,
		Level:           d.Level,
		Status:          model.NormalizeStatus(d.Status),
		RequesterID:     d.RequesterID,
		RequesterName:   d.RequesterName,
		AssignedTo:      d.AssignedTo,
		AssignedToName:  d.AssignedToName,
		EstimatedHours:  d.EstimatedHours,
		EstimatedDue:    utcPtr(d.EstimatedDue),
		RequestedAt:     orNow(d.RequestedAt, created),
		CreatedAt:       created,
		UpdatedAt:       orNow(d.UpdatedAt, created),
		CompletionDate:  utcPtr(d.CompletionDate),
		RejectionReason: d.RejectionReason,
	}
	if !r.Priority.IsValid() {
		r.Priority = model.PriorityMedium
	}
	if !r.Type.IsValid() {
		r.Type = model.TypeSupport
	}
	if c, ok := legacyChannels[d.Channel]; ok {
		r.Channel = c
	} else if !r.Channel.IsValid() {
		r.Channel = model.ChannelSystem
	}
	if r.Level != nil && !model.ValidLevel(*r.Level) {
		r.Level = nil
	}
	if r.AssignedTo != nil && *r.AssignedTo == "" {
		r.AssignedTo, r.AssignedToName = nil, nil
	}
	if ev := d.ReviewEvidence; ev != nil && ev.URL != "" {
		r.ReviewEvidence = &model.ReviewEvidence{Type: orDefault(ev.Type, "link"), URL: ev.URL, By: ev.By, At: ev.At.UTC()}
	}
	if fb := d.Feedback; fb != nil && model.Rating(fb.Rating).IsValid() {
		r.Feedback = &model.Feedback{
			Rating: model.Rating(fb.Rating), Comment: fb.Comment, At: orNow(fb.At, r.UpdatedAt),
			ByUserID: fb.ByUserID, ByUserName: fb.ByUserName,
		}
	}

	for _, e := range d.StateHistory {
		ev := model.StateEvent{
			To: model.NormalizeStatus(e.To), At: orNow(e.At, created),
			ByUserID: e.ByUserID, ByUserName: e.ByUserName,
		}
		if e.From != "" {
			from := model.NormalizeStatus(e.From)
			ev.From = &from
		}
		r.StateHistory = append(r.StateHistory, ev)
	}
	if len(r.StateHistory) == 0 {
		r.StateHistory = []model.StateEvent{{
			To: r.Status, At: created, ByUserID: r.RequesterID, ByUserName: r.RequesterName,
		}}
	}
	return r
}

func toTrashEntry(d trashDoc, now time.Time, ttl time.Duration) model.TrashEntry {
	deleted := orNow(d.DeletedAt, now)
	id := d.ID
	if id == "" {
		id = d.Request.ID
	}
	req := toRequest(d.Request, now)
	req.ID = id
	return model.TrashEntry{
		ID:            id,
		Request:       req,
		DeletedAt:     deleted,
		DeletedByID:   d.DeletedByID,
		DeletedByName: d.DeletedByName,
		ExpiresAt:     orNow(d.ExpireAt, deleted.Add(ttl)),
	}
}

func toWorklog(d worklogDoc, names map[string]string, now time.Time) model.Worklog {
	created := orNow(d.CreatedAt, now)
	w := model.Worklog{
		ID:        d.ID,
		RequestID: d.TicketID,
		UserID:    d.UserID,
		UserName:  names[d.UserID],
		Hours:     d.Hours,
		LoggedAt:  orNow(dateValue(d.Date), created),
		CreatedAt: created,
	}
	if w.ID == "" {
		w.ID = model.GenerateID()
	}
	if note := strings.TrimSpace(d.Note); note != "" {
		w.Note = &note
	}
	return w
}

// dateValue reads fecha, which older writers stored as a datetime or an
// ISO string.
func dateValue(v any) time.Time {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

func orNow(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback.UTC()
	}
	return t.UTC()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

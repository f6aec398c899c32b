package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

var (
	// ErrStatusChanged means the request moved while a transition was in flight.
	ErrStatusChanged = errors.New("request status changed concurrently")

	// ErrFeedbackExists means feedback was already recorded.
	ErrFeedbackExists = errors.New("feedback already recorded")

	// ErrNotFinished means the request is not in Finalizada.
	ErrNotFinished = errors.New("request is not finished")
)

const requestColumns = `id, title, description, priority, type, channel, department, level, status,
	requester_id, requester_name, assigned_to, assigned_to_name, assigned_by_id, assigned_by_name,
	estimated_hours, estimated_due, requested_at, created_at, updated_at, completion_date,
	rejection_reason, review_url, review_by, review_at,
	feedback_rating, feedback_comment, feedback_at, feedback_by_id, feedback_by_name, worklog_hours`

// CreateRequest inserts a new request along with its state history.
func (db *DB) CreateRequest(ctx context.Context, r *model.Request) error {
	if err := validateRequest(r); err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRequest(ctx, tx, r); err != nil {
			return err
		}
		for _, ev := range r.StateHistory {
			if err := insertEvent(ctx, tx, r.ID, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

func validateRequest(r *model.Request) error {
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if !r.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", r.Priority)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid type: %s", r.Type)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("invalid channel: %s", r.Channel)
	}
	if r.Level != nil && !model.ValidLevel(*r.Level) {
		return fmt.Errorf("invalid level: %d", *r.Level)
	}
	return nil
}

func insertRequest(ctx context.Context, tx *sql.Tx, r *model.Request) error {
	var reviewURL, reviewBy sql.NullString
	var reviewAt sql.NullTime
	if ev := r.ReviewEvidence; ev != nil {
		reviewURL = sql.NullString{String: ev.URL, Valid: true}
		reviewBy = sql.NullString{String: ev.By, Valid: true}
		reviewAt = sql.NullTime{Time: ev.At.UTC(), Valid: true}
	}
	var fbRating, fbComment, fbByID, fbByName sql.NullString
	var fbAt sql.NullTime
	if fb := r.Feedback; fb != nil {
		fbRating = sql.NullString{String: string(fb.Rating), Valid: true}
		fbComment = nullString(fb.Comment)
		fbAt = sql.NullTime{Time: fb.At.UTC(), Valid: true}
		fbByID = sql.NullString{String: fb.ByUserID, Valid: true}
		fbByName = sql.NullString{String: fb.ByUserName, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`, priority_rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Description, r.Priority, r.Type, r.Channel, r.Department, r.Level, r.Status,
		r.RequesterID, r.RequesterName, nullString(r.AssignedTo), nullString(r.AssignedToName),
		nullString(r.AssignedByID), nullString(r.AssignedByName),
		r.EstimatedHours, nullTime(r.EstimatedDue), r.RequestedAt.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		nullTime(r.CompletionDate), nullString(r.RejectionReason), reviewURL, reviewBy, reviewAt,
		fbRating, fbComment, fbAt, fbByID, fbByName, r.WorklogHours, r.Priority.Rank(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, requestID string, ev model.StateEvent) error {
	var from sql.NullString
	if ev.From != nil {
		from = sql.NullString{String: string(*ev.From), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO request_events (request_id, from_status, to_status, at, by_user_id, by_user_name)
		VALUES (?, ?, ?, ?, ?, ?)`,
		requestID, from, ev.To, ev.At.UTC(), ev.ByUserID, ev.ByUserName)
	if err != nil {
		return fmt.Errorf("failed to record state event: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by ID, including its state history.
func (db *DB) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	row := db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	r.StateHistory, err = db.requestEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RequestExists reports whether a live request has the given ID.
func (db *DB) RequestExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check request: %w", err)
	}
	return n > 0, nil
}

func (db *DB) requestEvents(ctx context.Context, id string) ([]model.StateEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT from_status, to_status, at, by_user_id, by_user_name
		FROM request_events WHERE request_id = ? ORDER BY at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query state history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []model.StateEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(s scanner) (model.StateEvent, error) {
	var ev model.StateEvent
	var from sql.NullString
	if err := s.Scan(&from, &ev.To, &ev.At, &ev.ByUserID, &ev.ByUserName); err != nil {
		return ev, fmt.Errorf("failed to scan state event: %w", err)
	}
	if from.Valid {
		st := model.Status(from.String)
		ev.From = &st
	}
	ev.At = ev.At.UTC()
	return ev, nil
}

// UpdateRequest writes the editable fields of r (everything except status,
// workflow fields, feedback and timestamps other than updated_at).
func (db *DB) UpdateRequest(ctx context.Context, r *model.Request) error {
	if err := validateRequest(r); err != nil {
		return err
	}
	r.UpdatedAt = db.Now()
	return writeFields(ctx, db, r)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeFields(ctx context.Context, ex execer, r *model.Request) error {
	result, err := ex.ExecContext(ctx, `
		UPDATE requests
		SET title = ?, description = ?, priority = ?, priority_rank = ?, type = ?, channel = ?,
		    department = ?, level = ?, assigned_to = ?, assigned_to_name = ?,
		    assigned_by_id = ?, assigned_by_name = ?, estimated_hours = ?, estimated_due = ?,
		    updated_at = ?
		WHERE id = ?`,
		r.Title, r.Description, r.Priority, r.Priority.Rank(), r.Type, r.Channel,
		r.Department, r.Level, nullString(r.AssignedTo), nullString(r.AssignedToName),
		nullString(r.AssignedByID), nullString(r.AssignedByName), r.EstimatedHours, nullTime(r.EstimatedDue),
		r.UpdatedAt, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("request %s: %w", r.ID, ErrNotFound)
	}
	return nil
}

// Classify sets a request's level and priority.
func (db *DB) Classify(ctx context.Context, id string, level int, priority model.Priority) error {
	if !model.ValidLevel(level) {
		return fmt.Errorf("invalid level: %d", level)
	}
	if !priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", priority)
	}
	result, err := db.ExecContext(ctx, `
		UPDATE requests SET level = ?, priority = ?, priority_rank = ?, updated_at = ? WHERE id = ?`,
		level, priority, priority.Rank(), db.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to classify request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return nil
}

// Assignment describes who takes a request and the estimate agreed.
type Assignment struct {
	AssigneeID     string
	AssigneeName   string
	AssignerID     string
	AssignerName   string
	EstimatedHours *float64
	EstimatedDue   *time.Time
}

// Assign records the responsible technician and estimate.
func (db *DB) Assign(ctx context.Context, id string, a Assignment) error {
	result, err := db.ExecContext(ctx, `
		UPDATE requests
		SET assigned_to = ?, assigned_to_name = ?, assigned_by_id = ?, assigned_by_name = ?,
		    estimated_hours = ?, estimated_due = ?, updated_at = ?
		WHERE id = ?`,
		a.AssigneeID, a.AssigneeName, a.AssignerID, a.AssignerName,
		a.EstimatedHours, nullTime(a.EstimatedDue), db.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to assign request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return nil
}

// Unassign clears the responsible technician, the assigner and the estimate.
func (db *DB) Unassign(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `
		UPDATE requests
		SET assigned_to = NULL, assigned_to_name = NULL, assigned_by_id = NULL, assigned_by_name = NULL,
		    estimated_hours = NULL, estimated_due = NULL, updated_at = ?
		WHERE id = ?`, db.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to unassign request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	return nil
}

// Transition is a status change plus the fields it stamps.
type Transition struct {
	From            model.Status
	To              model.Status
	Event           model.StateEvent
	CompletionDate  *time.Time
	RejectionReason *string
	Evidence        *model.ReviewEvidence
	// TakeOver assigns the request to the event's actor if nobody has it.
	TakeOver bool
	// Edits, when set, are written with UpdateRequest's semantics in the
	// same transaction as the status change.
	Edits *model.Request
}

// ApplyTransition moves a request from t.From to t.To and appends the event,
// atomically. It fails with ErrStatusChanged when the stored status is no
// longer t.From, in which case t.Edits are not written either.
func (db *DB) ApplyTransition(ctx context.Context, id string, t Transition) error {
	if !t.To.IsValid() {
		return fmt.Errorf("invalid status: %s", t.To)
	}
	if t.Edits != nil {
		if t.Edits.ID != id {
			return fmt.Errorf("edits are for request %s, not %s", t.Edits.ID, id)
		}
		if err := validateRequest(t.Edits); err != nil {
			return err
		}
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := t.Event.At.UTC()
		if t.Edits != nil {
			t.Edits.UpdatedAt = now
			if err := writeFields(ctx, tx, t.Edits); err != nil {
				return err
			}
		}
		query := `UPDATE requests SET status = ?, updated_at = ?`
		args := []any{t.To, now}

		if t.CompletionDate != nil {
			query += `, completion_date = ?`
			args = append(args, t.CompletionDate.UTC())
		}
		if t.RejectionReason != nil {
			query += `, rejection_reason = ?`
			args = append(args, *t.RejectionReason)
		}
		if t.Evidence != nil {
			query += `, review_url = ?, review_by = ?, review_at = ?`
			args = append(args, t.Evidence.URL, t.Evidence.By, t.Evidence.At.UTC())
		}
		if t.TakeOver {
			query += `, assigned_to = COALESCE(assigned_to, ?), assigned_to_name = COALESCE(assigned_to_name, ?)`
			args = append(args, t.Event.ByUserID, t.Event.ByUserName)
		}
		query += ` WHERE id = ? AND status = ?`
		args = append(args, id, t.From)

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE id = ?`, id).Scan(&n); err != nil {
				return fmt.Errorf("failed to check request: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("request %s: %w", id, ErrNotFound)
			}
			return ErrStatusChanged
		}
		return insertEvent(ctx, tx, id, t.Event)
	})
}

// SetFeedback records feedback on a finished request. Feedback is written at
// most once; a second call returns ErrFeedbackExists.
func (db *DB) SetFeedback(ctx context.Context, id string, fb model.Feedback) error {
	if !fb.Rating.IsValid() {
		return fmt.Errorf("invalid rating: %s", fb.Rating)
	}
	result, err := db.ExecContext(ctx, `
		UPDATE requests
		SET feedback_rating = ?, feedback_comment = ?, feedback_at = ?, feedback_by_id = ?, feedback_by_name = ?
		WHERE id = ? AND status = ? AND feedback_rating IS NULL`,
		fb.Rating, nullString(fb.Comment), fb.At.UTC(), fb.ByUserID, fb.ByUserName,
		id, model.StatusFinished)
	if err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var status string
	var rating sql.NullString
	err = db.QueryRowContext(ctx, `SELECT status, feedback_rating FROM requests WHERE id = ?`, id).Scan(&status, &rating)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check request: %w", err)
	}
	if rating.Valid {
		return ErrFeedbackExists
	}
	return ErrNotFinished
}

// AllRequests returns every live request without history, oldest first.
func (db *DB) AllRequests(ctx context.Context) ([]model.Request, error) {
	return db.queryRequests(ctx, `SELECT `+requestColumns+` FROM requests ORDER BY created_at ASC`)
}

// EventsBetween returns state events in [from, to), oldest first, with the
// request they belong to.
func (db *DB) EventsBetween(ctx context.Context, from, to time.Time) ([]RequestEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT request_id, from_status, to_status, at, by_user_id, by_user_name
		FROM request_events WHERE at >= ? AND at < ? ORDER BY at ASC, id ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RequestEvent
	for rows.Next() {
		var reqID string
		var from sql.NullString
		var ev model.StateEvent
		if err := rows.Scan(&reqID, &from, &ev.To, &ev.At, &ev.ByUserID, &ev.ByUserName); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if from.Valid {
			st := model.Status(from.String)
			ev.From = &st
		}
		ev.At = ev.At.UTC()
		out = append(out, RequestEvent{RequestID: reqID, StateEvent: ev})
	}
	return out, rows.Err()
}

// HistoriesFor loads state history for every request in reqs.
func (db *DB) HistoriesFor(ctx context.Context, reqs []model.Request) error {
	for i := range reqs {
		events, err := db.requestEvents(ctx, reqs[i].ID)
		if err != nil {
			return err
		}
		reqs[i].StateHistory = events
	}
	return nil
}

// RequestEvent is a state event tagged with its request.
type RequestEvent struct {
	RequestID string
	model.StateEvent
}

func (db *DB) queryRequests(ctx context.Context, query string, args ...any) ([]model.Request, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	reqs := []model.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		reqs = append(reqs, *r)
	}
	return reqs, rows.Err()
}

func scanRequest(s scanner) (*model.Request, error) {
	r := &model.Request{}
	var (
		level                                 sql.NullInt64
		status                                string
		assignedTo, assignedToName            sql.NullString
		assignedByID, assignedByName          sql.NullString
		estHours                              sql.NullFloat64
		estDue, completion, reviewAt, fbAt    sql.NullTime
		rejection, reviewURL, reviewBy        sql.NullString
		fbRating, fbComment, fbByID, fbByName sql.NullString
	)
	err := s.Scan(
		&r.ID, &r.Title, &r.Description, &r.Priority, &r.Type, &r.Channel, &r.Department, &level, &status,
		&r.RequesterID, &r.RequesterName, &assignedTo, &assignedToName, &assignedByID, &assignedByName,
		&estHours, &estDue, &r.RequestedAt, &r.CreatedAt, &r.UpdatedAt, &completion,
		&rejection, &reviewURL, &reviewBy, &reviewAt,
		&fbRating, &fbComment, &fbAt, &fbByID, &fbByName, &r.WorklogHours,
	)
	if err != nil {
		return nil, err
	}

	r.Status = model.NormalizeStatus(status)
	if level.Valid {
		lvl := int(level.Int64)
		r.Level = &lvl
	}
	if estHours.Valid {
		h := estHours.Float64
		r.EstimatedHours = &h
	}
	r.AssignedTo = stringPtr(assignedTo)
	r.AssignedToName = stringPtr(assignedToName)
	r.AssignedByID = stringPtr(assignedByID)
	r.AssignedByName = stringPtr(assignedByName)
	r.EstimatedDue = timePtr(estDue)
	r.CompletionDate = timePtr(completion)
	r.RejectionReason = stringPtr(rejection)
	r.RequestedAt = r.RequestedAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()

	if reviewURL.Valid {
		r.ReviewEvidence = &model.ReviewEvidence{Type: "link", URL: reviewURL.String, By: reviewBy.String}
		if reviewAt.Valid {
			r.ReviewEvidence.At = reviewAt.Time.UTC()
		}
	}
	if fbRating.Valid {
		r.Feedback = &model.Feedback{
			Rating:     model.Rating(fbRating.String),
			Comment:    stringPtr(fbComment),
			ByUserID:   fbByID.String,
			ByUserName: fbByName.String,
		}
		if fbAt.Valid {
			r.Feedback.At = fbAt.Time.UTC()
		}
	}
	return r, nil
}

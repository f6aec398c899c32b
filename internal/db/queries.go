package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/baiirun/mesa/internal/model"
)

// DefaultSort orders request lists newest first.
const DefaultSort = "-created_at"

// sortColumns whitelists the sortable fields and maps them to columns.
var sortColumns = map[string]string{
	"created_at":   "created_at",
	"requested_at": "requested_at",
	"status":       "status",
	"department":   "department",
	"priority":     "priority_rank",
	"level":        "level",
}

// RequestFilter narrows a request listing. Zero values mean "any".
type RequestFilter struct {
	Status      model.Status
	Department  string
	Type        model.RequestType
	Level       int
	Channel     model.Channel
	AssignedTo  string
	RequesterID string
	DateFrom    *time.Time // requested_at >= DateFrom
	DateTo      *time.Time // requested_at <= DateTo
	Query       string     // full-text over title and description
	Sort        string     // field, "-" prefix for descending
	Page        int
	PageSize    int
}

// ParseSort resolves a sort expression to a column and direction. Unknown
// fields fall back to created_at, keeping the requested direction.
func ParseSort(sort string) (column string, desc bool) {
	sort = strings.TrimSpace(sort)
	if sort == "" {
		sort = DefaultSort
	}
	field := sort
	if strings.HasPrefix(sort, "-") {
		desc = true
		field = sort[1:]
	}
	column, ok := sortColumns[field]
	if !ok {
		column = "created_at"
	}
	return column, desc
}

// ftsQuery turns free text into an FTS5 prefix query. Each whitespace
// separated term is quoted so operators in user input are matched literally.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}

func (f RequestFilter) where() (string, []any, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if f.Status != "" {
		if !f.Status.IsValid() {
			return "", nil, fmt.Errorf("invalid status: %s", f.Status)
		}
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Department != "" {
		clauses = append(clauses, "department = ?")
		args = append(args, f.Department)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.Level != 0 {
		if !model.ValidLevel(f.Level) {
			return "", nil, fmt.Errorf("invalid level: %d", f.Level)
		}
		clauses = append(clauses, "level = ?")
		args = append(args, f.Level)
	}
	if f.Channel != "" {
		clauses = append(clauses, "channel = ?")
		args = append(args, f.Channel)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.RequesterID != "" {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, f.RequesterID)
	}
	if f.DateFrom != nil {
		clauses = append(clauses, "requested_at >= ?")
		args = append(args, f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		clauses = append(clauses, "requested_at <= ?")
		args = append(args, f.DateTo.UTC())
	}
	if q := ftsQuery(f.Query); q != "" {
		clauses = append(clauses, "rowid IN (SELECT rowid FROM requests_fts WHERE requests_fts MATCH ?)")
		args = append(args, q)
	}
	return strings.Join(clauses, " AND "), args, nil
}

// ListRequests returns one page of requests matching f.
func (db *DB) ListRequests(ctx context.Context, f RequestFilter) (*model.RequestPage, error) {
	where, args, err := f.where()
	if err != nil {
		return nil, err
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	page := model.NewPage(total, f.Page, f.PageSize)
	column, desc := ParseSort(f.Sort)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}

	query := `SELECT ` + requestColumns + ` FROM requests WHERE ` + where +
		fmt.Sprintf(` ORDER BY %s %s, id %s LIMIT ? OFFSET ?`, column, dir, dir)
	items, err := db.queryRequests(ctx, query, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, err
	}
	return &model.RequestPage{Items: items, Page: page}, nil
}

// FindRequests returns every request matching f, ignoring pagination.
func (db *DB) FindRequests(ctx context.Context, f RequestFilter) ([]model.Request, error) {
	where, args, err := f.where()
	if err != nil {
		return nil, err
	}
	column, desc := ParseSort(f.Sort)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	query := `SELECT ` + requestColumns + ` FROM requests WHERE ` + where +
		fmt.Sprintf(` ORDER BY %s %s, id %s`, column, dir, dir)
	return db.queryRequests(ctx, query, args...)
}

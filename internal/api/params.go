package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/service"
)

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid("%s must be an integer", name)
	}
	return n, nil
}

// queryTime parses an RFC 3339 timestamp or a bare date. With endOfDay, a
// bare date covers the whole day.
func queryTime(c *gin.Context, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, dateOnly, err := parseTime(raw)
	if err != nil {
		return nil, apperr.Invalid("%s must be a date or RFC 3339 timestamp", name)
	}
	if dateOnly && endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseTime(raw string) (t time.Time, dateOnly bool, err error) {
	for _, layout := range timeLayouts {
		if t, err = time.Parse(layout, raw); err == nil {
			return t.UTC(), layout == "2006-01-02", nil
		}
	}
	return time.Time{}, false, err
}

func pagination(c *gin.Context) (page, size int, err error) {
	if page, err = queryInt(c, "page", 1); err != nil {
		return 0, 0, err
	}
	if size, err = queryInt(c, "page_size", service.DefaultPageSize); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

// requestFilter reads the listing query string.
func requestFilter(c *gin.Context) (db.RequestFilter, error) {
	var f db.RequestFilter
	var err error
	if f.Page, f.PageSize, err = pagination(c); err != nil {
		return f, err
	}
	if f.Level, err = queryInt(c, "level", 0); err != nil {
		return f, err
	}
	if f.Level != 0 && (f.Level < 1 || f.Level > 3) {
		return f, apperr.Invalid("level must be between 1 and 3")
	}

	f.Status = model.Status(c.Query("status"))
	if f.Status != "" && !f.Status.IsValid() {
		return f, apperr.Invalid("invalid status: %s", f.Status)
	}
	f.Type = model.RequestType(c.Query("type"))
	if f.Type != "" && !f.Type.IsValid() {
		return f, apperr.Invalid("invalid type: %s", f.Type)
	}
	f.Channel = model.Channel(c.Query("channel"))
	if f.Channel != "" && !f.Channel.IsValid() {
		return f, apperr.Invalid("invalid channel: %s", f.Channel)
	}

	f.Department = strings.TrimSpace(c.Query("department"))
	f.AssignedTo = strings.TrimSpace(c.Query("assigned_to"))
	f.RequesterID = strings.TrimSpace(c.Query("requester_id"))
	f.Query = strings.TrimSpace(c.Query("q"))
	f.Sort = strings.TrimSpace(c.Query("sort"))

	if f.DateFrom, err = queryTime(c, "date_from", false); err != nil {
		return f, err
	}
	if f.DateTo, err = queryTime(c, "date_to", true); err != nil {
		return f, err
	}
	return f, nil
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

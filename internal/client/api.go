package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/baiirun/mesa/internal/analytics"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/workflow"
)

// RequestQuery filters a request listing. Zero values are omitted.
type RequestQuery struct {
	Status     model.Status
	Department string
	Type       model.RequestType
	Level      int
	Channel    model.Channel
	AssignedTo string
	Q          string
	Sort       string
	Page       int
	PageSize   int
}

func (q RequestQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("status", string(q.Status))
	set("department", q.Department)
	set("type", string(q.Type))
	set("channel", string(q.Channel))
	set("assigned_to", q.AssignedTo)
	set("q", q.Q)
	set("sort", q.Sort)
	if q.Level > 0 {
		v.Set("level", strconv.Itoa(q.Level))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

// Login exchanges credentials for a token and stores it.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", nil,
		map[string]string{"username": username, "password": password}, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var res LoginResult
	if err := decode(resp.Body, &res); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(res.AccessToken); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Me(ctx context.Context) (*model.User, error) {
	return call[model.User](ctx, c, http.MethodGet, "/api/auth/me", nil, nil)
}

func (c *Client) ListRequests(ctx context.Context, q RequestQuery) (*model.RequestPage, error) {
	return call[model.RequestPage](ctx, c, http.MethodGet, "/api/requests", q.values(), nil)
}

func (c *Client) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	return call[model.Request](ctx, c, http.MethodGet, requestPath(id), nil, nil)
}

func (c *Client) CreateRequest(ctx context.Context, in NewRequest) (*model.Request, error) {
	return call[model.Request](ctx, c, http.MethodPost, "/api/requests", nil, in)
}

func (c *Client) UpdateRequest(ctx context.Context, id string, in RequestChanges) (*model.Request, error) {
	return call[model.Request](ctx, c, http.MethodPut, requestPath(id), nil, in)
}

func (c *Client) Classify(ctx context.Context, id string, level int, priority model.Priority) (*model.Request, error) {
	in := struct {
		Level    int            `json:"level"`
		Priority model.Priority `json:"priority"`
	}{level, priority}
	return call[model.Request](ctx, c, http.MethodPost, requestPath(id)+"/classify", nil, in)
}

func (c *Client) Assign(ctx context.Context, id string, in Assignment) (*model.Request, error) {
	return call[model.Request](ctx, c, http.MethodPost, requestPath(id)+"/assign", nil, in)
}

// Transition moves a request. A reject without a reason or a review without
// an http(s) link fails here without calling the server.
func (c *Client) Transition(ctx context.Context, id string, in TransitionInput) (*model.Request, error) {
	if in.To == model.StatusRejected || in.Action == workflow.ActionReject {
		reason, err := workflow.ValidateRejectReason(in.Comment)
		if err != nil {
			return nil, err
		}
		in.Comment = reason
	}
	if in.To == model.StatusInReview || in.Action == workflow.ActionReview {
		link, err := workflow.ValidateEvidenceLink(in.EvidenceLink)
		if err != nil {
			return nil, err
		}
		in.EvidenceLink = link
	}
	return call[model.Request](ctx, c, http.MethodPost, requestPath(id)+"/transition", nil, in)
}

func (c *Client) Feedback(ctx context.Context, id string, rating model.Rating, comment *string) (*model.Request, error) {
	if !rating.IsValid() {
		return nil, fmt.Errorf("rating must be up or down")
	}
	in := struct {
		Rating  model.Rating `json:"rating"`
		Comment *string      `json:"comment,omitempty"`
	}{rating, comment}
	return call[model.Request](ctx, c, http.MethodPost, requestPath(id)+"/feedback", nil, in)
}

// DeleteRequest moves a request to the trash.
func (c *Client) DeleteRequest(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, requestPath(id), nil, nil, nil)
}

func (c *Client) ListTrash(ctx context.Context, q string, page, pageSize int) (*model.TrashPage, error) {
	v := url.Values{}
	if q != "" {
		v.Set("q", q)
	}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		v.Set("page_size", strconv.Itoa(pageSize))
	}
	return call[model.TrashPage](ctx, c, http.MethodGet, "/api/requests/trash", v, nil)
}

func (c *Client) Restore(ctx context.Context, id string) (*model.Request, error) {
	return call[model.Request](ctx, c, http.MethodPost, requestPath(id)+"/restore", nil, nil)
}

func (c *Client) Purge(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/requests/trash/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) EmptyTrash(ctx context.Context) (int64, error) {
	var res struct {
		Purged int64 `json:"purged"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/requests/trash", nil, nil, &res); err != nil {
		return 0, err
	}
	return res.Purged, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, in UserChanges) (*model.User, error) {
	return call[model.User](ctx, c, http.MethodPatch, "/api/users/"+url.PathEscape(id), nil, in)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) AddWorklog(ctx context.Context, id string, in WorklogInput) (*WorklogResult, error) {
	return call[WorklogResult](ctx, c, http.MethodPost, requestPath(id)+"/worklogs", nil, in)
}

// Summary fetches the analytics summary for period (daily, weekly, monthly).
func (c *Client) Summary(ctx context.Context, period string, extended bool) (*analytics.Summary, error) {
	v := url.Values{}
	if period != "" {
		v.Set("period", period)
	}
	if extended {
		v.Set("extended", "true")
	}
	return call[analytics.Summary](ctx, c, http.MethodGet, "/api/reports/summary", v, nil)
}

// Export writes the spreadsheet of requests matching q to w.
func (c *Client) Export(ctx context.Context, q RequestQuery, w io.Writer) error {
	q.Page, q.PageSize = 0, 0
	resp, err := c.do(ctx, http.MethodGet, "/api/requests/export", q.values(), nil, true)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// call decodes the response of one authenticated request into a new T.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (*T, error) {
	var out T
	if err := c.doJSON(ctx, method, path, query, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func requestPath(id string) string {
	return "/api/requests/" + url.PathEscape(id)
}

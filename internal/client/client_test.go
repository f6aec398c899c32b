package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/workflow"
)

type fakeServer struct {
	*httptest.Server
	hits    atomic.Int32
	mu      sync.Mutex
	lastReq *http.Request
}

func (f *fakeServer) last() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func newFake(t *testing.T, handler http.HandlerFunc) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.mu.Lock()
		f.lastReq = r.Clone(context.Background())
		f.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func newClient(t *testing.T, f *fakeServer, token string) (*Client, *MemoryStore) {
	t.Helper()
	store := &MemoryStore{}
	require.NoError(t, store.Save(token))
	c, err := New(f.URL, store)
	require.NoError(t, err)
	return c, store
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("localhost", nil)
	assert.Error(t, err)
}

func TestBearerAttached(t *testing.T) {
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.User{ID: "u1", Username: "carlos"})
	})
	c, _ := newClient(t, f, "tok-1")

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "carlos", u.Username)
	assert.Equal(t, "Bearer tok-1", f.last().Header.Get("Authorization"))
	assert.NotEmpty(t, f.last().Header.Get("X-Request-Id"))
}

func TestUnauthorizedClearsToken(t *testing.T) {
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
	})
	c, store := newClient(t, f, "stale")

	_, err := c.ListRequests(context.Background(), RequestQuery{})
	assert.ErrorIs(t, err, ErrUnauthorized)
	tok, _ := store.Load()
	assert.Empty(t, tok)
	assert.False(t, c.LoggedIn())

	// Without a token nothing is sent
	_, err = c.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualValues(t, 1, f.hits.Load())
}

func TestAPIErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", 400, `{"detail":"transition not allowed: Pendiente → Finalizada"}`, "transition not allowed: Pendiente → Finalizada"},
		{"detail list", 422, `{"detail":[{"msg":"field required"},{"msg":"too short"}]}`, "field required; too short"},
		{"message", 500, `{"message":"boom"}`, "boom"},
		{"raw text", 502, "bad gateway from proxy", "bad gateway from proxy"},
		{"empty", 503, "", "Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c, store := newClient(t, f, "tok")

			_, err := c.GetRequest(context.Background(), "r1")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Message)

			tok, _ := store.Load()
			assert.Equal(t, "tok", tok, "only 401 clears the token")
		})
	}
}

func TestTransition_PrechecksSkipNetwork(t *testing.T) {
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Request{ID: "r1"})
	})
	c, _ := newClient(t, f, "tok")
	ctx := context.Background()

	_, err := c.Transition(ctx, "r1", TransitionInput{Action: workflow.ActionReject, Comment: "   "})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	_, err = c.Transition(ctx, "r1", TransitionInput{To: model.StatusInReview, EvidenceLink: "ftp://files/x"})
	assert.True(t, apperr.Is(err, apperr.KindInvalid))

	_, err = c.Transition(ctx, "r1", TransitionInput{Action: workflow.ActionReview, EvidenceLink: "docs/x"})
	assert.Error(t, err)

	_, err = c.Feedback(ctx, "r1", "meh", nil)
	assert.Error(t, err)

	assert.EqualValues(t, 0, f.hits.Load(), "no request may reach the server")

	_, err = c.Transition(ctx, "r1", TransitionInput{To: model.StatusRejected, Comment: " duplicada "})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.hits.Load())

	assert.Equal(t, "/api/requests/r1/transition", f.last().URL.Path)
}

func TestLogin(t *testing.T) {
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "admin123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
			return
		}
		writeJSON(w, http.StatusOK, LoginResult{AccessToken: "fresh", TokenType: "bearer"})
	})
	c, store := newClient(t, f, "")
	ctx := context.Background()

	_, err := c.Login(ctx, "admin", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "bad credentials are not a session expiry: %v", err)
	assert.Equal(t, "Incorrect username or password", apiErr.Message)
	assert.Empty(t, f.last().Header.Get("Authorization"))

	res, err := c.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "fresh", res.AccessToken)
	tok, _ := store.Load()
	assert.Equal(t, "fresh", tok)

	require.NoError(t, c.Logout())
	assert.False(t, c.LoggedIn())
}

func TestListRequests_Query(t *testing.T) {
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}, "page": 2, "page_size": 5, "total": 6})
	})
	c, _ := newClient(t, f, "tok")

	page, err := c.ListRequests(context.Background(), RequestQuery{
		Status: model.StatusInReview, Level: 2, Q: "factura", Sort: "-priority", Page: 2, PageSize: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)

	q := f.last().URL.Query()
	assert.Equal(t, "En revisión", q.Get("status"))
	assert.Equal(t, "2", q.Get("level"))
	assert.Equal(t, "factura", q.Get("q"))
	assert.Equal(t, "-priority", q.Get("sort"))
	assert.Equal(t, "5", q.Get("page_size"))
	assert.False(t, q.Has("department"))
}

func TestEmptyTrash(t *testing.T) {
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "purged": 3})
	})
	c, _ := newClient(t, f, "tok")

	n, err := c.EmptyTrash(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestTrashCalls(t *testing.T) {
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/requests/trash":
			writeJSON(w, http.StatusOK, map[string]any{
				"items": []any{map[string]any{"id": "r1", "title": "Factura", "deleted_by_name": "Admin"}},
				"page":  1, "page_size": 10, "total": 1, "total_pages": 1,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/requests/r1/restore":
			writeJSON(w, http.StatusOK, model.Request{ID: "r1", Title: "Factura"})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/requests/trash/r1":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Request not in trash"})
		}
	})
	c, _ := newClient(t, f, "tok")
	ctx := context.Background()

	page, err := c.ListTrash(ctx, "fact", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Admin", page.Items[0].DeletedByName)
	assert.Equal(t, "fact", f.last().URL.Query().Get("q"))
	assert.Equal(t, "10", f.last().URL.Query().Get("page_size"))

	r, err := c.Restore(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Factura", r.Title)

	require.NoError(t, c.Purge(ctx, "r1"))

	err = c.Purge(ctx, "r2")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Request not in trash", apiErr.Message)
}

func TestRequestBodies(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]any{}
	f := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies[r.Method+" "+r.URL.Path] = body
		mu.Unlock()
		writeJSON(w, http.StatusOK, model.Request{ID: "r1"})
	})
	c, _ := newClient(t, f, "tok")
	ctx := context.Background()

	_, err := c.CreateRequest(ctx, NewRequest{Title: "Factura", Priority: model.PriorityHigh})
	require.NoError(t, err)
	title := "Factura duplicada"
	_, err = c.UpdateRequest(ctx, "r1", RequestChanges{Title: &title})
	require.NoError(t, err)
	_, err = c.Classify(ctx, "r1", 2, model.PriorityLow)
	require.NoError(t, err)
	_, err = c.Assign(ctx, "r1", Assignment{})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]any{"title": "Factura", "priority": "Alta"}, bodies["POST /api/requests"],
		"unset fields are left for the server to default")
	assert.Equal(t, map[string]any{"title": "Factura duplicada"}, bodies["PUT /api/requests/r1"])
	assert.Equal(t, map[string]any{"level": float64(2), "priority": "Baja"}, bodies["POST /api/requests/r1/classify"])
	assert.Equal(t, map[string]any{}, bodies["POST /api/requests/r1/assign"], "an empty assignment targets the caller")
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	s := NewFileStore(path)

	tok, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.Save("abc"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear(), "clearing twice is fine")
	tok, _ = s.Load()
	assert.Empty(t, tok)
}

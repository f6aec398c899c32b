package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baiirun/mesa/internal/client"
	"github.com/baiirun/mesa/internal/model"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu          sync.Mutex
	pages       [][]model.Request
	listErr     error
	listCalls   int
	transErr    error
	transitions []client.TransitionInput
	ratings     []model.Rating
	comments    []*string
	deleted     []string
	created     []client.NewRequest
	classified  []string
	assigned    []client.Assignment
	users       []model.User
}

func (f *fakeAPI) ListRequests(_ context.Context, q client.RequestQuery) (*model.RequestPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	p := &model.RequestPage{Page: model.Page{Page: q.Page, PageSize: q.PageSize}}
	if q.Page-1 < len(f.pages) {
		p.Items = f.pages[q.Page-1]
	}
	p.HasNext = q.Page < len(f.pages)
	return p, nil
}

func (f *fakeAPI) GetRequest(_ context.Context, id string) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, page := range f.pages {
		for _, r := range page {
			if r.ID == id {
				return &r, nil
			}
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAPI) Transition(_ context.Context, _ string, in client.TransitionInput) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transErr != nil {
		return nil, f.transErr
	}
	f.transitions = append(f.transitions, in)
	return &model.Request{}, nil
}

func (f *fakeAPI) Feedback(_ context.Context, _ string, rating model.Rating, comment *string) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratings = append(f.ratings, rating)
	f.comments = append(f.comments, comment)
	return &model.Request{}, nil
}

func (f *fakeAPI) CreateRequest(_ context.Context, in client.NewRequest) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	r := newRequest("new", in.Title, model.StatusPending)
	f.pages[0] = append(f.pages[0], r)
	return &r, nil
}

func (f *fakeAPI) Classify(_ context.Context, id string, level int, priority model.Priority) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified = append(f.classified, fmt.Sprintf("%s:%d:%s", id, level, priority))
	return &model.Request{}, nil
}

func (f *fakeAPI) Assign(_ context.Context, _ string, in client.Assignment) (*model.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append(f.assigned, in)
	return &model.Request{}, nil
}

func (f *fakeAPI) ListUsers(context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, nil
}

func (f *fakeAPI) DeleteRequest(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

var (
	employee = &model.User{ID: "u-emp", Username: "facturacion1", FullName: "Carlos López", Role: model.RoleEmployee}
	tech     = &model.User{ID: "u-tech", Username: "soporte1", FullName: "Juan Pérez", Role: model.RoleSupport}
	admin    = &model.User{ID: "u-admin", Username: "admin", FullName: "Administrador Sistema", Role: model.RoleAdmin}
)

func newRequest(id, title string, status model.Status) model.Request {
	return model.Request{
		ID:            id,
		Title:         title,
		Priority:      model.PriorityMedium,
		Type:          model.TypeSupport,
		Channel:       model.ChannelSystem,
		Department:    "Facturación",
		Status:        status,
		RequesterID:   employee.ID,
		RequesterName: employee.FullName,
		RequestedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newBoard(t *testing.T, user *model.User, reqs ...model.Request) (Model, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{pages: [][]model.Request{reqs}}
	next, cmd := New(api, user).Update(requestsMsg{items: reqs})
	assert.Nil(t, cmd, "narrow board does not load detail on its own")
	return next.(Model), api
}

func keyMsg(k string) tea.KeyMsg {
	switch k {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(keyMsg(k))
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(Model)
}

func TestFilters(t *testing.T) {
	m, _ := newBoard(t, admin,
		newRequest("r1", "Factura duplicada", model.StatusPending),
		newRequest("r2", "Alertas de stock", model.StatusInProgress),
		newRequest("r3", "Reporte de ventas", model.StatusFinished),
	)
	require.Len(t, m.filtered, 3)

	// Toggle Pendiente off
	m, _ = press(t, m, "1")
	assert.Len(t, m.filtered, 2)
	assert.Equal(t, "status:2345", m.activeFiltersString())

	m, _ = press(t, m, "0")
	assert.Len(t, m.filtered, 3)

	m, _ = press(t, m, "/")
	require.Equal(t, InputSearch, m.inputMode)
	m = typeText(t, m, "STOCK")
	require.Len(t, m.filtered, 1, "search filters live while typing")
	assert.Equal(t, "r2", m.filtered[0].ID)

	m, _ = press(t, m, "enter")
	assert.Equal(t, InputNone, m.inputMode)
	assert.Equal(t, "STOCK", m.filterSearch)

	m, _ = press(t, m, "esc")
	assert.Empty(t, m.filterSearch)
	assert.Len(t, m.filtered, 3)
}

func TestFilters_KeepCursorOnSameRequest(t *testing.T) {
	m, _ := newBoard(t, admin,
		newRequest("r1", "a", model.StatusPending),
		newRequest("r2", "b", model.StatusInProgress),
		newRequest("r3", "c", model.StatusInProgress),
	)
	m, _ = press(t, m, "G")
	require.Equal(t, 2, m.cursor)

	m, _ = press(t, m, "1")
	sel, ok := m.selected()
	require.True(t, ok)
	assert.Equal(t, "r3", sel.ID)
	assert.Equal(t, 1, m.cursor)
}

func TestActions_GatedByWorkflow(t *testing.T) {
	m, api := newBoard(t, employee, newRequest("r1", "Factura", model.StatusPending))

	m, cmd := press(t, m, "t")
	assert.Nil(t, cmd)
	assert.Equal(t, "Cannot take this request", m.message)

	m, cmd = press(t, m, "D")
	assert.Nil(t, cmd)
	assert.Equal(t, InputNone, m.inputMode)
	assert.Empty(t, api.transitions)
	assert.Equal(t, "no actions", m.actionHelp())
}

func TestTake(t *testing.T) {
	m, api := newBoard(t, tech, newRequest("r1", "Factura", model.StatusPending))
	assert.Equal(t, "t:take x:reject", m.actionHelp())

	_, cmd := press(t, m, "t")
	require.NotNil(t, cmd)
	msg, ok := cmd().(actionMsg)
	require.True(t, ok)
	require.NoError(t, msg.err)
	assert.Contains(t, msg.message, "En progreso")
	require.Len(t, api.transitions, 1)
	assert.Equal(t, "take", string(api.transitions[0].Action))
}

func TestReject_RequiresReason(t *testing.T) {
	m, api := newBoard(t, tech, newRequest("r1", "Factura", model.StatusPending))

	m, _ = press(t, m, "x")
	require.Equal(t, InputReject, m.inputMode)
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd, "empty reason never reaches the server")
	assert.Error(t, m.err)

	m, _ = press(t, m, "x")
	m = typeText(t, m, "duplicada")
	_, cmd = press(t, m, "enter")
	require.NotNil(t, cmd)
	cmd()
	require.Len(t, api.transitions, 1)
	assert.Equal(t, "duplicada", api.transitions[0].Comment)
}

func TestReview_ValidatesLink(t *testing.T) {
	req := newRequest("r1", "Factura", model.StatusInProgress)
	req.AssignedTo = &tech.ID
	m, api := newBoard(t, tech, req)

	m, _ = press(t, m, "v")
	require.Equal(t, InputReview, m.inputMode)
	m = typeText(t, m, "ftp://files/x")
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	require.Error(t, m.err)

	m, _ = press(t, m, "v")
	m = typeText(t, m, "https://drive.example.com/x")
	_, cmd = press(t, m, "enter")
	require.NotNil(t, cmd)
	cmd()
	require.Len(t, api.transitions, 1)
	assert.Equal(t, "https://drive.example.com/x", api.transitions[0].EvidenceLink)
}

func TestFeedback(t *testing.T) {
	m, api := newBoard(t, employee, newRequest("r1", "Reporte", model.StatusFinished))
	assert.Equal(t, "+/-:feedback", m.actionHelp())

	m, _ = press(t, m, "-")
	require.Equal(t, InputFeedback, m.inputMode)
	_, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, []model.Rating{model.RatingDown}, api.ratings)
	assert.Nil(t, api.comments[0], "blank comment is sent as null")
}

func TestDelete_Confirm(t *testing.T) {
	m, api := newBoard(t, admin, newRequest("r1", "Factura", model.StatusPending))

	m, _ = press(t, m, "D")
	require.Equal(t, InputDelete, m.inputMode)
	m = typeText(t, m, "n")
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, "Delete canceled", m.message)

	m, _ = press(t, m, "D")
	m = typeText(t, m, "y")
	_, cmd = press(t, m, "enter")
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, []string{"r1"}, api.deleted)
}

func TestCreate_RefetchesList(t *testing.T) {
	m, api := newBoard(t, employee, newRequest("r1", "Factura", model.StatusFinished))

	m, _ = press(t, m, "n")
	require.Equal(t, InputCreate, m.inputMode)
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd, "a blank title is not sent")
	assert.Equal(t, "Create canceled", m.message)

	m, _ = press(t, m, "n")
	m = typeText(t, m, "  Impresora sin tóner ")
	m, cmd = press(t, m, "enter")
	assert.Equal(t, InputNone, m.inputMode, "the prompt closes on submit")
	require.NotNil(t, cmd)
	done := cmd().(actionMsg)
	require.NoError(t, done.err)
	require.Len(t, api.created, 1)
	assert.Equal(t, "Impresora sin tóner", api.created[0].Title)

	next, cmd := m.Update(done)
	m = next.(Model)
	assert.Equal(t, `Created "Impresora sin tóner"`, m.message)
	require.NotNil(t, cmd)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Len(t, m.filtered, 2, "the new request shows up after the refetch")
}

func TestClassify(t *testing.T) {
	m, api := newBoard(t, admin, newRequest("r1", "Factura", model.StatusPending))
	assert.Contains(t, m.actionHelp(), "c:classify a:assign")

	m, _ = press(t, m, "c")
	require.Equal(t, InputClassify, m.inputMode)
	m = typeText(t, m, "4 alta")
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.EqualError(t, m.err, `level must be 1, 2 or 3, got "4"`)

	m, _ = press(t, m, "c")
	m = typeText(t, m, "2 alta")
	_, cmd = press(t, m, "enter")
	require.NotNil(t, cmd)
	require.NoError(t, cmd().(actionMsg).err)
	assert.Equal(t, []string{"r1:2:Alta"}, api.classified)
}

func TestClassify_NotOfferedToSupport(t *testing.T) {
	m, api := newBoard(t, tech, newRequest("r1", "Factura", model.StatusPending))
	m, cmd := press(t, m, "c")
	assert.Nil(t, cmd)
	assert.Equal(t, "Cannot classify this request", m.message)
	assert.Empty(t, api.classified)
}

func TestAssign(t *testing.T) {
	m, api := newBoard(t, admin, newRequest("r1", "Factura", model.StatusPending))
	api.users = []model.User{*tech, *admin}

	// Empty input assigns to the caller
	m, _ = press(t, m, "a")
	require.Equal(t, InputAssign, m.inputMode)
	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	require.NoError(t, cmd().(actionMsg).err)

	m, _ = press(t, m, "a")
	m = typeText(t, m, "SOPORTE1")
	m, cmd = press(t, m, "enter")
	require.NoError(t, cmd().(actionMsg).err)

	m, _ = press(t, m, "a")
	m = typeText(t, m, "nadie")
	_, cmd = press(t, m, "enter")
	assert.EqualError(t, cmd().(actionMsg).err, `no user named "nadie"`)

	require.Len(t, api.assigned, 2)
	assert.Nil(t, api.assigned[0].UserID)
	require.NotNil(t, api.assigned[1].UserID)
	assert.Equal(t, tech.ID, *api.assigned[1].UserID)
}

func TestActionMsg_Refetches(t *testing.T) {
	m, api := newBoard(t, admin, newRequest("r1", "Factura", model.StatusPending))

	next, cmd := m.Update(actionMsg{message: "done"})
	m = next.(Model)
	assert.Equal(t, "done", m.message)
	require.NotNil(t, cmd)
	_, ok := cmd().(requestsMsg)
	assert.True(t, ok)
	assert.Equal(t, 1, api.listCalls)

	// Failed mutations also refetch so the board shows the current state
	next, cmd = m.Update(actionMsg{err: errors.New("transition not allowed")})
	m = next.(Model)
	assert.EqualError(t, m.err, "transition not allowed")
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 2, api.listCalls)

	// Any key clears the transient message
	m, _ = press(t, m, "j")
	assert.NoError(t, m.err)
}

func TestSessionExpired(t *testing.T) {
	m, _ := newBoard(t, admin, newRequest("r1", "Factura", model.StatusPending))

	next, cmd := m.Update(actionMsg{err: client.ErrUnauthorized})
	m = next.(Model)
	assert.True(t, m.Expired())
	assert.ErrorIs(t, m.err, ErrSessionExpired)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestLoadRequests_Paginates(t *testing.T) {
	api := &fakeAPI{pages: [][]model.Request{
		{newRequest("r1", "a", model.StatusPending)},
		{newRequest("r2", "b", model.StatusPending)},
	}}
	msg := New(api, admin).Init()().(requestsMsg)
	require.NoError(t, msg.err)
	assert.Len(t, msg.items, 2)
	assert.Equal(t, 2, api.listCalls)
}

func TestDetail_IgnoresStaleResult(t *testing.T) {
	m, _ := newBoard(t, admin,
		newRequest("r1", "a", model.StatusPending),
		newRequest("r2", "b", model.StatusPending),
	)
	stale := newRequest("r2", "b", model.StatusPending)
	next, _ := m.Update(detailMsg{id: "r2", req: &stale})
	assert.Nil(t, next.(Model).detail)

	fresh := newRequest("r1", "a (updated)", model.StatusPending)
	next, _ = m.Update(detailMsg{id: "r1", req: &fresh})
	require.NotNil(t, next.(Model).detail)
}

func TestView(t *testing.T) {
	req := newRequest("r1", "Automatizar facturación mensual", model.StatusInReview)
	from := model.StatusInProgress
	req.StateHistory = []model.StateEvent{{From: &from, To: model.StatusInReview, ByUserName: "Juan Pérez"}}
	m, _ := newBoard(t, admin, req)

	next, cmd := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	require.NotNil(t, cmd, "widening to split view loads the detail")
	m = next.(Model)
	next, _ = m.Update(cmd())
	m = next.(Model)

	out := m.View()
	assert.Contains(t, out, "1/1 requests")
	assert.Contains(t, out, "Automatizar facturación mensual")
	assert.Contains(t, out, "En progreso → En revisión")
	assert.Contains(t, out, "b:return f:finish c:classify a:assign D:delete")

	next, _ = m.Update(tea.WindowSizeMsg{Width: 60, Height: 30})
	m, _ = press(t, next.(Model), "enter")
	assert.Equal(t, ViewDetail, m.viewMode)
	assert.Contains(t, m.View(), "esc:back")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Facturación", truncate("Facturación", 11))
	assert.Equal(t, "Factura...", truncate("Facturación mensual", 10))
	assert.Equal(t, "...", truncate("abcdef", 2))
	assert.False(t, strings.ContainsRune(truncate("ñññññ", 4), '�'))
}

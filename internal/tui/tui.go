// Package tui provides the interactive request board using Bubble Tea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/baiirun/mesa/internal/client"
	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/workflow"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrSessionExpired is returned by Run when the server rejected the token.
var ErrSessionExpired = errors.New("session expired, login again")

// Backend is the subset of the API client the board talks to.
type Backend interface {
	ListRequests(ctx context.Context, q client.RequestQuery) (*model.RequestPage, error)
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	CreateRequest(ctx context.Context, in client.NewRequest) (*model.Request, error)
	Transition(ctx context.Context, id string, in client.TransitionInput) (*model.Request, error)
	Feedback(ctx context.Context, id string, rating model.Rating, comment *string) (*model.Request, error)
	Classify(ctx context.Context, id string, level int, priority model.Priority) (*model.Request, error)
	Assign(ctx context.Context, id string, in client.Assignment) (*model.Request, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteRequest(ctx context.Context, id string) error
}

// ViewMode represents the current view state.
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
)

// InputMode represents what kind of text input is active.
type InputMode int

const (
	InputNone     InputMode = iota
	InputSearch             // Entering search text
	InputReject             // Entering rejection reason
	InputReview             // Entering evidence link
	InputFeedback           // Entering optional feedback comment
	InputDelete             // Confirming deletion
	InputCreate             // Entering the title of a new request
	InputClassify           // Entering level and priority
	InputAssign             // Entering the assignee's username
)

// FocusPane represents which pane is focused in split view.
type FocusPane int

const (
	FocusList FocusPane = iota
	FocusDetail
)

const (
	minSplitWidth  = 80 // Minimum terminal width for split view
	pageSize       = 50
	maxPages       = 40
	requestTimeout = 15 * time.Second
)

// Model is the main Bubble Tea model for the board.
type Model struct {
	api      Backend
	user     *model.User
	keys     keyMap
	requests []model.Request // everything the user can see
	filtered []model.Request // requests after filtering
	cursor   int
	viewMode ViewMode

	filterStatuses map[model.Status]bool
	filterSearch   string

	inputMode InputMode
	input     textinput.Model
	rating    model.Rating // pending feedback rating while the comment is typed

	width   int
	height  int
	err     error
	message string // transient status line

	detail       *model.Request
	focusPane    FocusPane
	detailScroll int

	expired bool
}

// New creates a board for user backed by api.
func New(api Backend, user *model.User) Model {
	statuses := make(map[model.Status]bool, len(model.Statuses))
	for _, s := range model.Statuses {
		statuses[s] = true
	}
	ti := textinput.New()
	ti.CharLimit = 2000
	return Model{
		api:            api,
		user:           user,
		keys:           defaultKeyMap,
		filterStatuses: statuses,
		input:          ti,
	}
}

type requestsMsg struct {
	items []model.Request
	err   error
}

type detailMsg struct {
	id  string
	req *model.Request
	err error
}

type actionMsg struct {
	message string
	err     error
}

func (m Model) loadRequests() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		var all []model.Request
		for page := 1; page <= maxPages; page++ {
			p, err := api.ListRequests(ctx, client.RequestQuery{Page: page, PageSize: pageSize})
			if err != nil {
				return requestsMsg{err: err}
			}
			all = append(all, p.Items...)
			if !p.HasNext {
				break
			}
		}
		return requestsMsg{items: all}
	}
}

func (m Model) loadDetail() tea.Cmd {
	req, ok := m.selected()
	if !ok {
		return nil
	}
	api, id := m.api, req.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		r, err := api.GetRequest(ctx, id)
		return detailMsg{id: id, req: r, err: err}
	}
}

// mutate runs fn against the API and reports the outcome as an actionMsg.
func (m Model) mutate(done string, fn func(ctx context.Context, api Backend) error) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := fn(ctx, api); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{message: done}
	}
}

func (m Model) selected() (model.Request, bool) {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return model.Request{}, false
	}
	return m.filtered[m.cursor], true
}

// allowed lists the actions the current user has on the selected request.
func (m Model) allowed() []workflow.Action {
	req, ok := m.selected()
	if !ok || m.user == nil {
		return nil
	}
	return workflow.Actions(m.user, &req)
}

// applyFilters rebuilds the filtered list and keeps the cursor on the same
// request when it is still visible.
func (m *Model) applyFilters() {
	var keep string
	if req, ok := m.selected(); ok {
		keep = req.ID
	}

	search := strings.ToLower(m.filterSearch)
	m.filtered = m.filtered[:0:0]
	for _, r := range m.requests {
		if !m.filterStatuses[r.Status] {
			continue
		}
		if search != "" && !matches(r, search) {
			continue
		}
		m.filtered = append(m.filtered, r)
	}

	m.cursor = 0
	for i, r := range m.filtered {
		if r.ID == keep {
			m.cursor = i
			break
		}
	}
}

func matches(r model.Request, search string) bool {
	fields := []string{r.Title, r.Description, r.RequesterName, r.Department, r.ID}
	if r.AssignedToName != nil {
		fields = append(fields, *r.AssignedToName)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.loadRequests()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.message = ""
		m.err = nil
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		oldWidth := m.width
		m.width = msg.Width
		m.height = msg.Height

		if oldWidth < minSplitWidth && m.width >= minSplitWidth && len(m.filtered) > 0 {
			return m, m.loadDetail()
		}
		if m.viewMode == ViewDetail && m.width >= minSplitWidth {
			m.viewMode = ViewList
		}
		return m, nil

	case requestsMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.requests = msg.items
		m.applyFilters()
		if m.detail != nil {
			if req, ok := m.selected(); !ok || req.ID != m.detail.ID {
				m.detail = nil
			}
		}
		if (m.width >= minSplitWidth || m.viewMode == ViewDetail) && len(m.filtered) > 0 {
			return m, m.loadDetail()
		}
		return m, nil

	case detailMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		// Ignore stale results from a previous cursor position
		if req, ok := m.selected(); ok && req.ID == msg.id {
			m.detail = msg.req
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			// The request may have moved under us; show where it is now.
			m, cmd := m.fail(msg.err)
			if cmd == nil {
				cmd = m.loadRequests()
			}
			return m, cmd
		}
		m.message = msg.message
		return m, m.loadRequests()
	}

	return m, nil
}

// fail shows err on the status line, or ends the program when the session
// is no longer valid.
func (m Model) fail(err error) (Model, tea.Cmd) {
	if errors.Is(err, client.ErrUnauthorized) {
		m.expired = true
		m.err = ErrSessionExpired
		return m, tea.Quit
	}
	m.err = err
	return m, nil
}

// Expired reports whether the board stopped because the session ended.
func (m Model) Expired() bool {
	return m.expired
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.inputMode != InputNone {
		return m.handleInputKey(msg)
	}
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewDetail:
		return m.handleDetailKey(msg)
	default:
		if m.width >= minSplitWidth && m.focusPane == FocusDetail {
			return m.handleDetailPaneKey(msg)
		}
		return m.handleListKey(msg)
	}
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.inputMode == InputSearch {
			m.filterSearch = ""
			m.applyFilters()
		}
		m.stopInput()
		return m, nil
	case tea.KeyEnter:
		return m.submitInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.inputMode == InputSearch {
		m.filterSearch = m.input.Value()
		m.applyFilters()
	}
	return m, cmd
}

func (m Model) startInput(mode InputMode, prompt string) (Model, tea.Cmd) {
	m.inputMode = mode
	m.input.Prompt = prompt
	m.input.SetValue("")
	if mode == InputSearch {
		m.input.SetValue(m.filterSearch)
	}
	return m, m.input.Focus()
}

func (m *Model) stopInput() {
	m.inputMode = InputNone
	m.input.Blur()
	m.input.SetValue("")
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	mode := m.inputMode
	m.stopInput()

	switch mode {
	case InputSearch:
		m.filterSearch = text
		m.applyFilters()
		return m, nil
	case InputCreate:
		if text == "" {
			m.message = "Create canceled"
			return m, nil
		}
		return m, m.mutate(fmt.Sprintf("Created %q", text), func(ctx context.Context, api Backend) error {
			_, err := api.CreateRequest(ctx, client.NewRequest{Title: text})
			return err
		})
	}

	req, ok := m.selected()
	if !ok {
		return m, nil
	}

	switch mode {
	case InputReject:
		if _, err := workflow.ValidateRejectReason(text); err != nil {
			m.err = err
			return m, nil
		}
		return m, m.transition(req, workflow.ActionReject, client.TransitionInput{Comment: text})

	case InputReview:
		if _, err := workflow.ValidateEvidenceLink(text); err != nil {
			m.err = err
			return m, nil
		}
		return m, m.transition(req, workflow.ActionReview, client.TransitionInput{EvidenceLink: text})

	case InputFeedback:
		var comment *string
		if text != "" {
			comment = &text
		}
		rating := m.rating
		return m, m.mutate(fmt.Sprintf("Feedback sent for %q", req.Title), func(ctx context.Context, api Backend) error {
			_, err := api.Feedback(ctx, req.ID, rating, comment)
			return err
		})

	case InputClassify:
		level, priority, err := parseClassification(text)
		if err != nil {
			m.err = err
			return m, nil
		}
		done := fmt.Sprintf("Classified %q as level %d, %s", req.Title, level, priority)
		return m, m.mutate(done, func(ctx context.Context, api Backend) error {
			_, err := api.Classify(ctx, req.ID, level, priority)
			return err
		})

	case InputAssign:
		return m, m.assign(req, text)

	case InputDelete:
		if !strings.EqualFold(text, "y") && !strings.EqualFold(text, "yes") {
			m.message = "Delete canceled"
			return m, nil
		}
		return m, m.mutate(fmt.Sprintf("Moved %q to trash", req.Title), func(ctx context.Context, api Backend) error {
			return api.DeleteRequest(ctx, req.ID)
		})
	}
	return m, nil
}

// parseClassification reads "<level> <priority>", e.g. "2 alta".
func parseClassification(text string) (int, model.Priority, error) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return 0, "", errors.New("expected a level and a priority, e.g. 2 Alta")
	}
	level, err := strconv.Atoi(fields[0])
	if err != nil || level < 1 || level > 3 {
		return 0, "", fmt.Errorf("level must be 1, 2 or 3, got %q", fields[0])
	}
	for _, p := range model.Priorities {
		if strings.EqualFold(string(p), fields[1]) {
			return level, p, nil
		}
	}
	return 0, "", fmt.Errorf("unknown priority %q", fields[1])
}

// assign gives req to the user named username, or to the caller when
// username is empty.
func (m Model) assign(req model.Request, username string) tea.Cmd {
	who := username
	if who == "" {
		who = "you"
	}
	return m.mutate(fmt.Sprintf("Assigned %q to %s", req.Title, who), func(ctx context.Context, api Backend) error {
		var in client.Assignment
		if username != "" {
			users, err := api.ListUsers(ctx)
			if err != nil {
				return err
			}
			for _, u := range users {
				if strings.EqualFold(u.Username, username) {
					id := u.ID
					in.UserID = &id
					break
				}
			}
			if in.UserID == nil {
				return fmt.Errorf("no user named %q", username)
			}
		}
		_, err := api.Assign(ctx, req.ID, in)
		return err
	})
}

func (m Model) transition(req model.Request, action workflow.Action, in client.TransitionInput) tea.Cmd {
	in.Action = action
	target, _ := workflow.Target(req.Status, action)
	done := fmt.Sprintf("%q → %s", req.Title, target)
	return m.mutate(done, func(ctx context.Context, api Backend) error {
		_, err := api.Transition(ctx, req.ID, in)
		return err
	})
}

// handleAction maps an action key to the workflow. Keys for actions the user
// does not have on the selected request are ignored with a hint.
func (m Model) handleAction(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	var action workflow.Action
	switch {
	case key.Matches(msg, m.keys.Take):
		action = workflow.ActionTake
	case key.Matches(msg, m.keys.Reject):
		action = workflow.ActionReject
	case key.Matches(msg, m.keys.Review):
		action = workflow.ActionReview
	case key.Matches(msg, m.keys.Return):
		action = workflow.ActionReturn
	case key.Matches(msg, m.keys.Finish):
		action = workflow.ActionFinish
	case key.Matches(msg, m.keys.ThumbsUp), key.Matches(msg, m.keys.ThumbsDn):
		action = workflow.ActionFeedback
	case key.Matches(msg, m.keys.Classify):
		action = workflow.ActionClassify
	case key.Matches(msg, m.keys.Assign):
		action = workflow.ActionAssign
	case key.Matches(msg, m.keys.Delete):
		action = workflow.ActionDelete
	default:
		return m, nil, false
	}

	req, ok := m.selected()
	if !ok {
		return m, nil, true
	}
	if !workflow.Has(m.allowed(), action) {
		m.message = fmt.Sprintf("Cannot %s this request", action)
		return m, nil, true
	}

	switch action {
	case workflow.ActionReject:
		m, cmd := m.startInput(InputReject, "Rejection reason: ")
		return m, cmd, true
	case workflow.ActionReview:
		m, cmd := m.startInput(InputReview, "Evidence link: ")
		return m, cmd, true
	case workflow.ActionFeedback:
		m.rating = model.RatingUp
		if key.Matches(msg, m.keys.ThumbsDn) {
			m.rating = model.RatingDown
		}
		m, cmd := m.startInput(InputFeedback, "Comment (optional): ")
		return m, cmd, true
	case workflow.ActionClassify:
		m, cmd := m.startInput(InputClassify, "Level and priority (e.g. 2 Alta): ")
		return m, cmd, true
	case workflow.ActionAssign:
		m, cmd := m.startInput(InputAssign, "Assign to (username, empty for yourself): ")
		return m, cmd, true
	case workflow.ActionDelete:
		m, cmd := m.startInput(InputDelete, fmt.Sprintf("Move %q to trash? (y/N): ", req.Title))
		return m, cmd, true
	default:
		return m, m.transition(req, action, client.TransitionInput{}), true
	}
}

func (m Model) moveCursor(to int) (tea.Model, tea.Cmd) {
	if to < 0 || to >= len(m.filtered) || to == m.cursor {
		return m, nil
	}
	m.cursor = to
	m.detailScroll = 0
	m.detail = nil
	if m.width >= minSplitWidth {
		return m, m.loadDetail()
	}
	return m, nil
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m, cmd, ok := m.handleAction(msg); ok {
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Focus):
		if m.width >= minSplitWidth {
			m.focusPane = FocusDetail
		}
	case key.Matches(msg, m.keys.Up):
		return m.moveCursor(m.cursor - 1)
	case key.Matches(msg, m.keys.Down):
		return m.moveCursor(m.cursor + 1)
	case key.Matches(msg, m.keys.Top):
		return m.moveCursor(0)
	case key.Matches(msg, m.keys.Bottom):
		return m.moveCursor(len(m.filtered) - 1)

	case key.Matches(msg, m.keys.Open):
		if len(m.filtered) == 0 {
			return m, nil
		}
		if m.width < minSplitWidth {
			m.viewMode = ViewDetail
			return m, m.loadDetail()
		}
		m.focusPane = FocusDetail

	case key.Matches(msg, m.keys.Search):
		return m.startInput(InputSearch, "Search: ")
	case key.Matches(msg, m.keys.New):
		return m.startInput(InputCreate, "New request title: ")
	case key.Matches(msg, m.keys.StatusTab):
		idx := int(msg.String()[0] - '1')
		s := model.Statuses[idx]
		m.filterStatuses[s] = !m.filterStatuses[s]
		m.applyFilters()
		m.detail = nil
		return m, m.loadDetail()
	case key.Matches(msg, m.keys.ShowAll):
		for s := range m.filterStatuses {
			m.filterStatuses[s] = true
		}
		m.applyFilters()
		return m, m.loadDetail()

	case msg.Type == tea.KeyEsc:
		if m.filterSearch == "" {
			return m, tea.Quit
		}
		m.filterSearch = ""
		m.applyFilters()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadRequests()
	}
	return m, nil
}

// handleDetailPaneKey handles keys when the detail pane is focused in split view.
func (m Model) handleDetailPaneKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m, cmd, ok := m.handleAction(msg); ok {
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Focus), key.Matches(msg, m.keys.Back):
		m.focusPane = FocusList
	case key.Matches(msg, m.keys.Up):
		if m.detailScroll > 0 {
			m.detailScroll--
		}
	case key.Matches(msg, m.keys.Down):
		m.detailScroll++
	case key.Matches(msg, m.keys.Top):
		m.detailScroll = 0
	case key.Matches(msg, m.keys.Bottom):
		// Bounded by content at render time
		m.detailScroll = 9999
	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadRequests()
	}
	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m, cmd, ok := m.handleAction(msg); ok {
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		m.viewMode = ViewList
	case key.Matches(msg, m.keys.Up):
		if m.detailScroll > 0 {
			m.detailScroll--
		}
	case key.Matches(msg, m.keys.Down):
		m.detailScroll++
	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadDetail()
	}
	return m, nil
}

// Run starts the board and blocks until the user quits.
func Run(api Backend, user *model.User) error {
	p := tea.NewProgram(New(api, user), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.Expired() {
		return ErrSessionExpired
	}
	return nil
}

package tui

import (
	"github.com/baiirun/mesa/internal/workflow"
	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Top     key.Binding
	Bottom  key.Binding
	Open    key.Binding
	Back    key.Binding
	Focus   key.Binding
	Refresh key.Binding
	Quit    key.Binding

	Search    key.Binding
	New       key.Binding
	ShowAll   key.Binding
	StatusTab key.Binding // 1-5 toggle one status each

	Take     key.Binding
	Reject   key.Binding
	Review   key.Binding
	Return   key.Binding
	Finish   key.Binding
	ThumbsUp key.Binding
	ThumbsDn key.Binding
	Classify key.Binding
	Assign   key.Binding
	Delete   key.Binding
}

var defaultKeyMap = keyMap{
	Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Top:     key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
	Bottom:  key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
	Open:    key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "detail")),
	Back:    key.NewBinding(key.WithKeys("esc", "h", "backspace"), key.WithHelp("esc", "back")),
	Focus:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

	Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	New:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
	ShowAll:   key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "all")),
	StatusTab: key.NewBinding(key.WithKeys("1", "2", "3", "4", "5"), key.WithHelp("1-5", "status")),

	Take:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "take")),
	Reject:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "reject")),
	Review:   key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "review")),
	Return:   key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "return")),
	Finish:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "finish")),
	ThumbsUp: key.NewBinding(key.WithKeys("+"), key.WithHelp("+", "👍")),
	ThumbsDn: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "👎")),
	Classify: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "classify")),
	Assign:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "assign")),
	Delete:   key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "delete")),
}

// actionHelp is the footer hint for each workflow action, in display order.
var actionHelp = []struct {
	action workflow.Action
	label  string
}{
	{workflow.ActionTake, "t:take"},
	{workflow.ActionReject, "x:reject"},
	{workflow.ActionReview, "v:review"},
	{workflow.ActionReturn, "b:return"},
	{workflow.ActionFinish, "f:finish"},
	{workflow.ActionFeedback, "+/-:feedback"},
	{workflow.ActionClassify, "c:classify"},
	{workflow.ActionAssign, "a:assign"},
	{workflow.ActionDelete, "D:delete"},
}

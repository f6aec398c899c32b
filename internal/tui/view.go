package tui

import (
	"fmt"
	"strings"

	"github.com/baiirun/mesa/internal/model"
	"github.com/baiirun/mesa/internal/workflow"
	"github.com/charmbracelet/lipgloss"
)

const contentPadding = 2

// Status icons
var statusIcons = map[model.Status]string{
	model.StatusPending:    "○",
	model.StatusInProgress: "◐",
	model.StatusInReview:   "◑",
	model.StatusFinished:   "●",
	model.StatusRejected:   "✗",
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57"))

	statusColors = map[model.Status]lipgloss.Color{
		model.StatusPending:    lipgloss.Color("252"),
		model.StatusInProgress: lipgloss.Color("214"),
		model.StatusInReview:   lipgloss.Color("141"),
		model.StatusFinished:   lipgloss.Color("42"),
		model.StatusRejected:   lipgloss.Color("196"),
	}

	priorityColors = map[model.Priority]lipgloss.Color{
		model.PriorityHigh:   lipgloss.Color("196"),
		model.PriorityMedium: lipgloss.Color("214"),
		model.PriorityLow:    lipgloss.Color("245"),
	}

	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	filterStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	inputStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	messageStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("147"))
)

func statusIcon(s model.Status) string {
	if icon, ok := statusIcons[s]; ok {
		return icon
	}
	return "?"
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return "..."
	}
	return string(r[:n-3]) + "..."
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	switch m.viewMode {
	case ViewList:
		b.WriteString(m.listView())
	case ViewDetail:
		b.WriteString(m.detailView(0))
	}

	if m.inputMode != InputNone {
		b.WriteString("\n")
		b.WriteString(inputStyle.Render(m.input.View()))
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
	} else if m.message != "" {
		b.WriteString("\n")
		b.WriteString(messageStyle.Render(m.message))
	}

	padStyle := lipgloss.NewStyle().
		PaddingLeft(contentPadding).
		PaddingRight(contentPadding).
		PaddingTop(1)

	return padStyle.Render(b.String())
}

func (m Model) listView() string {
	if m.width >= minSplitWidth {
		return m.splitView()
	}
	height := m.height - 8
	if height < 10 {
		height = 15
	}
	return m.renderListPane(m.width-(contentPadding*2), height)
}

// splitView renders the list on the left and the selected request on the right.
func (m Model) splitView() string {
	focusedColor := lipgloss.Color("39")
	unfocusedColor := lipgloss.Color("241")

	// Each pane has a border on both sides, plus one column between panes.
	gap := 1
	borderChars := 4
	availableWidth := m.width - borderChars - gap - (contentPadding * 2)
	leftContentWidth := availableWidth / 2
	rightContentWidth := availableWidth - leftContentWidth

	// Outer padding top, both borders and the status line
	contentHeight := m.height - 4
	if contentHeight < 10 {
		contentHeight = 10
	}

	leftLines := normalizeLines(strings.Split(m.renderListPane(leftContentWidth, contentHeight), "\n"),
		contentHeight, leftContentWidth)
	rightLines := normalizeLines(strings.Split(m.detailViewWithHeight(rightContentWidth, contentHeight), "\n"),
		contentHeight, rightContentWidth)

	leftColor, rightColor := unfocusedColor, unfocusedColor
	if m.focusPane == FocusList {
		leftColor = focusedColor
	} else {
		rightColor = focusedColor
	}

	leftBox := buildBorderedBox(leftLines, leftContentWidth, leftColor)
	rightBox := buildBorderedBox(rightLines, rightContentWidth, rightColor)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftBox, strings.Repeat(" ", gap), rightBox)
}

// normalizeLines ensures the slice has exactly `height` lines, each padded to `width`.
func normalizeLines(lines []string, height, width int) []string {
	result := make([]string, height)
	for i := 0; i < height; i++ {
		if i < len(lines) {
			result[i] = padToWidth(lines[i], width)
		} else {
			result[i] = strings.Repeat(" ", width)
		}
	}
	return result
}

// buildBorderedBox draws a rounded border around content lines.
func buildBorderedBox(lines []string, contentWidth int, borderColor lipgloss.Color) string {
	style := lipgloss.NewStyle().Foreground(borderColor)
	horizontal := strings.Repeat(style.Render("─"), contentWidth)
	vertical := style.Render("│")

	var b strings.Builder
	b.WriteString(style.Render("╭") + horizontal + style.Render("╮") + "\n")
	for _, line := range lines {
		b.WriteString(vertical + line + vertical + "\n")
	}
	b.WriteString(style.Render("╰") + horizontal + style.Render("╯"))
	return b.String()
}

// padToWidth pads s with spaces to the visible width, ignoring ANSI codes.
func padToWidth(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func (m Model) renderListPane(width, height int) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mesa"))
	b.WriteString(fmt.Sprintf("  %d/%d requests", len(m.filtered), len(m.requests)))
	if m.user != nil {
		b.WriteString("  " + dimStyle.Render(m.user.Username+" ("+string(m.user.Role)+")"))
	}
	if filters := m.activeFiltersString(); filters != "" {
		if width > 30 {
			filters = truncate(filters, width-20)
		}
		b.WriteString("  ")
		b.WriteString(filterStyle.Render(filters))
	}
	b.WriteString("\n\n")

	// Header and footer take two and three lines
	rowsHeight := max(height-5, 3)

	if len(m.filtered) == 0 {
		b.WriteString("No requests match filters\n")
	} else {
		start := 0
		if m.cursor >= rowsHeight {
			start = m.cursor - rowsHeight + 1
		}
		end := min(start+rowsHeight, len(m.filtered))
		rowWidth := max(width, 40)

		for i := start; i < end; i++ {
			r := m.filtered[i]
			if i == m.cursor {
				b.WriteString(selectedRowStyle.Width(rowWidth).Render(formatRowPlain(r, rowWidth)))
			} else {
				b.WriteString(lipgloss.NewStyle().Width(rowWidth).Render(formatRowStyled(r, rowWidth)))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.actionHelp()))
	b.WriteString("\n")
	if m.width >= minSplitWidth {
		b.WriteString(helpStyle.Render("j/k:nav  tab:focus  /:search 1-5:status 0:all  n:new r:refresh q:quit"))
	} else {
		b.WriteString(helpStyle.Render("j/k:nav  enter:detail  /:search 1-5:status 0:all  n:new r:refresh q:quit"))
	}
	return b.String()
}

// actionHelp lists only the actions the user has on the selected request.
func (m Model) actionHelp() string {
	allowed := m.allowed()
	var parts []string
	for _, h := range actionHelp {
		if workflow.Has(allowed, h.action) {
			parts = append(parts, h.label)
		}
	}
	if len(parts) == 0 {
		return "no actions"
	}
	return strings.Join(parts, " ")
}

// rowColumns returns the row's priority tag, title and requester, with the
// title cut to fit width.
func rowColumns(r model.Request, width int) (string, string, string) {
	prio := fmt.Sprintf("%-5s", r.Priority)
	requester := truncate(r.RequesterName, 18)
	// icon, spaces and the two fixed columns
	titleWidth := width - 4 - 5 - 2 - len([]rune(requester))
	if titleWidth < 20 {
		titleWidth = 20
	}
	title := truncate(r.Title, titleWidth)
	return prio, fmt.Sprintf("%-*s", titleWidth, title), requester
}

// formatRowPlain is used for the selected row, which gets a single highlight style.
func formatRowPlain(r model.Request, width int) string {
	prio, title, requester := rowColumns(r, width)
	return fmt.Sprintf("%s %s %s %s", statusIcon(r.Status), prio, title, requester)
}

func formatRowStyled(r model.Request, width int) string {
	prio, title, requester := rowColumns(r, width)
	icon := lipgloss.NewStyle().Foreground(statusColors[r.Status]).Render(statusIcon(r.Status))
	prio = lipgloss.NewStyle().Foreground(priorityColors[r.Priority]).Render(prio)
	return fmt.Sprintf("%s %s %s %s", icon, prio, title, dimStyle.Render(requester))
}

func (m Model) activeFiltersString() string {
	var parts []string

	var statuses []string
	for i, s := range model.Statuses {
		if m.filterStatuses[s] {
			statuses = append(statuses, fmt.Sprintf("%d", i+1))
		}
	}
	if len(statuses) < len(model.Statuses) {
		parts = append(parts, "status:"+strings.Join(statuses, ""))
	}
	if m.filterSearch != "" {
		parts = append(parts, "search:\""+m.filterSearch+"\"")
	}
	return strings.Join(parts, " ")
}

// detailView renders the full-screen detail used on narrow terminals.
func (m Model) detailView(width int) string {
	return m.detailViewWithHeight(width, 0)
}

// detailViewWithHeight renders the selected request. A zero width means full
// screen; otherwise lines are cut to width and the scroll offset applies.
func (m Model) detailViewWithHeight(width, height int) string {
	sel, ok := m.selected()
	if !ok {
		return "No request selected"
	}
	r := sel
	if m.detail != nil && m.detail.ID == sel.ID {
		r = *m.detail
	}

	effectiveWidth := width
	if effectiveWidth == 0 {
		effectiveWidth = m.width - (contentPadding * 2)
	}
	effectiveWidth = max(effectiveWidth, 40)
	cut := func(s string, n int) string {
		if width == 0 {
			return s
		}
		return truncate(s, n)
	}
	field := func(label, value string) string {
		return detailLabelStyle.Render(fmt.Sprintf("%-11s", label)) + cut(value, effectiveWidth-11)
	}

	color := statusColors[r.Status]
	var lines []string
	lines = append(lines,
		lipgloss.NewStyle().Foreground(color).Render(statusIcon(r.Status))+" "+titleStyle.Render(cut(r.Title, effectiveWidth-4)),
		"",
		field("ID:", r.ID),
		detailLabelStyle.Render(fmt.Sprintf("%-11s", "Status:"))+lipgloss.NewStyle().Foreground(color).Render(string(r.Status)),
		field("Priority:", string(r.Priority)),
		field("Type:", string(r.Type)),
		field("Channel:", string(r.Channel)),
		field("Department:", r.Department),
	)
	if r.Level != nil {
		lines = append(lines, field("Level:", fmt.Sprintf("%d", *r.Level)))
	}
	lines = append(lines, field("Requester:", r.RequesterName))
	if r.AssignedToName != nil {
		lines = append(lines, field("Assignee:", *r.AssignedToName))
	}
	lines = append(lines, field("Requested:", r.RequestedAt.Local().Format("2006-01-02 15:04")))
	if r.EstimatedHours != nil {
		lines = append(lines, field("Estimate:", fmt.Sprintf("%.1fh", *r.EstimatedHours)))
	}
	if r.WorklogHours > 0 {
		lines = append(lines, field("Logged:", fmt.Sprintf("%.1fh", r.WorklogHours)))
	}
	if r.CompletionDate != nil {
		lines = append(lines, field("Completed:", r.CompletionDate.Local().Format("2006-01-02 15:04")))
	}
	if r.RejectionReason != nil {
		lines = append(lines, field("Rejected:", *r.RejectionReason))
	}
	if r.ReviewEvidence != nil {
		lines = append(lines, field("Evidence:", r.ReviewEvidence.URL))
	}
	if r.Feedback != nil {
		fb := "👍"
		if r.Feedback.Rating == model.RatingDown {
			fb = "👎"
		}
		if r.Feedback.Comment != nil {
			fb += " " + *r.Feedback.Comment
		}
		lines = append(lines, field("Feedback:", fb))
	}

	if r.Description != "" {
		lines = append(lines, "", detailLabelStyle.Render("Description:"))
		for _, dl := range strings.Split(r.Description, "\n") {
			lines = append(lines, cut(dl, effectiveWidth))
		}
	}

	if len(r.StateHistory) > 0 {
		lines = append(lines, "", detailLabelStyle.Render("History:"))
		for _, ev := range r.StateHistory {
			ts := dimStyle.Render(ev.At.Local().Format("2006-01-02 15:04"))
			change := string(ev.To)
			if ev.From != nil {
				change = string(*ev.From) + " → " + change
			}
			lines = append(lines, "  "+ts+" "+cut(change, effectiveWidth-20)+" "+labelStyle.Render(ev.ByUserName))
		}
	}

	if width == 0 {
		lines = append(lines, "", helpStyle.Render(m.actionHelp()+"  esc:back  q:quit"))
		return strings.Join(lines, "\n")
	}

	visibleHeight := height
	if visibleHeight <= 0 {
		visibleHeight = len(lines)
	}
	scroll := min(m.detailScroll, max(0, len(lines)-visibleHeight))
	end := min(scroll+visibleHeight, len(lines))
	return strings.Join(lines[scroll:end], "\n")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ui/styles"
	"github.com/jeranaias/rigchat/internal/util"
)

const maxCompletionRows = 8

// View renders the whole screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	parts := []string{m.renderHeader(), m.viewport.View()}
	if popup := m.renderCompletion(); popup != "" {
		parts = append(parts, popup)
	}
	parts = append(parts, m.renderInput(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	sess := m.ctrl.Session()
	title := sess.Title
	if sess.IsDraft() || title == "" {
		title = "New chat"
	}

	brand := m.theme.HeaderBrand.Render("rigchat")
	subtitle := ""
	if m.backendURL != "" {
		subtitle = m.theme.HeaderSubtitle.Render(m.backendURL)
	}
	room := m.width - lipgloss.Width(brand) - lipgloss.Width(subtitle) - 6
	title = m.theme.HeaderTitle.Render(util.TruncateWidth(util.SingleLine(title), max(room, 8)))

	line := brand + "  " + title
	if subtitle != "" {
		gap := max(m.width-lipgloss.Width(line)-lipgloss.Width(subtitle)-2, 1)
		line += strings.Repeat(" ", gap) + subtitle
	}
	return m.theme.Header.Width(m.width).MaxHeight(1).Render(line)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderTranscript() string {
	snap := m.tl.Snapshot()
	var sb strings.Builder

	if snap.Len() == 0 && m.commandOutput == "" {
		sb.WriteString(m.theme.EmptyState.Render(emptyStateText(m.ctrl.Model())))
	}
	for msg := range snap.All() {
		sb.WriteString(m.renderMessage(msg))
		sb.WriteString("\n\n")
	}
	if m.commandOutput != "" {
		sb.WriteString(m.theme.CommandOutput.Render(wrapPlain(m.commandOutput, m.theme.ContentWidth()-4)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func emptyStateText(capability *model.ModelCapability) string {
	if capability == nil {
		return "No model selected. Use /models and /model to pick one."
	}
	return fmt.Sprintf("Chatting with %s. Type a message, or /help for commands.", capability.Name)
}

func (m Model) renderMessage(msg model.Message) string {
	width := m.theme.ContentWidth()

	label := m.theme.Label(msg.Role)
	if mark := styles.RenderMark(msg.Status); mark != "" {
		label += " " + mark
	}
	if !msg.CreatedAt.IsZero() {
		label += " " + m.theme.MessageMeta.Render(msg.CreatedAt.Format("15:04"))
	}

	bubble := m.theme.Bubble(msg.Role, msg.Status)
	var body string
	switch {
	case msg.Role == model.RoleUser, msg.Status == model.StatusErrored:
		body = wrapPlain(msg.Content, width-2)
	case msg.Status == model.StatusPending:
		body = m.spinner.View() + " Thinking"
	case msg.Status == model.StatusStreaming:
		body = wrapPlain(msg.Content+styles.TypingCursor, width-2)
	default:
		body = m.markdown.render(msg.ID, msg.Content)
	}
	return label + "\n" + bubble.Render(body)
}

// =============================================================================
// COMPLETION POPUP
// =============================================================================

func (m Model) renderCompletion() string {
	if !m.completion.Visible || len(m.completion.Completions) == 0 {
		return ""
	}

	items := m.completion.Completions
	start := 0
	if m.completion.Selected >= maxCompletionRows {
		start = m.completion.Selected - maxCompletionRows + 1
	}
	end := min(start+maxCompletionRows, len(items))

	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		c := items[i]
		row := m.theme.CompletionItem.Render(c.Display)
		if i == m.completion.Selected {
			row = m.theme.CompletionSelected.Render(c.Display)
		}
		if c.Description != "" {
			row += "  " + m.theme.CompletionDesc.Render(c.Description)
		}
		rows = append(rows, row)
	}
	if len(items) > maxCompletionRows {
		rows = append(rows, m.theme.CompletionDesc.Render(
			fmt.Sprintf("%d/%d", m.completion.Selected+1, len(items))))
	}
	return m.theme.CompletionPopup.Render(strings.Join(rows, "\n"))
}

// =============================================================================
// INPUT AND FOOTER
// =============================================================================

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

// renderFooter shows the notice line, then the status bar or full help.
func (m Model) renderFooter() string {
	var lines []string
	switch {
	case m.running != "":
		lines = append(lines, m.theme.Notice.Render(m.spinner.View()+" "+m.running))
	case m.notice != "" && m.noticeIsError:
		lines = append(lines, m.theme.NoticeError.Render(styles.MarkErrored+" "+m.notice))
	case m.notice != "":
		lines = append(lines, m.theme.Notice.Render(m.notice))
	}

	m.help.ShowAll = m.showHelp
	if m.showHelp {
		lines = append(lines, m.help.View(m.keys))
	}
	lines = append(lines, m.renderStatusBar())
	return strings.Join(lines, "\n")
}

func (m Model) renderStatusBar() string {
	t := m.theme
	state := m.ctrl.State()
	eff := m.ctrl.Effective()

	stateText := t.StatusValue.Render(state.String())
	if state.Busy() {
		stateText = t.StatusBusy.Render(m.spinner.View() + " " + state.String())
	}

	modelName := "none"
	if c := m.ctrl.Model(); c != nil {
		modelName = c.Name
	}

	left := strings.Join([]string{
		stateText,
		t.StatusKey.Render("model ") + t.StatusValue.Render(modelName),
		t.StatusKey.Render("stream ") + m.onOff(eff.StreamingEnabled),
		t.StatusKey.Render("context ") + m.onOff(eff.ContextEnabled),
	}, t.StatusKey.Render(" | "))

	right := ""
	if !m.showHelp {
		right = m.help.ShortHelpView(m.keys.ShortHelp())
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		right, gap = "", 1
	}
	return t.StatusBar.Width(m.width).MaxHeight(1).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) onOff(on bool) string {
	if on {
		return m.theme.StatusOn.Render("on")
	}
	return m.theme.StatusOff.Render("off")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/conversation"
)

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.input.SetWidth(msg.Width)
		m.help.Width = msg.Width
		m.ready = true
		m.layout()
		m.refresh(true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case timelineChangedMsg:
		if msg.timeline != m.tl {
			return m, nil
		}
		m.refresh(false)
		return m, waitForTimeline(m.tl, m.tlSignal)

	case controllerChangedMsg:
		if m.ctrl.Timeline() != m.tl {
			m.subscribeTimeline()
			cmds = append(cmds, waitForTimeline(m.tl, m.tlSignal))
		}
		m.refresh(false)
		cmds = append(cmds, waitForController(m.ctrlSignal))
		return m, tea.Batch(cmds...)

	case commandDoneMsg:
		return m.handleCommandDone(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.ctrl.State().Busy() {
			m.refresh(false)
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.ctrl.Cancel() {
			m.setNotice("Stopped. Press Ctrl+C again to quit.", false)
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		if m.completion.Visible {
			m.completion.Clear()
			m.layout()
			return m, nil
		}
		if m.ctrl.Cancel() {
			m.setNotice("Stopped.", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Complete):
		m.cycleCompletion(true)
		return m, nil

	case key.Matches(msg, m.keys.CompletePrev):
		m.cycleCompletion(false)
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.completion.Visible {
			m.acceptCompletion()
			return m, nil
		}
		return m.submit()

	case key.Matches(msg, m.keys.NewChat):
		return m.execute("/new")

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.completion.Visible {
		m.completion.Update(m.completer.Complete(m.input.Value()))
		m.layout()
	}
	return m, cmd
}

// submit sends the input as a message, or runs it as a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if commands.IsCommand(text) {
		m.input.Reset()
		return m.execute(text)
	}

	m.setNotice("", false)
	m.commandOutput = ""
	if err := m.ctrl.Send(m.ctx, text); err != nil {
		switch {
		case errors.Is(err, conversation.ErrNoModel):
			// The timeline already explains it.
			m.input.Reset()
		case errors.Is(err, conversation.ErrBusy):
			m.setNotice("A reply is still arriving. Press Esc to stop it.", true)
		default:
			m.setNotice(err.Error(), true)
		}
		m.layout()
		m.refresh(true)
		return m, nil
	}
	m.input.Reset()
	m.layout()
	m.refresh(true)
	return m, nil
}

func (m Model) execute(input string) (tea.Model, tea.Cmd) {
	if m.running != "" {
		m.setNotice("Still running "+m.running+".", true)
		return m, nil
	}
	m.running = commands.ExtractCommandName(input)
	m.setNotice("", false)
	m.completion.Clear()
	m.layout()
	return m, runCommand(m.ctx, m.env, input)
}

func (m Model) handleCommandDone(msg commandDoneMsg) (tea.Model, tea.Cmd) {
	m.running = ""
	if msg.err != nil {
		m.setNotice(msg.err.Error(), true)
	} else {
		m.commandOutput = msg.result.Output
	}
	if msg.result.Quit {
		return m, tea.Quit
	}
	m.layout()
	m.refresh(true)
	return m, nil
}

// =============================================================================
// COMPLETION
// =============================================================================

func (m *Model) cycleCompletion(forward bool) {
	if !m.completion.Visible {
		m.completion.Update(m.completer.Complete(m.input.Value()))
		if len(m.completion.Completions) == 1 {
			m.acceptCompletion()
			return
		}
		m.layout()
		return
	}
	if forward {
		m.completion.Next()
	} else {
		m.completion.Prev()
	}
}

func (m *Model) acceptCompletion() {
	if value := m.completion.Accept(); value != "" {
		m.input.SetValue(applyCompletion(m.input.Value(), value))
		m.input.CursorEnd()
	}
	m.completion.Clear()
	m.layout()
}

// applyCompletion replaces the last word of input with value, quoting values
// the command parser would otherwise split.
func applyCompletion(input, value string) string {
	if strings.ContainsAny(value, " \t\"'") {
		value = strconv.Quote(value)
	}
	idx := strings.LastIndexAny(input, " \t")
	return input[:idx+1] + value + " "
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport to what the other regions leave over.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	used := lipgloss.Height(m.renderHeader()) +
		lipgloss.Height(m.renderInput()) +
		lipgloss.Height(m.renderFooter())
	if popup := m.renderCompletion(); popup != "" {
		used += lipgloss.Height(popup)
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-used, 1)
	m.markdown.setWidth(m.theme.ContentWidth())
}

// refresh re-renders the transcript. The view stays pinned to the bottom
// when it was there already, or when force is set.
func (m *Model) refresh(force bool) {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderTranscript())
	if force || atBottom {
		m.viewport.GotoBottom()
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/timeline"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

const inputHeight = 3

// Options configures the chat screen.
type Options struct {
	// Context parents every turn and command (default: context.Background()).
	Context context.Context

	// Env gives access to the controller and the slash commands. Required.
	Env *commands.Env

	// BackendURL is shown in the header.
	BackendURL string

	// Notice is shown until the first action, e.g. a startup warning.
	Notice string

	// Theme (default: styles.NewTheme())
	Theme *styles.Theme
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen. It renders the active
// session's timeline and turns input into controller calls and commands.
type Model struct {
	ctx        context.Context
	ctrl       *conversation.Controller
	env        *commands.Env
	completer  *commands.Completer
	theme      *styles.Theme
	keys       KeyMap
	backendURL string

	// UI components
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	help     help.Model
	markdown *markdownRenderer

	width  int
	height int
	ready  bool

	// Subscriptions. The timeline is replaced on every session switch.
	tl         *timeline.Timeline
	tlSignal   <-chan struct{}
	tlUnsub    func()
	ctrlSignal <-chan struct{}
	ctrlUnsub  func()

	completion    commands.CompletionState
	commandOutput string
	running       string // slash command in flight
	notice        string
	noticeIsError bool
	showHelp      bool
}

// New creates the chat screen.
func New(opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}

	ta := textarea.New()
	ta.Placeholder = "Message, or /help for commands"
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline = DefaultKeyMap().Newline
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = theme.InputPrompt
	ta.FocusedStyle.Placeholder = theme.InputPlaceholder
	ta.Focus()

	m := Model{
		ctx:        opts.Context,
		ctrl:       opts.Env.Controller,
		env:        opts.Env,
		completer:  commands.NewCompleter(opts.Env),
		theme:      theme,
		keys:       DefaultKeyMap(),
		backendURL: opts.BackendURL,
		viewport:   viewport.New(0, 0),
		input:      ta,
		spinner:    styles.NewSpinner(styles.SpinnerLine, theme),
		help:       help.New(),
		markdown:   newMarkdownRenderer(theme.ColorProfile, theme.IsDark),
		notice:     opts.Notice,
	}
	m.ctrlSignal, m.ctrlUnsub = m.ctrl.Subscribe()
	m.subscribeTimeline()
	return m
}

// Init starts the subscriptions and animations.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForController(m.ctrlSignal),
		waitForTimeline(m.tl, m.tlSignal),
		m.spinner.Tick,
		textarea.Blink,
	)
}

// Close releases the subscriptions. Call it after the program exits.
func (m Model) Close() {
	if m.tlUnsub != nil {
		m.tlUnsub()
	}
	if m.ctrlUnsub != nil {
		m.ctrlUnsub()
	}
}

// subscribeTimeline follows the controller's current timeline, dropping the
// previous subscription.
func (m *Model) subscribeTimeline() {
	if m.tlUnsub != nil {
		m.tlUnsub()
	}
	m.tl = m.ctrl.Timeline()
	m.tlSignal, m.tlUnsub = m.tl.Subscribe()
}

func (m *Model) setNotice(text string, isError bool) {
	m.notice = text
	m.noticeIsError = isError
}

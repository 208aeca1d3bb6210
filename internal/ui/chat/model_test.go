// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/transport/transporttest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func echoModel() *model.ModelCapability {
	return &model.ModelCapability{
		ID:              "1",
		Name:            "echo",
		ModelName:       "echo",
		Active:          true,
		EnableStreaming: true,
	}
}

func newTestModel(t *testing.T, fake *transporttest.Fake, capability *model.ModelCapability) Model {
	t.Helper()
	ctrl := conversation.New(conversation.Config{Transport: fake})
	if capability != nil {
		ctrl.SelectModel(capability)
	}
	m := New(Options{Env: commands.NewEnv(ctrl, nil), BackendURL: "http://localhost:8000"})
	t.Cleanup(m.Close)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	return update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func waitIdle(t *testing.T, m Model) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.ctrl.Wait(ctx))
}

// =============================================================================
// TESTS
// =============================================================================

func TestViewBeforeResize(t *testing.T) {
	ctrl := conversation.New(conversation.Config{Transport: &transporttest.Fake{}})
	m := New(Options{Env: commands.NewEnv(ctrl, nil)})
	defer m.Close()
	assert.Equal(t, "Loading...", m.View())
}

func TestEmptyState(t *testing.T) {
	m := newTestModel(t, &transporttest.Fake{}, echoModel())
	view := m.View()
	assert.Contains(t, view, "rigchat")
	assert.Contains(t, view, "New chat")
	assert.Contains(t, view, "Chatting with echo")
	assert.Contains(t, view, "http://localhost:8000")
}

func TestSubmitStreamsReply(t *testing.T) {
	fake := &transporttest.Fake{Chunks: transporttest.Frames(
		stream.Content("Hi "),
		stream.Content("there"),
		stream.Done(""),
	)}
	m := newTestModel(t, fake, echoModel())

	m, cmd := typeAndSubmit(t, m, "hello")
	assert.Nil(t, cmd)
	assert.Empty(t, m.input.Value())

	waitIdle(t, m)
	m, cmd = update(t, m, timelineChangedMsg{timeline: m.tl})
	require.NotNil(t, cmd, "the subscription is renewed")

	view := m.View()
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "Hi there")
	assert.Equal(t, 1, fake.StreamCalls())
}

func TestSubmitIgnoresBlankInput(t *testing.T) {
	fake := &transporttest.Fake{}
	m := newTestModel(t, fake, echoModel())

	m, cmd := typeAndSubmit(t, m, "   ")
	assert.Nil(t, cmd)
	assert.Equal(t, 0, fake.Calls())
	assert.Equal(t, 0, m.tl.Len())
}

func TestSubmitWithoutModelShowsNotice(t *testing.T) {
	fake := &transporttest.Fake{}
	m := newTestModel(t, fake, nil)

	m, _ = typeAndSubmit(t, m, "hi")
	assert.Equal(t, 0, fake.Calls())
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "Please select an available model first")
}

func TestSubmitWhileBusyKeepsInput(t *testing.T) {
	fake := &transporttest.Fake{
		Chunks: transporttest.Frames(stream.Content("slow"), stream.Done("")),
		Gate:   make(chan struct{}),
	}
	m := newTestModel(t, fake, echoModel())

	m, _ = typeAndSubmit(t, m, "first")
	require.True(t, m.ctrl.State().Busy())

	m, _ = typeAndSubmit(t, m, "second")
	assert.Equal(t, "second", m.input.Value())
	assert.Contains(t, m.notice, "still arriving")

	m.ctrl.Cancel()
	waitIdle(t, m)
}

func TestCtrlCStopsThenQuits(t *testing.T) {
	fake := &transporttest.Fake{
		Chunks: transporttest.Frames(stream.Content("never"), stream.Done("")),
		Gate:   make(chan struct{}),
	}
	m := newTestModel(t, fake, echoModel())
	m, _ = typeAndSubmit(t, m, "hello")
	require.True(t, m.ctrl.State().Busy())

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Nil(t, cmd)
	assert.Contains(t, m.notice, "Stopped")
	waitIdle(t, m)

	last, ok := m.tl.Snapshot().Last()
	require.True(t, ok)
	assert.Equal(t, model.StatusErrored, last.Status)

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestSlashCommandRunsOffTheUIGoroutine(t *testing.T) {
	m := newTestModel(t, &transporttest.Fake{}, echoModel())

	m, cmd := typeAndSubmit(t, m, "/help")
	require.NotNil(t, cmd)
	assert.Equal(t, "/help", m.running)
	assert.Empty(t, m.input.Value())

	msg := cmd()
	done, ok := msg.(commandDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	m, cmd = update(t, m, msg)
	assert.Nil(t, cmd)
	assert.Empty(t, m.running)
	assert.Contains(t, m.commandOutput, "/new")
	assert.Contains(t, m.View(), "/new")
}

func TestSlashCommandErrorBecomesNotice(t *testing.T) {
	m := newTestModel(t, &transporttest.Fake{}, echoModel())

	m, cmd := typeAndSubmit(t, m, "/chats")
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.True(t, m.noticeIsError)
	assert.Contains(t, m.notice, commands.ErrOffline.Error())
}

func TestQuitCommand(t *testing.T) {
	m := newTestModel(t, &transporttest.Fake{}, echoModel())

	m, cmd := typeAndSubmit(t, m, "/quit")
	require.NotNil(t, cmd)
	_, cmd = update(t, m, cmd())
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestNewChatResubscribes(t *testing.T) {
	fake := &transporttest.Fake{Chunks: transporttest.Frames(stream.Content("ok"), stream.Done(""))}
	m := newTestModel(t, fake, echoModel())
	m, _ = typeAndSubmit(t, m, "hello")
	waitIdle(t, m)

	old := m.tl
	m.ctrl.NewChat()
	m, cmd := update(t, m, controllerChangedMsg{})
	require.NotNil(t, cmd)
	assert.NotSame(t, old, m.tl)
	assert.Same(t, m.ctrl.Timeline(), m.tl)
	assert.NotContains(t, m.View(), "hello")

	// Signals from the replaced timeline are dropped.
	_, cmd = update(t, m, timelineChangedMsg{timeline: old})
	assert.Nil(t, cmd)
}

func TestTabCompletion(t *testing.T) {
	m := newTestModel(t, &transporttest.Fake{}, echoModel())

	// A single match is accepted at once.
	m.input.SetValue("/sta")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "/status ", m.input.Value())
	assert.False(t, m.completion.Visible)

	// Several matches open the popup; Enter accepts instead of submitting.
	m.input.SetValue("/mo")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.True(t, m.completion.Visible)
	assert.Contains(t, m.View(), "/models")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 1, m.completion.Selected)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, 0, m.completion.Selected)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, "/model ", m.input.Value())
	assert.False(t, m.completion.Visible)
	assert.Empty(t, m.running)
}

func TestEscClosesCompletionFirst(t *testing.T) {
	m := newTestModel(t, &transporttest.Fake{}, echoModel())
	m.input.SetValue("/mo")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.True(t, m.completion.Visible)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.completion.Visible)
	assert.Equal(t, "/mo", m.input.Value())
}

func TestApplyCompletion(t *testing.T) {
	tests := []struct {
		input, value, want string
	}{
		{"/he", "/help", "/help "},
		{"/open ", "abc123", "/open abc123 "},
		{"/model gp", "gpt 4", `/model "gpt 4" `},
		{"/set tem", "temperature", "/set temperature "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, applyCompletion(tt.input, tt.value), tt.input)
	}
}

func TestHelpToggle(t *testing.T) {
	m := newTestModel(t, &transporttest.Fake{}, echoModel())
	assert.NotContains(t, m.View(), "first message")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyF1})
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "first message")
}

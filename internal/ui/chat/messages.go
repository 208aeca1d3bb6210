// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/timeline"
)

// commandTimeout bounds one slash command, which may call the backend.
const commandTimeout = 30 * time.Second

// =============================================================================
// MESSAGES
// =============================================================================

// timelineChangedMsg reports a change to the timeline it names. It is
// dropped when the session has moved on to another timeline.
type timelineChangedMsg struct {
	timeline *timeline.Timeline
}

// controllerChangedMsg reports a session, model, settings or state change.
type controllerChangedMsg struct{}

// commandDoneMsg carries the outcome of a slash command.
type commandDoneMsg struct {
	input  string
	result commands.Result
	err    error
}

// =============================================================================
// COMMAND CREATORS
// =============================================================================

// waitForTimeline blocks until ch signals. A closed channel ends the loop.
func waitForTimeline(tl *timeline.Timeline, ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return timelineChangedMsg{timeline: tl}
	}
}

func waitForController(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return controllerChangedMsg{}
	}
}

// runCommand executes a slash command off the UI goroutine.
func runCommand(ctx context.Context, env *commands.Env, input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		res, err := env.Registry.Execute(ctx, env, input)
		return commandDoneMsg{input: input, result: res, err: err}
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen chat view of rigchat.
//
// The Model never owns conversation state. It subscribes to the
// conversation controller and to the active session's timeline, and
// re-renders from a fresh snapshot on every signal. Input goes to
// Controller.Send; lines starting with "/" run through the slash command
// registry off the UI goroutine.
//
// # Layout
//
//	header      brand, chat title, backend URL
//	transcript  viewport over the timeline, pinned to the newest message
//	completion  popup while cycling slash command completions (Tab)
//	input       multi-line textarea (Alt+Enter for a new line)
//	footer      notices, optional full help (F1), status bar
//
// Finished assistant replies are rendered as markdown with glamour; replies
// still streaming are shown as plain wrapped text with a typing cursor.
package chat

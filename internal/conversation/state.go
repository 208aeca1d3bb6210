// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"fmt"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/transport"
)

// =============================================================================
// STATE
// =============================================================================

// State is the controller's position in the turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateDispatching
	StateStreaming
	StateAwaitingUnary
	StateFinalizing
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateDispatching:
		return "dispatching"
	case StateStreaming:
		return "streaming"
	case StateAwaitingUnary:
		return "awaiting-unary"
	case StateFinalizing:
		return "finalizing"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether a turn is in progress.
func (s State) Busy() bool {
	return s != StateIdle
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind tags an Event.
type EventKind int

const (
	EventContent EventKind = iota
	EventDone
	EventReply
	EventFailed
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventContent:
		return "content"
	case EventDone:
		return "done"
	case EventReply:
		return "reply"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one transport outcome addressed to a specific turn.
type Event struct {
	Kind      EventKind
	Epoch     uint64
	MessageID model.MessageID

	Text       string // content increment or unary reply
	Success    bool   // done only
	SessionRef string // done and reply
	Err        error  // failed only
}

// =============================================================================
// REDUCER
// =============================================================================

// Transition is the result of reducing one event.
type Transition struct {
	Next    State
	Patch   *model.Patch
	Adopt   string // session ref to adopt, if the session is a draft
	Final   bool   // the turn is over
	Ignored bool   // the event does not apply in this state
}

// Reduce computes the transition for ev given the current state and the
// placeholder message it targets. It has no side effects.
func Reduce(st State, msg model.Message, ev Event) Transition {
	switch st {
	case StateStreaming:
		return reduceStreaming(msg, ev)
	case StateAwaitingUnary:
		return reduceUnary(msg, ev)
	default:
		return Transition{Next: st, Ignored: true}
	}
}

func reduceStreaming(msg model.Message, ev Event) Transition {
	switch ev.Kind {
	case EventContent:
		p := model.AppendText(ev.Text)
		return Transition{Next: StateStreaming, Patch: &p}

	case EventDone:
		if !ev.Success {
			return failed(StreamFailureMessage)
		}
		p := model.SetStatus(model.StatusComplete)
		if msg.Status == model.StatusPending || msg.Content == "" {
			p = model.Replace(model.StatusComplete, transport.FallbackReply)
		}
		return Transition{Next: StateFinalizing, Patch: &p, Adopt: ev.SessionRef, Final: true}

	case EventFailed:
		return failed(StreamFailureMessage)

	case EventCancelled:
		return cancelled(msg)

	default:
		return Transition{Next: StateStreaming, Ignored: true}
	}
}

func reduceUnary(msg model.Message, ev Event) Transition {
	switch ev.Kind {
	case EventReply:
		text := ev.Text
		if strings.TrimSpace(text) == "" {
			text = transport.FallbackReply
		}
		p := model.Replace(model.StatusComplete, text)
		return Transition{Next: StateFinalizing, Patch: &p, Adopt: ev.SessionRef, Final: true}

	case EventFailed:
		return failed(UnaryFailureMessage)

	case EventCancelled:
		return cancelled(msg)

	default:
		return Transition{Next: StateAwaitingUnary, Ignored: true}
	}
}

func failed(text string) Transition {
	p := model.Replace(model.StatusErrored, text)
	return Transition{Next: StateErrored, Patch: &p, Final: true}
}

// cancelled keeps whatever text already arrived.
func cancelled(msg model.Message) Transition {
	text := msg.Content
	if text == "" {
		text = CancelledMessage
	}
	p := model.Replace(model.StatusErrored, text)
	return Transition{Next: StateErrored, Patch: &p, Final: true}
}

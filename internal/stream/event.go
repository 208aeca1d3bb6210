// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the line-oriented streaming chat protocol.
//
// The backend sends frames of the form
//
//	data: {"type":"content","content":"Hel"}
//	data: {"type":"done","success":true,"chat_id":42}
//
// separated by blank lines. Decoder turns raw chunks into typed Events and
// stops at the first done or error frame.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType tags a stream event.
type EventType string

const (
	TypeContent EventType = "content"
	TypeDone    EventType = "done"
	TypeError   EventType = "error"
)

// Prefix starts every data line.
const Prefix = "data: "

// Event is one decoded frame.
type Event struct {
	Type    EventType
	Content string

	// Done only.
	Success    bool
	SessionRef string

	// Error only. Err may hold a Go error when the event was produced locally
	// (transport failure) rather than decoded from the wire.
	Message string
	Err     error
}

// Content returns a content event.
func Content(text string) Event {
	return Event{Type: TypeContent, Content: text}
}

// Done returns a successful terminal event.
func Done(sessionRef string) Event {
	return Event{Type: TypeDone, Success: true, SessionRef: sessionRef}
}

// Failure returns an error event wrapping err.
func Failure(err error) Event {
	return Event{Type: TypeError, Message: err.Error(), Err: err}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// String is used in logs.
func (e Event) String() string {
	switch e.Type {
	case TypeContent:
		return fmt.Sprintf("content(%d bytes)", len(e.Content))
	case TypeDone:
		return fmt.Sprintf("done(success=%t ref=%q)", e.Success, e.SessionRef)
	case TypeError:
		return fmt.Sprintf("error(%s)", e.Message)
	default:
		return string(e.Type)
	}
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// wireEvent is the JSON payload of one frame. chat_id arrives as a number
// from some backends and as a string from others.
type wireEvent struct {
	Type    EventType       `json:"type"`
	Content *string         `json:"content,omitempty"`
	Success *bool           `json:"success,omitempty"`
	ChatURL string          `json:"chat_url,omitempty"`
	ChatID  json.RawMessage `json:"chat_id,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// parsePayload decodes the JSON part of a data line.
func parsePayload(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, err
	}

	switch w.Type {
	case TypeContent:
		if w.Content == nil {
			return Event{}, fmt.Errorf("content frame without content field")
		}
		return Event{Type: TypeContent, Content: *w.Content}, nil
	case TypeDone:
		ev := Event{Type: TypeDone, Success: w.Success == nil || *w.Success}
		ev.SessionRef = w.ChatURL
		if ev.SessionRef == "" {
			ev.SessionRef = rawID(w.ChatID)
		}
		return ev, nil
	case TypeError:
		msg := w.Error
		if msg == "" {
			msg = "stream reported an error"
		}
		return Event{Type: TypeError, Message: msg}, nil
	case "":
		return Event{}, fmt.Errorf("frame without type")
	default:
		return Event{}, fmt.Errorf("unknown frame type %q", w.Type)
	}
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// WriteEvent encodes ev as one frame followed by a blank line.
func WriteEvent(w io.Writer, ev Event) error {
	out := wireEvent{Type: ev.Type}
	switch ev.Type {
	case TypeContent:
		out.Content = &ev.Content
	case TypeDone:
		out.Success = &ev.Success
		if ev.SessionRef != "" {
			if _, err := strconv.ParseInt(ev.SessionRef, 10, 64); err == nil {
				out.ChatID = json.RawMessage(ev.SessionRef)
			} else {
				out.ChatURL = ev.SessionRef
			}
		}
	case TypeError:
		f := false
		out.Success = &f
		out.Error = ev.Message
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", Prefix, data)
	return err
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// STATUS TYPE
// =============================================================================

// Status is the lifecycle state of a message.
type Status int

const (
	StatusPending Status = iota
	StatusStreaming
	StatusComplete
	StatusErrored
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusStreaming:
		return "streaming"
	case StatusComplete:
		return "complete"
	case StatusErrored:
		return "errored"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusErrored
}

// InFlight reports whether the message still belongs to an active turn.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusStreaming
}

// CanAdvance reports whether a message in state s may move to state to.
// Streaming to streaming is allowed so content can keep appending.
func (s Status) CanAdvance(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusStreaming || to == StatusComplete || to == StatusErrored
	case StatusStreaming:
		return to == StatusStreaming || to == StatusComplete || to == StatusErrored
	default:
		return false
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// MessageID identifies a message within a timeline. IDs are ordered by
// insertion and never reused.
type MessageID uint64

// String formats the id the way it shows up in logs.
func (id MessageID) String() string {
	return fmt.Sprintf("msg_%06d", uint64(id))
}

// Message represents a single message in a conversation.
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
}

// NewUserMessage creates a user message. User messages are complete on creation.
func NewUserMessage(content string) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
		Status:    StatusComplete,
	}
}

// NewPlaceholder creates the pending assistant message inserted on dispatch.
func NewPlaceholder() Message {
	return Message{
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		Status:    StatusPending,
	}
}

// NewAssistantNotice creates a complete assistant message with fixed text.
func NewAssistantNotice(content string) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
		Status:    StatusComplete,
	}
}

// Preview returns the content cut to maxRunes runes with "..." appended when
// something was removed.
func (m Message) Preview(maxRunes int) string {
	return Truncate(m.Content, maxRunes)
}

// Truncate cuts s to maxRunes runes and appends "..." if it was longer.
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// =============================================================================
// PATCH
// =============================================================================

// Patch describes a change to an existing message. Nil fields are left alone.
// Append is concatenated after Content is applied.
type Patch struct {
	Status  *Status
	Content *string
	Append  string
}

// SetStatus returns a patch that only changes the status.
func SetStatus(s Status) Patch {
	return Patch{Status: &s}
}

// AppendText returns a patch that moves to streaming and appends text.
func AppendText(text string) Patch {
	s := StatusStreaming
	return Patch{Status: &s, Append: text}
}

// Replace returns a patch that sets final status and content together.
func Replace(s Status, content string) Patch {
	return Patch{Status: &s, Content: &content}
}

// ApplyTo returns m with the patch applied. ok is false when the status
// change would move the message backwards; m is then returned unchanged.
func (p Patch) ApplyTo(m Message) (Message, bool) {
	if p.Status != nil && *p.Status != m.Status && !m.Status.CanAdvance(*p.Status) {
		return m, false
	}
	if p.Status != nil && *p.Status == m.Status && m.Status.Terminal() {
		return m, false
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	m.Content += p.Append
	return m, true
}

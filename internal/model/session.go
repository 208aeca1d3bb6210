// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// TitleMaxRunes is the length at which derived chat titles are cut.
const TitleMaxRunes = 50

// =============================================================================
// CONTEXT SETTINGS
// =============================================================================

// ContextSettings is the per-chat context configuration stored by the backend.
// Pointer fields distinguish "not persisted" from a persisted zero value.
type ContextSettings struct {
	EnableContext    *bool `json:"enable_context,omitempty" toml:"enable_context,omitempty"`
	WindowSize       *int  `json:"window_size,omitempty" toml:"window_size,omitempty"`
	EnableSummary    *bool `json:"enable_summary,omitempty" toml:"enable_summary,omitempty"`
	SmartSelection   *bool `json:"smart_selection,omitempty" toml:"smart_selection,omitempty"`
	KeywordFiltering *bool `json:"keyword_filtering,omitempty" toml:"keyword_filtering,omitempty"`
	MaxSummaryLength *int  `json:"max_summary_length,omitempty" toml:"max_summary_length,omitempty"`
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession is a chat as the engine sees it. ID is empty for a draft chat
// that the backend has not persisted yet.
type ChatSession struct {
	ID        string          `json:"id"`
	URL       string          `json:"url,omitempty"`
	Title     string          `json:"title"`
	ModelID   string          `json:"config_id"`
	Persisted ContextSettings `json:"context_settings"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewDraft returns an unsaved session bound to modelID.
func NewDraft(modelID string) *ChatSession {
	now := time.Now()
	return &ChatSession{
		ModelID:   modelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsDraft reports whether the backend has not assigned an id yet.
func (s *ChatSession) IsDraft() bool {
	return s == nil || s.ID == ""
}

// Clone returns a copy that shares no pointers with s.
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Persisted = s.Persisted.Clone()
	return &c
}

// Clone returns a deep copy of the settings.
func (c ContextSettings) Clone() ContextSettings {
	out := ContextSettings{}
	if c.EnableContext != nil {
		out.EnableContext = Ptr(*c.EnableContext)
	}
	if c.WindowSize != nil {
		out.WindowSize = Ptr(*c.WindowSize)
	}
	if c.EnableSummary != nil {
		out.EnableSummary = Ptr(*c.EnableSummary)
	}
	if c.SmartSelection != nil {
		out.SmartSelection = Ptr(*c.SmartSelection)
	}
	if c.KeywordFiltering != nil {
		out.KeywordFiltering = Ptr(*c.KeywordFiltering)
	}
	if c.MaxSummaryLength != nil {
		out.MaxSummaryLength = Ptr(*c.MaxSummaryLength)
	}
	return out
}

// TitleFrom derives a chat title from the first user message.
func TitleFrom(message string) string {
	return Truncate(message, TitleMaxRunes)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// =============================================================================
// MODEL CAPABILITY
// =============================================================================

// ModelCapability is a read-only snapshot of a registered model configuration.
// The numeric fields are the model's own defaults; nil means unset.
type ModelCapability struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	ModelName       string   `json:"model_name"`
	Active          bool     `json:"is_active"`
	EnableStreaming bool     `json:"enable_streaming"`
	EnableContext   bool     `json:"enable_context"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	FreqPenalty     *float64 `json:"frequency_penalty,omitempty"`
	PresPenalty     *float64 `json:"presence_penalty,omitempty"`
}

// Clone returns a deep copy of the capability; nil stays nil.
func (m *ModelCapability) Clone() *ModelCapability {
	if m == nil {
		return nil
	}
	c := *m
	c.Temperature = clonePtr(m.Temperature)
	c.MaxTokens = clonePtr(m.MaxTokens)
	c.TopP = clonePtr(m.TopP)
	c.FreqPenalty = clonePtr(m.FreqPenalty)
	c.PresPenalty = clonePtr(m.PresPenalty)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	return Ptr(*p)
}

// =============================================================================
// HISTORY ENTRY
// =============================================================================

// HistoryEntry is one prior turn sent to the backend as conversation history.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryFrom converts messages into history entries. Only complete messages
// are included; pending, streaming and errored ones are dropped.
func HistoryFrom(messages []Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if m.Status != StatusComplete || !m.Role.Valid() {
			continue
		}
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}

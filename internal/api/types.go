// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api defines the JSON records exchanged with the chat backend's
// history and model registry endpoints.
//
// The chat endpoints themselves (/api/remote/chat and its streaming
// variant) are described by the transport and stream packages.
package api

import (
	"strconv"
	"time"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// CHAT HISTORY
// =============================================================================

// ChatRecord is a persisted chat without its messages.
type ChatRecord struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	ConfigID  int64     `json:"config_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EnableContext        bool                  `json:"enable_context"`
	ContextWindowSize    int                   `json:"context_window_size"`
	EnableContextSummary bool                  `json:"enable_context_summary"`
	ContextSummary       *string               `json:"context_summary,omitempty"`
	ContextSettings      model.ContextSettings `json:"context_settings"`
}

// Session converts the record into the engine's session type. The top-level
// context columns fill any gap in ContextSettings.
func (r ChatRecord) Session() *model.ChatSession {
	cs := r.ContextSettings.Clone()
	if cs.EnableContext == nil {
		cs.EnableContext = model.Ptr(r.EnableContext)
	}
	if cs.WindowSize == nil && r.ContextWindowSize > 0 {
		cs.WindowSize = model.Ptr(r.ContextWindowSize)
	}
	if cs.EnableSummary == nil {
		cs.EnableSummary = model.Ptr(r.EnableContextSummary)
	}
	return &model.ChatSession{
		ID:        strconv.FormatInt(r.ID, 10),
		URL:       r.URL,
		Title:     r.Title,
		ModelID:   strconv.FormatInt(r.ConfigID, 10),
		Persisted: cs,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// MessageRecord is one stored message.
type MessageRecord struct {
	ID        int64      `json:"id"`
	ChatID    int64      `json:"chat_history_id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
}

// Message converts the record into a complete timeline message.
func (m MessageRecord) Message() model.Message {
	return model.Message{
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Status:    model.StatusComplete,
	}
}

// Messages converts a slice of records, dropping roles the engine does not
// display.
func Messages(records []MessageRecord) []model.Message {
	out := make([]model.Message, 0, len(records))
	for _, r := range records {
		if !r.Role.Valid() {
			continue
		}
		out = append(out, r.Message())
	}
	return out
}

// ChatDetail is a chat with its messages.
type ChatDetail struct {
	ChatRecord
	Messages []MessageRecord `json:"messages"`
	// Name is the display name of the chat's model, if it still exists
	Name string `json:"name,omitempty"`
}

// ChatList is one page of chats, newest first.
type ChatList struct {
	Chats []ChatRecord `json:"chats"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

// ChatCreate is the body of POST /api/history.
type ChatCreate struct {
	Title           string                `json:"title"`
	ConfigID        int64                 `json:"config_id"`
	ContextSettings model.ContextSettings `json:"context_settings"`
}

// ChatUpdate is the body of PUT /api/history/{id}. Nil fields are left alone.
type ChatUpdate struct {
	Title                *string                `json:"title,omitempty"`
	EnableContext        *bool                  `json:"enable_context,omitempty"`
	ContextWindowSize    *int                   `json:"context_window_size,omitempty"`
	EnableContextSummary *bool                  `json:"enable_context_summary,omitempty"`
	ContextSummary       *string                `json:"context_summary,omitempty"`
	ContextSettings      *model.ContextSettings `json:"context_settings,omitempty"`
}

// UpdateFromSettings builds the update that stores cs on a chat, keeping the
// top-level columns in step.
func UpdateFromSettings(cs model.ContextSettings) ChatUpdate {
	c := cs.Clone()
	return ChatUpdate{
		EnableContext:        c.EnableContext,
		ContextWindowSize:    c.WindowSize,
		EnableContextSummary: c.EnableSummary,
		ContextSettings:      &c,
	}
}

// MessageCreate is the body of POST /api/history/{id}/messages.
type MessageCreate struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// ContextSummaryResponse is returned by POST /api/history/{id}/context/summary.
type ContextSummaryResponse struct {
	Success bool   `json:"success"`
	Summary string `json:"summary,omitempty"`
	Message string `json:"message"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// ModelRecord is a registered model configuration.
type ModelRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key,omitempty"`
	ModelName   string `json:"model_name"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`

	EnableStreaming  bool    `json:"enable_streaming"`
	EnableContext    bool    `json:"enable_context"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        *int    `json:"max_tokens,omitempty"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Capability returns the read-only view the conversation engine uses.
func (m ModelRecord) Capability() *model.ModelCapability {
	c := &model.ModelCapability{
		ID:              strconv.FormatInt(m.ID, 10),
		Name:            m.Name,
		ModelName:       m.ModelName,
		Active:          m.IsActive,
		EnableStreaming: m.EnableStreaming,
		EnableContext:   m.EnableContext,
		Temperature:     model.Ptr(m.Temperature),
		TopP:            model.Ptr(m.TopP),
		FreqPenalty:     model.Ptr(m.FrequencyPenalty),
		PresPenalty:     model.Ptr(m.PresencePenalty),
	}
	if m.MaxTokens != nil {
		c.MaxTokens = model.Ptr(*m.MaxTokens)
	}
	return c
}

// Redacted returns a copy without the API key.
func (m ModelRecord) Redacted() ModelRecord {
	m.APIKey = ""
	return m
}

// ModelList is returned by GET /api/models/list.
type ModelList struct {
	Models      []ModelRecord `json:"models"`
	Total       int           `json:"total"`
	ActiveCount int           `json:"active_count"`
}

// ModelSettingsUpdate is the body of PUT /api/models/{id}/settings.
type ModelSettingsUpdate struct {
	IsActive         *bool    `json:"is_active,omitempty"`
	EnableStreaming  *bool    `json:"enable_streaming,omitempty"`
	EnableContext    *bool    `json:"enable_context,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// Apply copies the set fields onto m.
func (u ModelSettingsUpdate) Apply(m *ModelRecord) {
	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
	if u.EnableStreaming != nil {
		m.EnableStreaming = *u.EnableStreaming
	}
	if u.EnableContext != nil {
		m.EnableContext = *u.EnableContext
	}
	if u.Temperature != nil {
		m.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		m.MaxTokens = model.Ptr(*u.MaxTokens)
	}
	if u.TopP != nil {
		m.TopP = *u.TopP
	}
	if u.FrequencyPenalty != nil {
		m.FrequencyPenalty = *u.FrequencyPenalty
	}
	if u.PresencePenalty != nil {
		m.PresencePenalty = *u.PresencePenalty
	}
}

// =============================================================================
// MISC
// =============================================================================

// Health is returned by GET /api/remote/health.
type Health struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorBody is the error envelope used by every endpoint.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"strconv"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/settings"
	"github.com/jeranaias/rigchat/internal/stream"
)

// FallbackReply replaces an empty reply on an otherwise successful response.
const FallbackReply = "Sorry, I couldn't process your request."

// =============================================================================
// TRANSPORT INTERFACE
// =============================================================================

// Transport sends one turn to the inference backend.
type Transport interface {
	// SendUnary performs a single request/response exchange.
	SendUnary(ctx context.Context, req *Request) (*UnaryResult, error)

	// SendStreaming starts a streaming exchange. The returned channel yields
	// events in arrival order and is closed after a terminal event or when
	// ctx is done. Failures arrive as an error event carrying a *TransportError.
	SendStreaming(ctx context.Context, req *Request) (<-chan stream.Event, error)
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Request is everything the backend needs for one turn.
type Request struct {
	ConfigID   string
	Message    string
	History    []model.HistoryEntry
	SessionRef string
	Settings   settings.EffectiveSettings
}

// UnaryResult is the outcome of a successful unary call.
type UnaryResult struct {
	Reply      string
	SessionRef string
}

// wireContextSettings mirrors the context_settings object on the wire.
type wireContextSettings struct {
	WindowSize       int  `json:"window_size"`
	EnableSummary    bool `json:"enable_summary"`
	SmartSelection   bool `json:"smart_selection"`
	KeywordFiltering bool `json:"keyword_filtering"`
	MaxSummaryLength int  `json:"max_summary_length"`
}

// ChatRequest is the JSON body of both chat endpoints.
type ChatRequest struct {
	ConfigID            any                  `json:"config_id"`
	Message             string               `json:"message"`
	ConversationHistory []model.HistoryEntry `json:"conversation_history"`
	ChatURL             string               `json:"chat_url,omitempty"`
	MaxTokens           int                  `json:"max_tokens"`
	Temperature         float64              `json:"temperature"`
	TopP                float64              `json:"top_p"`
	FrequencyPenalty    float64              `json:"frequency_penalty"`
	PresencePenalty     float64              `json:"presence_penalty"`
	Stream              bool                 `json:"stream"`
	Timeout             int                  `json:"timeout"`
	ContextSettings     wireContextSettings  `json:"context_settings"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResponse is the JSON body of the unary endpoint.
type ChatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
	ChatURL  string `json:"chat_url,omitempty"`
	ChatID   any    `json:"chat_id,omitempty"`
}

// sessionRef picks the session identifier out of a response.
func (r *ChatResponse) sessionRef() string {
	if r.ChatURL != "" {
		return r.ChatURL
	}
	switch v := r.ChatID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

// errorBody is the shape of non-2xx JSON errors.
type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// toWire builds the JSON body for req.
func toWire(req *Request, streaming bool) ChatRequest {
	s := req.Settings
	history := req.History
	if history == nil {
		history = []model.HistoryEntry{}
	}
	return ChatRequest{
		ConfigID:            idValue(req.ConfigID),
		Message:             req.Message,
		ConversationHistory: history,
		ChatURL:             req.SessionRef,
		MaxTokens:           s.MaxTokens,
		Temperature:         s.Temperature,
		TopP:                s.TopP,
		FrequencyPenalty:    s.FrequencyPenalty,
		PresencePenalty:     s.PresencePenalty,
		Stream:              streaming,
		Timeout:             s.TimeoutSeconds,
		ContextSettings: wireContextSettings{
			WindowSize:       s.WindowSize,
			EnableSummary:    s.EnableSummary,
			SmartSelection:   s.SmartSelection,
			KeywordFiltering: s.KeywordFiltering,
			MaxSummaryLength: s.MaxSummaryLength,
		},
	}
}

// idValue sends numeric ids as JSON numbers.
func idValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

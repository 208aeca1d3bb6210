// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
)

// OpenAIResponder relays prompts to an OpenAI-compatible chat completions
// endpoint. A model's own base_url and api_key win over the configured
// upstream.
type OpenAIResponder struct {
	upstream   config.UpstreamConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

var _ Responder = (*OpenAIResponder)(nil)

// NewOpenAIResponder creates a responder with upstream as the fallback
// endpoint. httpClient may be nil.
func NewOpenAIResponder(upstream config.UpstreamConfig, httpClient *http.Client, logger *slog.Logger) *OpenAIResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIResponder{
		upstream:   upstream,
		httpClient: httpClient,
		logger:     logger,
		clients:    make(map[string]*openai.Client),
	}
}

// endpoint returns the base URL (always ending in /v1) and key for target.
func (r *OpenAIResponder) endpoint(target api.ModelRecord) (string, string) {
	base := target.BaseURL
	if base == "" {
		base = r.upstream.BaseURL
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	key := target.APIKey
	if key == "" {
		key = r.upstream.APIKey
	}
	return base, key
}

func (r *OpenAIResponder) client(target api.ModelRecord) *openai.Client {
	base, key := r.endpoint(target)
	cacheKey := base + "\x00" + key

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[cacheKey]; ok {
		return c
	}
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = base
	if r.httpClient != nil {
		cfg.HTTPClient = r.httpClient
	}
	c := openai.NewClientWithConfig(cfg)
	r.clients[cacheKey] = c
	return c
}

func (r *OpenAIResponder) request(c Completion, streaming bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(c.Messages)+1)
	if c.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.System})
	}
	for _, m := range c.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == model.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	name := c.Model
	if name == "" {
		name = r.upstream.Model
	}
	return openai.ChatCompletionRequest{
		Model:            name,
		Messages:         messages,
		MaxTokens:        c.MaxTokens,
		Temperature:      float32(c.Temperature),
		TopP:             float32(c.TopP),
		FrequencyPenalty: float32(c.FrequencyPenalty),
		PresencePenalty:  float32(c.PresencePenalty),
		Stream:           streaming,
	}
}

// Complete implements Responder.
func (r *OpenAIResponder) Complete(ctx context.Context, target api.ModelRecord, c Completion) (string, error) {
	resp, err := r.client(target).CreateChatCompletion(ctx, r.request(c, false))
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("upstream returned no choices")
	}
	r.logger.Debug("UPSTREAM_USAGE", "model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Responder.
func (r *OpenAIResponder) Stream(ctx context.Context, target api.ModelRecord, c Completion, emit func(string) error) error {
	s, err := r.client(target).CreateChatCompletionStream(ctx, r.request(c, true))
	if err != nil {
		return upstreamError(err)
	}
	defer s.Close()

	for {
		resp, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return upstreamError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if err := emit(resp.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
}

// upstreamError converts go-openai's HTTP errors into UpstreamError.
func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return fmt.Errorf("upstream request: %w", err)
}

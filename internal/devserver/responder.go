// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// RESPONDER
// =============================================================================

// Completion is one upstream prompt.
type Completion struct {
	Model string
	// System, when set, is sent ahead of Messages.
	System           string
	Messages         []model.HistoryEntry
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// LastUser returns the content of the final user message.
func (c Completion) LastUser() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == model.RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// Responder produces assistant replies for the chat endpoints.
type Responder interface {
	// Complete returns the whole reply.
	Complete(ctx context.Context, target api.ModelRecord, c Completion) (string, error)

	// Stream calls emit for each chunk of the reply in order. An error from
	// emit stops the stream and is returned.
	Stream(ctx context.Context, target api.ModelRecord, c Completion, emit func(chunk string) error) error
}

// UpstreamError is a non-2xx answer from an upstream model endpoint.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Message)
}

// =============================================================================
// ECHO
// =============================================================================

// EchoResponder answers without any upstream, for offline development and
// tests. The reply quotes the last user message.
type EchoResponder struct {
	// Delay is slept between streamed chunks.
	Delay time.Duration
}

var _ Responder = (*EchoResponder)(nil)

// Reply returns the text EchoResponder answers c with.
func (r *EchoResponder) Reply(c Completion) string {
	return fmt.Sprintf("[%s] You said: %s", c.Model, c.LastUser())
}

// Complete implements Responder.
func (r *EchoResponder) Complete(ctx context.Context, _ api.ModelRecord, c Completion) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Reply(c), nil
}

// Stream implements Responder. The reply is sent word by word.
func (r *EchoResponder) Stream(ctx context.Context, _ api.ModelRecord, c Completion, emit func(string) error) error {
	for _, word := range strings.SplitAfter(r.Reply(c), " ") {
		if r.Delay > 0 {
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(word); err != nil {
			return err
		}
	}
	return nil
}

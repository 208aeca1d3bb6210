// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/contextwindow"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/transport"
)

// Request defaults applied when a chat request leaves a field at zero.
const (
	defaultMaxTokens = 10000
	defaultTimeout   = 30 * time.Second
)

// turn is one validated chat request, ready for the responder.
type turn struct {
	chat       api.ChatRecord
	target     api.ModelRecord
	completion Completion
	timeout    time.Duration
}

// =============================================================================
// UNARY
// =============================================================================

func (s *Server) chat(c *gin.Context) {
	t, ok := s.prepareTurn(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), t.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.responder.Complete(ctx, t.target, t.completion)
	if err != nil {
		s.logger.Warn("UPSTREAM_FAILED", "chat_id", t.chat.ID, "error", err)
		c.JSON(http.StatusOK, transport.ChatResponse{
			Success: false,
			Error:   describeError(err),
		})
		return
	}
	s.logger.Debug("UPSTREAM_REPLY", "chat_id", t.chat.ID, "duration", time.Since(start), "bytes", len(reply))

	user := t.completion.Messages[len(t.completion.Messages)-1]
	if err := s.saveTurn(c.Request.Context(), t.chat.ID, user.Content, reply); err != nil {
		s.storeError(c, "Chat", err)
		return
	}

	c.JSON(http.StatusOK, transport.ChatResponse{
		Success:  true,
		Response: reply,
		ChatURL:  t.chat.URL,
	})
}

func (s *Server) saveTurn(ctx context.Context, chatID int64, userText, reply string) error {
	if _, err := s.store.AddMessage(ctx, chatID, api.MessageCreate{Role: model.RoleUser, Content: userText}); err != nil {
		return err
	}
	_, err := s.store.AddMessage(ctx, chatID, api.MessageCreate{Role: model.RoleAssistant, Content: reply})
	return err
}

// =============================================================================
// STREAMING
// =============================================================================

func (s *Server) chatStream(c *gin.Context) {
	t, ok := s.prepareTurn(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	user := t.completion.Messages[len(t.completion.Messages)-1]
	if _, err := s.store.AddMessage(ctx, t.chat.ID, api.MessageCreate{Role: model.RoleUser, Content: user.Content}); err != nil {
		s.storeError(c, "Chat", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	w := c.Writer
	var full strings.Builder
	err := s.responder.Stream(ctx, t.target, t.completion, func(chunk string) error {
		if chunk == "" {
			return nil
		}
		full.WriteString(chunk)
		if err := stream.WriteEvent(w, stream.Content(chunk)); err != nil {
			return err
		}
		w.Flush()
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("STREAM_CLIENT_GONE", "chat_id", t.chat.ID)
			return
		}
		s.logger.Warn("UPSTREAM_FAILED", "chat_id", t.chat.ID, "error", err)
		_ = stream.WriteEvent(w, stream.Event{Type: stream.TypeError, Message: describeError(err)})
		w.Flush()
		return
	}

	if full.Len() > 0 {
		// The client may already be gone; the reply is still worth keeping.
		saveCtx := context.WithoutCancel(ctx)
		if _, err := s.store.AddMessage(saveCtx, t.chat.ID, api.MessageCreate{Role: model.RoleAssistant, Content: full.String()}); err != nil {
			s.logger.Error("SAVE_REPLY_FAILED", "chat_id", t.chat.ID, "error", err)
		}
	}
	_ = stream.WriteEvent(w, stream.Done(strconv.FormatInt(t.chat.ID, 10)))
	w.Flush()
}

// =============================================================================
// TURN PREPARATION
// =============================================================================

// prepareTurn validates the request, resolves (or creates) the chat and
// builds the upstream prompt. On failure it has already written the response.
func (s *Server) prepareTurn(c *gin.Context) (*turn, bool) {
	var req transport.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	if strings.TrimSpace(req.Message) == "" {
		abort(c, http.StatusUnprocessableEntity, "message must not be empty")
		return nil, false
	}
	configID, ok := parseConfigID(req.ConfigID)
	if !ok {
		abort(c, http.StatusUnprocessableEntity, "config_id must be an integer")
		return nil, false
	}

	ctx := c.Request.Context()
	target, err := s.store.GetModel(ctx, configID)
	if err != nil {
		s.storeError(c, "Model config", err)
		return nil, false
	}
	if !target.IsActive {
		abort(c, http.StatusBadRequest, "Model config is not active")
		return nil, false
	}

	chat, err := s.resolveChat(ctx, &req, configID)
	if err != nil {
		s.storeError(c, "Chat", err)
		return nil, false
	}

	return &turn{
		chat:       chat,
		target:     target,
		completion: buildCompletion(&req, target, chat),
		timeout:    requestTimeout(req.Timeout),
	}, true
}

// resolveChat finds the chat named by the request, or creates one titled
// after the message. Numeric refs are accepted as ids as well as URL slugs.
func (s *Server) resolveChat(ctx context.Context, req *transport.ChatRequest, configID int64) (api.ChatRecord, error) {
	if ref := req.ChatURL; ref != "" {
		chat, err := s.store.GetChatByURL(ctx, ref)
		if err == nil {
			return chat, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return api.ChatRecord{}, err
		}
		if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
			chat, err := s.store.GetChat(ctx, id)
			if err == nil {
				return chat, nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return api.ChatRecord{}, err
			}
		}
	}

	chat, err := s.store.CreateChat(ctx, api.ChatCreate{
		Title:           model.TitleFrom(strings.TrimSpace(req.Message)),
		ConfigID:        configID,
		ContextSettings: contextFromRequest(req),
	})
	if err == nil {
		s.logger.Info("CHAT_CREATED", "chat_id", chat.ID, "url", chat.URL)
	}
	return chat, err
}

// contextFromRequest converts the request's context settings for storage.
// Context counts as on when the request carries history or uses summaries or
// smart selection.
func contextFromRequest(req *transport.ChatRequest) model.ContextSettings {
	w := req.ContextSettings
	cs := model.ContextSettings{
		EnableContext:    model.Ptr(w.EnableSummary || w.SmartSelection || len(req.ConversationHistory) > 0),
		EnableSummary:    model.Ptr(w.EnableSummary),
		SmartSelection:   model.Ptr(w.SmartSelection),
		KeywordFiltering: model.Ptr(w.KeywordFiltering),
	}
	if w.WindowSize > 0 {
		cs.WindowSize = model.Ptr(w.WindowSize)
	}
	if w.MaxSummaryLength > 0 {
		cs.MaxSummaryLength = model.Ptr(w.MaxSummaryLength)
	}
	return cs
}

// buildCompletion turns the request into an upstream prompt. History is cut
// to the context window and the chat's stored summary, if any, leads the
// prompt when summaries are on. Zero sampling values fall back to the model.
func buildCompletion(req *transport.ChatRequest, target api.ModelRecord, chat api.ChatRecord) Completion {
	history := make([]model.Message, 0, len(req.ConversationHistory))
	for _, h := range req.ConversationHistory {
		if !h.Role.Valid() {
			continue
		}
		history = append(history, model.Message{Role: h.Role, Content: h.Content, Status: model.StatusComplete})
	}
	cw := req.ContextSettings
	history = contextwindow.Select(history, contextwindow.Options{
		WindowSize:       cw.WindowSize,
		SmartSelection:   cw.SmartSelection,
		KeywordFiltering: cw.KeywordFiltering,
	})

	messages := model.HistoryFrom(history)
	messages = append(messages, model.HistoryEntry{Role: model.RoleUser, Content: req.Message})

	comp := Completion{
		Model:            target.ModelName,
		Messages:         messages,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if cw.EnableSummary && chat.ContextSummary != nil && *chat.ContextSummary != "" {
		comp.System = "Summary of the earlier conversation: " + *chat.ContextSummary
	}
	if comp.MaxTokens <= 0 {
		comp.MaxTokens = defaultMaxTokens
		if target.MaxTokens != nil {
			comp.MaxTokens = *target.MaxTokens
		}
	}
	if comp.Temperature == 0 {
		comp.Temperature = target.Temperature
	}
	if comp.TopP == 0 {
		comp.TopP = target.TopP
	}
	if comp.FrequencyPenalty == 0 {
		comp.FrequencyPenalty = target.FrequencyPenalty
	}
	if comp.PresencePenalty == 0 {
		comp.PresencePenalty = target.PresencePenalty
	}
	return comp
}

func parseConfigID(v any) (int64, bool) {
	switch id := v.(type) {
	case float64:
		if id != float64(int64(id)) {
			return 0, false
		}
		return int64(id), true
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func requestTimeout(seconds int) time.Duration {
	if seconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(seconds) * time.Second
}

// describeError formats a responder failure for the error field of a reply.
func describeError(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return fmt.Sprintf("HTTP %d: %s", ue.StatusCode, ue.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request failed: upstream timed out"
	}
	return "Request failed: " + err.Error()
}

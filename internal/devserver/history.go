// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/contextwindow"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/settings"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// CHAT CRUD
// =============================================================================

// POST /api/history/
func (s *Server) createChat(c *gin.Context) {
	var req api.ChatCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	chat, err := s.store.CreateChat(c.Request.Context(), req)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// GET /api/history/?skip=0&limit=100&config_id=1
func (s *Server) listChats(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil || skip < 0 {
		abort(c, http.StatusUnprocessableEntity, "skip must be a non-negative integer")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > storage.MaxListLimit {
		abort(c, http.StatusUnprocessableEntity, "limit must be between 1 and 1000")
		return
	}
	var configID int64
	if v := c.Query("config_id"); v != "" {
		if configID, err = strconv.ParseInt(v, 10, 64); err != nil {
			abort(c, http.StatusUnprocessableEntity, "config_id must be an integer")
			return
		}
	}

	list, err := s.store.ListChats(c.Request.Context(), skip, limit, configID)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GET /api/history/:id?use_context=true
func (s *Server) getChat(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	chat, err := s.store.GetChat(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	s.writeDetail(c, chat)
}

// GET /api/history/url/:url
func (s *Server) getChatByURL(c *gin.Context) {
	chat, err := s.store.GetChatByURL(c.Request.Context(), c.Param("url"))
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	s.writeDetail(c, chat)
}

// writeDetail answers with the chat and its messages. Unless use_context=false,
// a context-enabled chat only returns the messages its window selects.
func (s *Server) writeDetail(c *gin.Context, chat api.ChatRecord) {
	ctx := c.Request.Context()
	records, err := s.store.Messages(ctx, chat.ID)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}

	if c.DefaultQuery("use_context", "true") != "false" && chat.EnableContext {
		records = selectRecords(records, chat)
	}

	detail := api.ChatDetail{ChatRecord: chat, Messages: records}
	if m, err := s.store.GetModel(ctx, chat.ConfigID); err == nil {
		detail.Name = m.Name
	}
	c.JSON(http.StatusOK, detail)
}

// selectRecords applies the chat's context window to its stored messages.
func selectRecords(records []api.MessageRecord, chat api.ChatRecord) []api.MessageRecord {
	opts := contextOptions(chat)
	if len(records) <= opts.WindowSize {
		return records
	}

	// Select works on model.Message; carry the record index in ID.
	msgs := make([]model.Message, len(records))
	for i, r := range records {
		msgs[i] = r.Message()
		msgs[i].ID = model.MessageID(i)
	}
	picked := contextwindow.Select(msgs, opts)
	out := make([]api.MessageRecord, 0, len(picked))
	for _, m := range picked {
		out = append(out, records[int(m.ID)])
	}
	return out
}

func contextOptions(chat api.ChatRecord) contextwindow.Options {
	eff := settings.Resolve(&model.ModelCapability{EnableContext: true}, chat.Session().Persisted, settings.Overrides{})
	return contextwindow.Options{
		WindowSize:       eff.WindowSize,
		SmartSelection:   eff.SmartSelection,
		KeywordFiltering: eff.KeywordFiltering,
		MaxSummaryLength: eff.MaxSummaryLength,
	}
}

// PUT /api/history/:id
func (s *Server) updateChat(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req api.ChatUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	chat, err := s.store.UpdateChat(c.Request.Context(), id, req)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// DELETE /api/history/:id
func (s *Server) deleteChat(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteChat(c.Request.Context(), id); err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	s.logger.Info("CHAT_DELETED", "chat_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
}

// =============================================================================
// MESSAGES
// =============================================================================

// POST /api/history/:id/messages
func (s *Server) addMessage(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req api.MessageCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	msg, err := s.store.AddMessage(c.Request.Context(), id, req)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// GET /api/history/:id/messages
func (s *Server) listMessages(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	records, err := s.store.Messages(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// =============================================================================
// CONTEXT SUMMARY
// =============================================================================

// POST /api/history/:id/context/summary
func (s *Server) contextSummary(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	resp, err := s.summarize(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "Chat", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// summarize builds a summary of the chat's messages and stores it on the chat.
func (s *Server) summarize(ctx context.Context, id int64) (api.ContextSummaryResponse, error) {
	chat, err := s.store.GetChat(ctx, id)
	if err != nil {
		return api.ContextSummaryResponse{}, err
	}
	records, err := s.store.Messages(ctx, id)
	if err != nil {
		return api.ContextSummaryResponse{}, err
	}
	if len(records) == 0 {
		return api.ContextSummaryResponse{Success: false, Message: "No messages to summarize"}, nil
	}

	summary := contextwindow.Summarize(api.Messages(records), contextOptions(chat).MaxSummaryLength)
	if summary == "" {
		return api.ContextSummaryResponse{}, errors.New("empty summary")
	}
	if _, err := s.store.UpdateChat(ctx, id, api.ChatUpdate{ContextSummary: &summary}); err != nil {
		return api.ContextSummaryResponse{}, err
	}
	return api.ContextSummaryResponse{Success: true, Summary: summary, Message: "Context summary generated"}, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// API keys never leave the server.

// GET /api/models/list?active_only=true
func (s *Server) listModels(c *gin.Context) {
	list, err := s.store.ListModels(c.Request.Context(), c.Query("active_only") == "true")
	if err != nil {
		s.storeError(c, "Model config", err)
		return
	}
	for i := range list.Models {
		list.Models[i] = list.Models[i].Redacted()
	}
	c.JSON(http.StatusOK, list)
}

// POST /api/models/
func (s *Server) createModel(c *gin.Context) {
	var req api.ModelRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	m, err := s.store.CreateModel(c.Request.Context(), req)
	if err != nil {
		s.storeError(c, "Model config", err)
		return
	}
	s.logger.Info("MODEL_CREATED", "model_id", m.ID, "name", m.Name)
	c.JSON(http.StatusOK, m.Redacted())
}

// GET /api/models/:id
func (s *Server) getModel(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	m, err := s.store.GetModel(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "Model config", err)
		return
	}
	c.JSON(http.StatusOK, m.Redacted())
}

// PUT /api/models/:id/settings
func (s *Server) updateModelSettings(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req api.ModelSettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	m, err := s.store.UpdateModelSettings(c.Request.Context(), id, req)
	if err != nil {
		s.storeError(c, "Model config", err)
		return
	}
	c.JSON(http.StatusOK, m.Redacted())
}

// DELETE /api/models/:id
func (s *Server) deleteModel(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteModel(c.Request.Context(), id); err != nil {
		s.storeError(c, "Model config", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Model config deleted successfully"})
}

// =============================================================================
// SEEDING
// =============================================================================

// EnsureDefaultModel registers one active model when the store has none, so a
// fresh server can answer immediately. With an upstream API key the model
// points at the upstream; otherwise it is served by the echo responder.
func EnsureDefaultModel(ctx context.Context, store *storage.Store, upstream config.UpstreamConfig) (*api.ModelRecord, error) {
	list, err := store.ListModels(ctx, false)
	if err != nil {
		return nil, err
	}
	if list.Total > 0 {
		return nil, nil
	}

	m := api.ModelRecord{
		Name:            "echo",
		ModelName:       "echo",
		Description:     "Local echo model",
		IsActive:        true,
		EnableStreaming: true,
		EnableContext:   true,
		Temperature:     0.7,
		TopP:            1.0,
		MaxTokens:       model.Ptr(2500),
	}
	if upstream.APIKey != "" {
		m.Name = upstream.Model
		m.ModelName = upstream.Model
		m.Description = "Upstream " + upstream.BaseURL
	}
	created, err := store.CreateModel(ctx, m)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devserver is a self-contained chat backend for local development
// and tests.
//
// It serves the same HTTP surface the client expects from a production
// backend: the unary and streaming chat endpoints, chat history and the
// model registry. Chats and models live in a SQLite store; replies come from
// a Responder, either a local echo or an OpenAI-compatible upstream.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// SERVER
// =============================================================================

// Options configures a Server.
type Options struct {
	// Store holds chats and models. Required.
	Store *storage.Store

	// Responder produces assistant replies (default: EchoResponder)
	Responder Responder

	// Token, when set, must be presented as a bearer token on every request.
	Token string

	// Logger for request diagnostics (default: slog.Default())
	Logger *slog.Logger
}

// Server is the development backend.
type Server struct {
	engine    *gin.Engine
	store     *storage.Store
	responder Responder
	token     string
	logger    *slog.Logger
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Responder == nil {
		opts.Responder = &EchoResponder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		engine:    gin.New(),
		store:     opts.Store,
		responder: opts.Responder,
		token:     opts.Token,
		logger:    opts.Logger,
	}
	s.engine.Use(gin.Recovery(), s.logRequests)
	s.routes()
	return s
}

// Handler returns the HTTP handler, for httptest or a custom http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/api/remote/health", s.health)

	authed := s.engine.Group("/api", s.requireToken)

	remote := authed.Group("/remote")
	{
		remote.POST("/chat", s.chat)
		remote.POST("/chat/stream", s.chatStream)
	}

	history := authed.Group("/history")
	{
		history.POST("/", s.createChat)
		history.GET("/", s.listChats)
		history.GET("/url/:url", s.getChatByURL)
		history.GET("/:id", s.getChat)
		history.PUT("/:id", s.updateChat)
		history.DELETE("/:id", s.deleteChat)
		history.POST("/:id/messages", s.addMessage)
		history.GET("/:id/messages", s.listMessages)
		history.POST("/:id/context/summary", s.contextSummary)
	}

	models := authed.Group("/models")
	{
		models.GET("/list", s.listModels)
		models.POST("/", s.createModel)
		models.GET("/:id", s.getModel)
		models.PUT("/:id/settings", s.updateModelSettings)
		models.DELETE("/:id", s.deleteModel)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("DEVSERVER_LISTENING", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("DEVSERVER_SHUTDOWN", "addr", addr)
	return srv.Shutdown(shutdownCtx)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("HTTP_REQUEST",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start))
}

func (s *Server) requireToken(c *gin.Context) {
	if s.token == "" {
		c.Next()
		return
	}
	got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || got != s.token {
		abort(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	c.Next()
}

// =============================================================================
// HELPERS
// =============================================================================

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, api.ErrorBody{Detail: detail})
}

// storeError maps a storage error onto an HTTP response.
func (s *Server) storeError(c *gin.Context, what string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		abort(c, http.StatusNotFound, what+" not found")
	case errors.Is(err, storage.ErrInvalidInput):
		abort(c, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("STORE_ERROR", "what", what, "error", err)
		abort(c, http.StatusInternalServerError, err.Error())
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abort(c, http.StatusUnprocessableEntity, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, api.Health{
		Status:    "healthy",
		Service:   "remote",
		Timestamp: time.Now().UTC(),
	})
}

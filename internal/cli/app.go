// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jeranaias/rigchat/internal/backend"
	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/transport"
)

// ErrNoActiveModel is returned by Start when the backend has no usable model.
var ErrNoActiveModel = errors.New("no active model configured on the backend")

// App is a fully wired chat client shared by the REPL and the TUI.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Transport  *transport.Client
	Backend    *backend.Client
	Controller *conversation.Controller
	Env        *commands.Env
}

// NewApp wires the transport, backend client, controller and command
// environment from cfg. Global flags in args take precedence over cfg.
func NewApp(cfg *config.Config, args Args, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.Backend.BaseURL
	if args.BaseURL != "" {
		baseURL = args.BaseURL
	}

	tc := transport.NewClientWithConfig(&transport.ClientConfig{
		BaseURL:     baseURL,
		Token:       cfg.Backend.Token,
		RateLimit:   cfg.Backend.RateLimit,
		StreamGrace: cfg.StreamGrace(),
		Logger:      logger,
	})
	bc := backend.New(backend.Config{
		BaseURL:   baseURL,
		Token:     cfg.Backend.Token,
		Timeout:   cfg.RequestTimeoutDuration(),
		RateLimit: cfg.Backend.RateLimit,
		Logger:    logger,
	})
	ctrl := conversation.New(conversation.Config{
		Transport: tc,
		Directory: bc,
		Overrides: cfg.ChatOverrides(),
		Logger:    logger,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Transport:  tc,
		Backend:    bc,
		Controller: ctrl,
		Env:        commands.NewEnv(ctrl, bc),
	}
}

// Start selects the startup model and, if openRef is set, opens that chat.
// preferred falls back to chat.default_model.
func (a *App) Start(ctx context.Context, preferred, openRef string) error {
	if preferred == "" {
		preferred = a.Config.Chat.DefaultModel
	}

	models, err := a.Env.LoadModels(ctx)
	if err != nil {
		return fmt.Errorf("load models from %s: %w", a.Backend.BaseURL(), err)
	}
	capability := backend.PickModel(models, preferred)
	if capability == nil {
		return ErrNoActiveModel
	}
	if preferred != "" && capability.ID != preferred && capability.Name != preferred {
		a.Logger.Warn("MODEL_FALLBACK", "requested", preferred, "using", capability.Name)
	}
	a.Controller.SelectModel(capability)

	if openRef != "" {
		if _, err := a.Env.Registry.Execute(ctx, a.Env, "/open "+quoteArg(openRef)); err != nil {
			return fmt.Errorf("open chat %s: %w", openRef, err)
		}
	}
	return nil
}

// WatchConfig reloads the standing setting overrides whenever the config
// file at path changes. Close the returned watcher on exit.
func (a *App) WatchConfig(path string) (*config.Watcher, error) {
	w, err := config.NewWatcher(path, config.DefaultDebounce, func(cfg *config.Config) {
		a.Controller.SetBaseOverrides(cfg.ChatOverrides())
		a.Logger.Info("CONFIG_RELOADED", "path", path)
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Shutdown cancels any reply in progress and waits for it to settle.
func (a *App) Shutdown(ctx context.Context) {
	a.Controller.Cancel()
	if err := a.Controller.Wait(ctx); err != nil {
		a.Logger.Warn("SHUTDOWN_WAIT", "error", err)
	}
}

// quoteArg quotes s for the slash command parser.
func quoteArg(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

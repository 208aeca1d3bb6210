// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/devserver"
	"github.com/jeranaias/rigchat/internal/storage"
)

// HandleServe runs the development backend until ctx is cancelled.
//
// Flags:
//
//	--listen ADDR   bind address (default devserver.listen)
//	--db PATH       SQLite file (default storage.path)
func HandleServe(ctx context.Context, cfg *config.Config, args Args, logger *slog.Logger, out io.Writer) error {
	p := NewArgParser(args.Raw)
	if extra := p.Positional(0); extra != "" {
		return &UsageError{Command: "serve", Reason: fmt.Sprintf("unexpected argument %q", extra)}
	}

	listen := p.FlagOrDefault("listen", cfg.DevServer.Listen)
	dbPath := p.Flag("db")
	if dbPath == "" {
		var err error
		if dbPath, err = cfg.DatabasePath(); err != nil {
			return err
		}
		if cfg.Storage.Path == "" {
			if err := config.EnsureConfigDir(); err != nil {
				return err
			}
		}
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	seeded, err := devserver.EnsureDefaultModel(ctx, store, cfg.DevServer.Upstream)
	if err != nil {
		return fmt.Errorf("seed default model: %w", err)
	}
	if seeded != nil {
		logger.Info("MODEL_SEEDED", "id", seeded.ID, "name", seeded.Name)
	}

	var responder devserver.Responder
	if cfg.DevServer.Upstream.APIKey != "" {
		responder = devserver.NewOpenAIResponder(cfg.DevServer.Upstream, nil, logger)
	}
	if !args.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := devserver.New(devserver.Options{
		Store:     store,
		Responder: responder,
		Token:     cfg.Backend.Token,
		Logger:    logger,
	})

	if !args.Quiet {
		mode := "echo"
		if responder != nil {
			mode = "upstream " + cfg.DevServer.Upstream.BaseURL
		}
		fmt.Fprintln(out, TitleStyle.Render("rigchat development backend"))
		fmt.Fprintf(out, "%s%s\n", RenderLabel("Listening"), "http://"+listen)
		fmt.Fprintf(out, "%s%s\n", RenderLabel("Database"), dbPath)
		fmt.Fprintf(out, "%s%s\n", RenderLabel("Replies"), mode)
		fmt.Fprintln(out, DimStyle.Render("Press Ctrl+C to stop."))
	}
	return srv.Run(ctx, listen)
}

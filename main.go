// rigchat - a terminal client for chatting with language models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigchat/internal/cli"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ui/chat"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const shutdownTimeout = 3 * time.Second

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cmd, args)
	stop()

	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
	}
	os.Exit(cli.GetExitCode(err))
}

// run routes cmd to its handler.
func run(ctx context.Context, cmd cli.Command, args cli.Args) error {
	switch cmd {
	case cli.CmdHelp:
		if len(args.Raw) > 0 {
			cli.PrintUsage(os.Stderr)
			return &cli.UsageError{Command: args.Raw[0], Reason: "unknown command"}
		}
		cli.PrintUsage(os.Stdout)
		return nil

	case cli.CmdVersion:
		if args.JSON {
			return cli.NewJSONResponse("version", cli.VersionData{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
			}).Write(os.Stdout)
		}
		cli.PrintVersion(os.Stdout)
		return nil
	}

	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}
	config.SetGlobal(cfg)

	// Log lines would tear the alternate screen apart.
	var stderr io.Writer = os.Stderr
	if cmd == cli.CmdTUI {
		stderr = io.Discard
	}
	logger, closer, err := config.NewLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	switch cmd {
	case cli.CmdConfig:
		return cli.HandleConfig(cfg, path, args, os.Stdout)

	case cli.CmdServe:
		return cli.HandleServe(ctx, cfg, args, logger, os.Stdout)

	case cli.CmdStatus:
		return cli.HandleStatus(ctx, cli.NewApp(cfg, args, logger), args, os.Stdout)

	case cli.CmdChat:
		app := cli.NewApp(cfg, args, logger)
		defer shutdown(app)
		return cli.HandleChat(ctx, app, args, os.Stdout)

	default:
		return runTUI(ctx, cfg, path, args, logger)
	}
}

// runTUI starts the full-screen chat.
func runTUI(ctx context.Context, cfg *config.Config, path string, args cli.Args, logger *slog.Logger) error {
	if err := cli.RequiresTTY("tui"); err != nil {
		return err
	}

	app := cli.NewApp(cfg, args, logger)
	defer shutdown(app)

	notice := ""
	if err := app.Start(ctx, args.Model, args.Open); err != nil {
		logger.Warn("STARTUP_DEGRADED", "error", err)
		notice = err.Error()
	}

	if w, err := app.WatchConfig(path); err != nil {
		logger.Warn("CONFIG_WATCH_FAILED", "path", path, "error", err)
	} else {
		defer w.Close()
	}

	m := chat.New(chat.Options{
		Context:    ctx,
		Env:        app.Env,
		BackendURL: app.Backend.BaseURL(),
		Notice:     notice,
		Theme:      styles.NewTheme(),
	})

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.Chat.Mouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	final, err := tea.NewProgram(m, opts...).Run()
	if fm, ok := final.(chat.Model); ok {
		fm.Close()
	} else {
		m.Close()
	}
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func shutdown(app *cli.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Shutdown(ctx)
}

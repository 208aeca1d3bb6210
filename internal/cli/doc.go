// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the non-TUI commands for
// rigchat.
//
// # Key Types
//
//   - Command: Enumeration of the top-level commands
//   - Args: Parsed global flags and command-specific arguments
//   - App: The wired chat client (transport, backend, controller, slash
//     commands) shared by the line REPL and the TUI
//   - JSONResponse: Envelope for --json output
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdChat:
//	    err = cli.HandleChat(ctx, app, args, os.Stdout)
//	case cli.CmdServe:
//	    err = cli.HandleServe(ctx, cfg, args, logger, os.Stdout)
//	// ... other commands
//	}
//	os.Exit(cli.GetExitCode(err))
//
// # Commands Overview
//
//   - tui: Full-screen chat (default)
//   - chat: Line-based chat with history and slash commands
//   - serve: Development backend over SQLite
//   - status: Backend health and model registry
//   - config: Show and edit the TOML configuration
//
// status, config and version support --json.
package cli

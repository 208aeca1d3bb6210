// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash commands shared by the line REPL and
// the TUI.
//
// Commands operate on an Env holding the conversation controller and the
// backend client, and return a Result the front end renders. They never
// print or touch the terminal themselves.
//
// # Key Types
//
//   - Registry: all registered commands, looked up by name or alias
//   - Parser: splits input into a command and quoted arguments
//   - Completer: tab completion for commands and arguments
//   - Env: controller, backend and cached listings
//
// # Usage
//
//	env := commands.NewEnv(controller, backendClient)
//	if commands.IsCommand(line) {
//	    res, err := env.Registry.Execute(ctx, env, line)
//	    // render res.Output, exit on res.Quit
//	}
package commands

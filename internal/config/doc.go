// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config reads and writes ~/.rigchat/config.toml.
//
// A value is taken from the first source that sets it:
//
//  1. RIGCHAT_* environment variables
//  2. the TOML file
//  3. Default()
//
// The [chat] table seeds the per-session setting overrides through
// Config.ChatOverrides; [backend] and [devserver] configure the two ends
// of the chat protocol; [logging] feeds NewLogger.
//
// A Watcher reloads the file when it changes on disk so that a running
// chat picks up new defaults without a restart:
//
//	w, err := config.NewWatcher(path, time.Second, func(cfg *config.Config) {
//		ctrl.SetBaseOverrides(cfg.ChatOverrides())
//	}, logger)
package config

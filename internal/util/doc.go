// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the file and text helpers that both rigchat front
// ends need: atomic config writes and display-width aware truncation and
// padding for chat titles and table rows.
package util

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings computes the effective request settings for a turn.
//
// Three layers feed the result, highest precedence first:
//
//  1. The model capability. A feature the model does not support is off,
//     whatever the lower layers say.
//  2. Overrides the user made for the current session.
//  3. Values persisted on the chat record, then the model's own defaults.
//
// Anything left unset falls back to the package defaults. Resolve is a pure
// function; calling it twice with the same inputs gives the same result.
package settings

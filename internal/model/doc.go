// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the conversation engine.
//
// This package defines the domain types that flow between the timeline, the
// settings resolver, the transports and the controller. It has no behaviour
// beyond small invariants on the types themselves.
//
// # Key Types
//
//   - Message: one timeline entry with role, content, creation time and lifecycle status
//   - Status: message lifecycle (pending, streaming, complete, errored)
//   - ChatSession: the active chat; an empty ID marks a draft that the backend has not stored yet
//   - ModelCapability: capability flags and defaults of a registered model
//   - ContextSettings: per-chat context configuration as persisted by the backend
//   - HistoryEntry: the closed record type sent as conversation history
//
// # Usage
//
// Check a lifecycle transition:
//
//	if model.StatusPending.CanAdvance(model.StatusStreaming) {
//	    // placeholder may start receiving content
//	}
//
// Build the history payload from a snapshot:
//
//	history := model.HistoryFrom(messages)
package model

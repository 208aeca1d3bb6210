// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation runs one chat turn at a time against a Transport.
//
// A turn moves through
//
//	Idle -> Validating -> Dispatching -> Streaming | AwaitingUnary -> Finalizing -> Idle
//
// with Errored reachable from any busy state. Transport output is converted
// into typed Events, each tagged with the session epoch and the placeholder
// message it targets, and fed one by one through Apply. Reduce is the pure
// transition function behind Apply and can be tested on its own.
//
// Switching chats, starting a new chat or deleting the active one bumps the
// epoch and cancels the running turn. Events still in flight for the old
// epoch are dropped when they reach Apply.
//
// # Usage
//
//	ctrl := conversation.New(conversation.Config{Transport: client, Directory: backend})
//	ctrl.SelectModel(capability)
//	if err := ctrl.Send(ctx, "hello"); err != nil {
//	    // validation error, nothing was sent
//	}
//	for m := range ctrl.Timeline().Snapshot().All() {
//	    fmt.Println(m.Role, m.Content)
//	}
package conversation

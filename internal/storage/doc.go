// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides SQLite persistence for the development backend.
//
// It stores chats, their messages and the model registry. Every chat gets a
// numeric id and a random URL slug; clients may address a chat by either.
//
// # Key Types
//
//   - Store: Database handle with chat, message and model operations
//
// # Usage
//
//	store, err := storage.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	chat, err := store.CreateChat(ctx, api.ChatCreate{Title: "hello", ConfigID: 1})
//	_, err = store.AddMessage(ctx, chat.ID, api.MessageCreate{Role: model.RoleUser, Content: "hello"})
//
// # Storage Location
//
// The database lives at ~/.rigchat/rigchat.db unless [storage] path says
// otherwise. ":memory:" opens a private in-memory database.
package storage

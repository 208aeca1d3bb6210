// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/model"
)

// newTestStore opens a store in a temp dir with a clock that advances one
// second per call, so ordering by updated_at is deterministic.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestCreateChat_Defaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, api.ChatCreate{Title: "hello", ConfigID: 3})
	require.NoError(t, err)

	assert.NotZero(t, chat.ID)
	assert.Len(t, chat.URL, 36, "uuid slug")
	assert.Equal(t, "hello", chat.Title)
	assert.Equal(t, int64(3), chat.ConfigID)
	assert.True(t, chat.EnableContext)
	assert.Equal(t, DefaultWindowSize, chat.ContextWindowSize)
	assert.True(t, chat.EnableContextSummary)
	assert.Nil(t, chat.ContextSummary)
	assert.Equal(t, chat.CreatedAt, chat.UpdatedAt)

	byURL, err := s.GetChatByURL(ctx, chat.URL)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, byURL.ID)

	other, err := s.CreateChat(ctx, api.ChatCreate{Title: "second", ConfigID: 3})
	require.NoError(t, err)
	assert.NotEqual(t, chat.URL, other.URL)
}

func TestCreateChat_WithContextSettings(t *testing.T) {
	s := newTestStore(t)
	chat, err := s.CreateChat(context.Background(), api.ChatCreate{
		Title:    "ctx",
		ConfigID: 1,
		ContextSettings: model.ContextSettings{
			EnableContext:  model.Ptr(false),
			WindowSize:     model.Ptr(4),
			SmartSelection: model.Ptr(false),
		},
	})
	require.NoError(t, err)

	assert.False(t, chat.EnableContext)
	assert.Equal(t, 4, chat.ContextWindowSize)
	require.NotNil(t, chat.ContextSettings.SmartSelection)
	assert.False(t, *chat.ContextSettings.SmartSelection)

	sess := chat.Session()
	assert.False(t, *sess.Persisted.EnableContext)
	assert.Equal(t, 4, *sess.Persisted.WindowSize)
	assert.Equal(t, "1", sess.ModelID)
}

func TestCreateChat_RejectsEmptyTitle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateChat(context.Background(), api.ChatCreate{Title: "  ", ConfigID: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetChat_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetChat(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetChatByURL(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListChats_OrderPagingAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.CreateChat(ctx, api.ChatCreate{Title: "a", ConfigID: 1})
	b, _ := s.CreateChat(ctx, api.ChatCreate{Title: "b", ConfigID: 2})
	c, _ := s.CreateChat(ctx, api.ChatCreate{Title: "c", ConfigID: 1})

	// touching a moves it to the front
	_, err := s.AddMessage(ctx, a.ID, api.MessageCreate{Role: model.RoleUser, Content: "bump"})
	require.NoError(t, err)

	list, err := s.ListChats(ctx, 0, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Chats, 3)
	assert.Equal(t, []int64{a.ID, c.ID, b.ID}, []int64{list.Chats[0].ID, list.Chats[1].ID, list.Chats[2].ID})

	page, err := s.ListChats(ctx, 1, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Chats, 1)
	assert.Equal(t, c.ID, page.Chats[0].ID)
	assert.Equal(t, 3, page.Total)

	filtered, err := s.ListChats(ctx, 0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, filtered.Total)
	assert.Equal(t, MaxListLimit, filtered.Limit)
	assert.Equal(t, b.ID, filtered.Chats[0].ID)
}

func TestListChats_EmptyIsNotNil(t *testing.T) {
	s := newTestStore(t)
	list, err := s.ListChats(context.Background(), 0, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, list.Chats)
	assert.Empty(t, list.Chats)
}

func TestUpdateChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat, err := s.CreateChat(ctx, api.ChatCreate{
		Title:           "before",
		ConfigID:        1,
		ContextSettings: model.ContextSettings{KeywordFiltering: model.Ptr(true)},
	})
	require.NoError(t, err)

	updated, err := s.UpdateChat(ctx, chat.ID, api.UpdateFromSettings(model.ContextSettings{
		WindowSize:     model.Ptr(6),
		EnableSummary:  model.Ptr(false),
		SmartSelection: model.Ptr(false),
	}))
	require.NoError(t, err)

	assert.Equal(t, "before", updated.Title)
	assert.Equal(t, 6, updated.ContextWindowSize)
	assert.False(t, updated.EnableContextSummary)
	assert.True(t, updated.EnableContext, "unset field left alone")
	assert.True(t, *updated.ContextSettings.KeywordFiltering, "earlier setting kept")
	assert.False(t, *updated.ContextSettings.SmartSelection)
	assert.True(t, updated.UpdatedAt.After(chat.UpdatedAt))

	title := "after"
	summary := "Topics: go"
	updated, err = s.UpdateChat(ctx, chat.ID, api.ChatUpdate{Title: &title, ContextSummary: &summary})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Title)
	require.NotNil(t, updated.ContextSummary)
	assert.Equal(t, summary, *updated.ContextSummary)

	_, err = s.UpdateChat(ctx, 999, api.ChatUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChat_CascadesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat, _ := s.CreateChat(ctx, api.ChatCreate{Title: "gone", ConfigID: 1})
	_, err := s.AddMessage(ctx, chat.ID, api.MessageCreate{Role: model.RoleUser, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteChat(ctx, chat.ID))
	assert.ErrorIs(t, s.DeleteChat(ctx, chat.ID), ErrNotFound)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n))
	assert.Zero(t, n)
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessages_Order(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat, _ := s.CreateChat(ctx, api.ChatCreate{Title: "t", ConfigID: 1})

	_, err := s.AddMessage(ctx, chat.ID, api.MessageCreate{Role: model.RoleUser, Content: "q1"})
	require.NoError(t, err)
	m2, err := s.AddMessage(ctx, chat.ID, api.MessageCreate{Role: model.RoleAssistant, Content: "a1"})
	require.NoError(t, err)
	assert.Equal(t, chat.ID, m2.ChatID)

	msgs, err := s.Messages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "q1", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))

	converted := api.Messages(msgs)
	assert.Equal(t, model.StatusComplete, converted[1].Status)
}

func TestAddMessage_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddMessage(ctx, 42, api.MessageCreate{Role: model.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	chat, _ := s.CreateChat(ctx, api.ChatCreate{Title: "t", ConfigID: 1})
	_, err = s.AddMessage(ctx, chat.ID, api.MessageCreate{Role: "system", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Messages(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestModels_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.CreateModel(ctx, api.ModelRecord{
		Name:            "GPT",
		BaseURL:         "https://api.example.com/",
		APIKey:          "sk",
		ModelName:       "gpt-4o-mini",
		IsActive:        true,
		EnableStreaming: true,
		EnableContext:   true,
		Temperature:     0.7,
		TopP:            1,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", m.BaseURL)
	assert.Nil(t, m.UpdatedAt)
	assert.Nil(t, m.MaxTokens)

	_, err = s.CreateModel(ctx, api.ModelRecord{Name: "off", ModelName: "x", Temperature: 1, TopP: 1})
	require.NoError(t, err)

	all, err := s.ListModels(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, 1, all.ActiveCount)

	active, err := s.ListModels(ctx, true)
	require.NoError(t, err)
	require.Len(t, active.Models, 1)
	assert.Equal(t, m.ID, active.Models[0].ID)

	updated, err := s.UpdateModelSettings(ctx, m.ID, api.ModelSettingsUpdate{
		EnableStreaming: model.Ptr(false),
		MaxTokens:       model.Ptr(512),
		Temperature:     model.Ptr(1.2),
	})
	require.NoError(t, err)
	assert.False(t, updated.EnableStreaming)
	assert.Equal(t, 512, *updated.MaxTokens)
	assert.Equal(t, 1.2, updated.Temperature)
	assert.NotNil(t, updated.UpdatedAt)

	capability := updated.Capability()
	assert.False(t, capability.EnableStreaming)
	assert.Equal(t, 512, *capability.MaxTokens)

	require.NoError(t, s.DeleteModel(ctx, m.ID))
	_, err = s.GetModel(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModels_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateModel(ctx, api.ModelRecord{Name: "", ModelName: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.CreateModel(ctx, api.ModelRecord{Name: "n", ModelName: "x", Temperature: 3, TopP: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	m, err := s.CreateModel(ctx, api.ModelRecord{Name: "n", ModelName: "x", Temperature: 1, TopP: 1})
	require.NoError(t, err)
	_, err = s.UpdateModelSettings(ctx, m.ID, api.ModelSettingsUpdate{TopP: model.Ptr(1.5)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.UpdateModelSettings(ctx, 999, api.ModelSettingsUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))

	_, err = s.CreateChat(context.Background(), api.ChatCreate{Title: "mem", ConfigID: 1})
	assert.NoError(t, err)
}

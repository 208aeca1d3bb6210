// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/backend"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/settings"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/transport"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type harness struct {
	srv     *httptest.Server
	store   *storage.Store
	model   api.ModelRecord
	chat    *transport.Client
	history *backend.Client
}

func newHarness(t *testing.T, responder Responder, token string) *harness {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seeded, err := EnsureDefaultModel(context.Background(), store, config.UpstreamConfig{})
	require.NoError(t, err)
	require.NotNil(t, seeded)

	srv := httptest.NewServer(New(Options{Store: store, Responder: responder, Token: token}).Handler())
	t.Cleanup(srv.Close)

	return &harness{
		srv:     srv,
		store:   store,
		model:   *seeded,
		chat:    transport.NewClientWithConfig(&transport.ClientConfig{BaseURL: srv.URL, Token: token, RateLimit: 100}),
		history: backend.New(backend.Config{BaseURL: srv.URL, Token: token, RateLimit: 100}),
	}
}

func (h *harness) request(message, ref string) *transport.Request {
	capability := h.model.Capability()
	return &transport.Request{
		ConfigID:   capability.ID,
		Message:    message,
		SessionRef: ref,
		Settings:   settings.Resolve(capability, model.ContextSettings{}, settings.Overrides{}),
	}
}

func collect(t *testing.T, events <-chan stream.Event) (string, stream.Event) {
	t.Helper()
	var text strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed without a terminal event")
			if ev.Terminal() {
				return text.String(), ev
			}
			text.WriteString(ev.Content)
		case <-timeout:
			t.Fatal("timed out waiting for stream")
		}
	}
}

// failingResponder sends one chunk and then fails.
type failingResponder struct{}

func (failingResponder) Complete(context.Context, api.ModelRecord, Completion) (string, error) {
	return "", &UpstreamError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}
}

func (failingResponder) Stream(_ context.Context, _ api.ModelRecord, _ Completion, emit func(string) error) error {
	if err := emit("partial"); err != nil {
		return err
	}
	return &UpstreamError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}
}

// =============================================================================
// CHAT ENDPOINTS
// =============================================================================

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t, nil, "secret")
	anon := backend.New(backend.Config{BaseURL: h.srv.URL})

	health, err := anon.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "remote", health.Service)

	_, err = anon.ListModels(context.Background())
	assert.True(t, transport.IsStatus(err, http.StatusUnauthorized))

	_, err = h.history.ListModels(context.Background())
	assert.NoError(t, err)
}

func TestUnaryChatCreatesChat(t *testing.T) {
	h := newHarness(t, nil, "")
	ctx := context.Background()

	res, err := h.chat.SendUnary(ctx, h.request("hello there", ""))
	require.NoError(t, err)
	assert.Equal(t, "[echo] You said: hello there", res.Reply)
	require.NotEmpty(t, res.SessionRef)

	detail, err := h.history.GetChatByURL(ctx, res.SessionRef)
	require.NoError(t, err)
	assert.Equal(t, "hello there", detail.Title)
	assert.Equal(t, "echo", detail.Name)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, model.RoleUser, detail.Messages[0].Role)
	assert.Equal(t, res.Reply, detail.Messages[1].Content)

	// Same ref continues the chat.
	_, err = h.chat.SendUnary(ctx, h.request("again", res.SessionRef))
	require.NoError(t, err)
	list, err := h.history.ListChats(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}

func TestStreamingChat(t *testing.T) {
	h := newHarness(t, nil, "")
	ctx := context.Background()

	events, err := h.chat.SendStreaming(ctx, h.request("stream me", ""))
	require.NoError(t, err)
	text, last := collect(t, events)

	assert.Equal(t, "[echo] You said: stream me", text)
	assert.Equal(t, stream.TypeDone, last.Type)
	assert.True(t, last.Success)
	require.NotEmpty(t, last.SessionRef)

	// The done frame carries the numeric id, which also works as a ref.
	events, err = h.chat.SendStreaming(ctx, h.request("second", last.SessionRef))
	require.NoError(t, err)
	_, again := collect(t, events)
	assert.Equal(t, last.SessionRef, again.SessionRef)

	msgs, err := h.history.Messages(ctx, last.SessionRef)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "second", msgs[2].Content)
}

func TestLongMessageTitle(t *testing.T) {
	h := newHarness(t, nil, "")
	long := strings.Repeat("x", 80)

	res, err := h.chat.SendUnary(context.Background(), h.request(long, ""))
	require.NoError(t, err)

	detail, err := h.history.GetChatByURL(context.Background(), res.SessionRef)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 50)+"...", detail.Title)
}

func TestChatRejectsBadModel(t *testing.T) {
	h := newHarness(t, nil, "")
	ctx := context.Background()

	req := h.request("hi", "")
	req.ConfigID = "999"
	_, err := h.chat.SendUnary(ctx, req)
	assert.True(t, transport.IsStatus(err, http.StatusNotFound))

	_, err = h.history.ActivateModel(ctx, h.model.Capability().ID, false)
	require.NoError(t, err)
	_, err = h.chat.SendStreaming(ctx, h.request("hi", ""))
	assert.True(t, transport.IsStatus(err, http.StatusBadRequest))
}

func TestUpstreamFailure(t *testing.T) {
	h := newHarness(t, failingResponder{}, "")
	ctx := context.Background()

	_, err := h.chat.SendUnary(ctx, h.request("hi", ""))
	require.Error(t, err)
	assert.Equal(t, transport.ErrTypeRemote, transport.TypeOf(err))
	assert.Contains(t, err.Error(), "HTTP 502: bad gateway")

	events, err := h.chat.SendStreaming(ctx, h.request("hi", ""))
	require.NoError(t, err)
	text, last := collect(t, events)
	assert.Equal(t, "partial", text)
	assert.Equal(t, stream.TypeError, last.Type)
	assert.Contains(t, last.Message, "bad gateway")
}

// =============================================================================
// HISTORY ENDPOINTS
// =============================================================================

func TestHistoryLifecycle(t *testing.T) {
	h := newHarness(t, nil, "")
	ctx := context.Background()

	rec, err := h.history.CreateChat(ctx, api.ChatCreate{Title: "manual", ConfigID: h.model.ID})
	require.NoError(t, err)
	id := rec.Session().ID

	_, err = h.history.AddMessage(ctx, id, api.MessageCreate{Role: model.RoleUser, Content: "note"})
	require.NoError(t, err)

	require.NoError(t, h.history.UpdateContextSettings(ctx, id, model.ContextSettings{
		WindowSize:     model.Ptr(4),
		SmartSelection: model.Ptr(true),
	}))

	sess, err := h.history.Refresh(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "manual", sess.Title)
	require.NotNil(t, sess.Persisted.WindowSize)
	assert.Equal(t, 4, *sess.Persisted.WindowSize)
	assert.True(t, *sess.Persisted.SmartSelection)

	byURL, err := h.history.Refresh(ctx, sess.URL)
	require.NoError(t, err)
	assert.Equal(t, id, byURL.ID)

	require.NoError(t, h.history.DeleteChat(ctx, id))
	_, err = h.history.GetChat(ctx, id)
	assert.True(t, errors.Is(err, backend.ErrNotFound))
	err = h.history.DeleteChat(ctx, id)
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}

func TestListChatsValidation(t *testing.T) {
	h := newHarness(t, nil, "")

	resp, err := http.Get(h.srv.URL + "/api/history/?limit=5000")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = http.Get(h.srv.URL + "/api/history/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestContextSummary(t *testing.T) {
	h := newHarness(t, nil, "")
	ctx := context.Background()

	rec, err := h.history.CreateChat(ctx, api.ChatCreate{Title: "empty", ConfigID: h.model.ID})
	require.NoError(t, err)
	empty, err := h.history.ContextSummary(ctx, rec.Session().ID)
	require.NoError(t, err)
	assert.False(t, empty.Success)

	res, err := h.chat.SendUnary(ctx, h.request("golang channels and goroutines", ""))
	require.NoError(t, err)
	detail, err := h.history.GetChatByURL(ctx, res.SessionRef)
	require.NoError(t, err)

	out, err := h.history.ContextSummary(ctx, detail.Session().ID)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Summary, "goroutines")

	stored, err := h.history.GetChat(ctx, detail.Session().ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ContextSummary)
	assert.Equal(t, out.Summary, *stored.ContextSummary)
}

func TestGetChatAppliesContextWindow(t *testing.T) {
	h := newHarness(t, nil, "")
	ctx := context.Background()

	rec, err := h.history.CreateChat(ctx, api.ChatCreate{
		Title:           "windowed",
		ConfigID:        h.model.ID,
		ContextSettings: model.ContextSettings{WindowSize: model.Ptr(2), SmartSelection: model.Ptr(false)},
	})
	require.NoError(t, err)
	id := rec.Session().ID
	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := h.history.AddMessage(ctx, id, api.MessageCreate{Role: model.RoleUser, Content: text})
		require.NoError(t, err)
	}

	resp, err := http.Get(h.srv.URL + "/api/history/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	var windowed api.ChatDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&windowed))
	require.Len(t, windowed.Messages, 2)
	assert.Equal(t, "three", windowed.Messages[0].Content)

	full, err := h.history.GetChat(ctx, id)
	require.NoError(t, err)
	assert.Len(t, full.Messages, 4)
}

// =============================================================================
// MODEL ENDPOINTS
// =============================================================================

func TestModelsAreRedacted(t *testing.T) {
	h := newHarness(t, nil, "")
	ctx := context.Background()

	_, err := h.store.CreateModel(ctx, api.ModelRecord{
		Name: "remote", ModelName: "gpt", BaseURL: "https://example.com", APIKey: "sk-secret", IsActive: true,
	})
	require.NoError(t, err)

	list, err := h.history.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 2, list.ActiveCount)
	for _, m := range list.Models {
		assert.Empty(t, m.APIKey)
	}

	m, err := h.history.ActivateModel(ctx, "2", false)
	require.NoError(t, err)
	assert.False(t, m.IsActive)

	_, err = h.history.GetModel(ctx, "42")
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}

func TestEnsureDefaultModelOnlyOnce(t *testing.T) {
	h := newHarness(t, nil, "")
	again, err := EnsureDefaultModel(context.Background(), h.store, config.UpstreamConfig{})
	require.NoError(t, err)
	assert.Nil(t, again)
}

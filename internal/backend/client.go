// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend is the HTTP client for the chat backend's history and
// model registry endpoints.
//
// Chat turns themselves go through the transport package. This client covers
// everything around them: listing and opening chats, deleting them, storing
// per-chat context settings and reading the model registry. It implements
// conversation.ChatDirectory so the controller can refresh a session after
// adopting it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/transport"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("not found")

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the backend client.
type Config struct {
	// BaseURL of the backend (default: http://localhost:8000)
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout bounds every call (default: 30s)
	Timeout time.Duration

	// RateLimit is the number of requests per second allowed (default: 10)
	RateLimit float64

	// Logger for request diagnostics (default: slog.Default())
	Logger *slog.Logger

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to /api/history and /api/models. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ conversation.ChatDirectory = (*Client)(nil)

// New creates a client, filling zero values with defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1),
		logger:     cfg.Logger,
	}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// CHAT HISTORY
// =============================================================================

// ListChats returns one page of chats, newest first. A zero limit uses the
// backend default.
func (c *Client) ListChats(ctx context.Context, skip, limit int) (*api.ChatList, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out api.ChatList
	if err := c.do(ctx, http.MethodGet, "/api/history/?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChat fetches a chat by numeric id with its full message list.
func (c *Client) GetChat(ctx context.Context, id string) (*api.ChatDetail, error) {
	var out api.ChatDetail
	path := "/api/history/" + url.PathEscape(id) + "?use_context=false"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetChatByURL fetches a chat by its URL slug.
func (c *Client) GetChatByURL(ctx context.Context, chatURL string) (*api.ChatDetail, error) {
	var out api.ChatDetail
	path := "/api/history/url/" + url.PathEscape(chatURL) + "?use_context=false"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenChat fetches a chat by id or URL slug and converts it for the
// controller's SwitchSession.
func (c *Client) OpenChat(ctx context.Context, ref string) (*model.ChatSession, []model.Message, error) {
	detail, err := c.lookup(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return detail.Session(), api.Messages(detail.Messages), nil
}

// CreateChat creates an empty chat.
func (c *Client) CreateChat(ctx context.Context, in api.ChatCreate) (*api.ChatRecord, error) {
	var out api.ChatRecord
	if err := c.do(ctx, http.MethodPost, "/api/history/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChat applies a partial update to a chat.
func (c *Client) UpdateChat(ctx context.Context, id string, u api.ChatUpdate) (*api.ChatRecord, error) {
	var out api.ChatRecord
	if err := c.do(ctx, http.MethodPut, "/api/history/"+url.PathEscape(id), u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMessage appends a message to a chat.
func (c *Client) AddMessage(ctx context.Context, id string, m api.MessageCreate) (*api.MessageRecord, error) {
	var out api.MessageRecord
	if err := c.do(ctx, http.MethodPost, "/api/history/"+url.PathEscape(id)+"/messages", m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages returns every message of a chat in order.
func (c *Client) Messages(ctx context.Context, id string) ([]api.MessageRecord, error) {
	var out []api.MessageRecord
	if err := c.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(id)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ContextSummary asks the backend to summarize a chat's context and store
// the result on the chat.
func (c *Client) ContextSummary(ctx context.Context, id string) (*api.ContextSummaryResponse, error) {
	var out api.ContextSummaryResponse
	if err := c.do(ctx, http.MethodPost, "/api/history/"+url.PathEscape(id)+"/context/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// CHAT DIRECTORY
// =============================================================================

// Refresh reloads a session by the reference the backend returned on
// adoption. Numeric refs are chat ids, anything else is a URL slug.
func (c *Client) Refresh(ctx context.Context, ref string) (*model.ChatSession, error) {
	detail, err := c.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	return detail.Session(), nil
}

// DeleteChat removes a chat and its messages.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/history/"+url.PathEscape(id), nil, nil)
}

// UpdateContextSettings stores cs on a persisted chat.
func (c *Client) UpdateContextSettings(ctx context.Context, id string, cs model.ContextSettings) error {
	_, err := c.UpdateChat(ctx, id, api.UpdateFromSettings(cs))
	return err
}

func (c *Client) lookup(ctx context.Context, ref string) (*api.ChatDetail, error) {
	if _, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return c.GetChat(ctx, ref)
	}
	return c.GetChatByURL(ctx, ref)
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// ListModels returns every registered model.
func (c *Client) ListModels(ctx context.Context) (*api.ModelList, error) {
	var out api.ModelList
	if err := c.do(ctx, http.MethodGet, "/api/models/list", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetModel fetches one model.
func (c *Client) GetModel(ctx context.Context, id string) (*api.ModelRecord, error) {
	var out api.ModelRecord
	if err := c.do(ctx, http.MethodGet, "/api/models/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateModelSettings applies a partial settings update to a model.
func (c *Client) UpdateModelSettings(ctx context.Context, id string, u api.ModelSettingsUpdate) (*api.ModelRecord, error) {
	var out api.ModelRecord
	if err := c.do(ctx, http.MethodPut, "/api/models/"+url.PathEscape(id)+"/settings", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateModel marks a model active or inactive.
func (c *Client) ActivateModel(ctx context.Context, id string, active bool) (*api.ModelRecord, error) {
	return c.UpdateModelSettings(ctx, id, api.ModelSettingsUpdate{IsActive: &active})
}

// DefaultModel picks the model to start with: the preferred id when it is
// registered and active, otherwise the first active model. It returns nil
// when no model is usable.
func (c *Client) DefaultModel(ctx context.Context, preferred string) (*model.ModelCapability, error) {
	list, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return PickModel(list.Models, preferred), nil
}

// PickModel applies DefaultModel's choice to an already fetched list.
func PickModel(models []api.ModelRecord, preferred string) *model.ModelCapability {
	var first *model.ModelCapability
	for _, m := range models {
		if !m.IsActive {
			continue
		}
		capability := m.Capability()
		if preferred != "" && (capability.ID == preferred || m.Name == preferred) {
			return capability
		}
		if first == nil {
			first = capability
		}
	}
	return first
}

// Health probes /api/remote/health.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	var out api.Health
	if err := c.do(ctx, http.MethodGet, "/api/remote/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// do sends one JSON request and decodes the response into out (when non-nil).
// Failures are *transport.TransportError; a 404 also matches ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &transport.TransportError{Type: transport.ErrTypeMalformed, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return transport.WrapRequestError("rate limiter", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &transport.TransportError{Type: transport.ErrTypeNetwork, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transport.WrapRequestError(method+" "+path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("BACKEND_REQUEST", "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if err := transport.CheckStatus(resp); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return transport.WrapRequestError("reading response", ctx.Err())
		}
		return &transport.TransportError{Type: transport.ErrTypeMalformed, Message: "failed to decode response", Cause: err}
	}
	return nil
}

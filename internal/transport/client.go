// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport sends chat turns to the inference backend over HTTP.
//
// Two calls share one Transport interface: SendUnary for a single
// request/response and SendStreaming for the line-delimited event stream.
// Both report failures as *TransportError and never retry.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigchat/internal/stream"
)

// errIdle cancels a stream that has been silent for too long.
var errIdle = errors.New("stream idle timeout")

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the HTTP transport.
type ClientConfig struct {
	// BaseURL of the backend, without the /api suffix (default: http://localhost:8000)
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// RateLimit is the number of requests per second allowed (default: 5)
	RateLimit float64

	// Burst is the limiter burst size (default: 5)
	Burst int

	// StreamGrace is how long to wait after a stream ends without a terminal
	// frame before reporting the failure (default: 0)
	StreamGrace time.Duration

	// EventBuffer is the capacity of the streaming event channel (default: 32)
	EventBuffer int

	// Logger for request diagnostics (default: slog.Default())
	Logger *slog.Logger

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// DefaultConfig returns the default transport configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:     "http://localhost:8000",
		RateLimit:   5,
		Burst:       5,
		EventBuffer: 32,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the HTTP implementation of Transport. It is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ Transport = (*Client)(nil)

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client, filling zero values with defaults.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 32
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No client-level timeout: each call sets its own deadline and a
		// global timeout would cut long streams.
		httpClient = &http.Client{}
	}

	return &Client{
		config:     &cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:     cfg.Logger,
	}
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// UNARY
// =============================================================================

// SendUnary posts the turn to /api/remote/chat. The effective timeout bounds
// the whole exchange.
func (c *Client) SendUnary(ctx context.Context, req *Request) (*UnaryResult, error) {
	if t := req.Settings.Timeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	resp, err := c.post(ctx, "/api/remote/chat", toWire(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return nil, err
	}

	var body ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, wrapDecodeError(ctx, err)
	}
	if !body.Success {
		msg := body.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, &TransportError{Type: ErrTypeRemote, Message: msg}
	}

	reply := body.Response
	if strings.TrimSpace(reply) == "" {
		reply = FallbackReply
	}
	return &UnaryResult{Reply: reply, SessionRef: body.sessionRef()}, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// SendStreaming posts the turn to /api/remote/chat/stream and decodes the
// response in a goroutine. The effective timeout bounds the wait for the
// response headers and every silence between chunks.
func (c *Client) SendStreaming(parent context.Context, req *Request) (<-chan stream.Event, error) {
	ctx, cancel := context.WithCancelCause(parent)
	timeout := req.Settings.Timeout()

	headerTimer := time.AfterFunc(timeoutOrNever(timeout), func() { cancel(errIdle) })
	resp, err := c.post(ctx, "/api/remote/chat/stream", toWire(req, true))
	headerTimer.Stop()
	if err != nil {
		cancel(nil)
		if cause := context.Cause(ctx); errors.Is(cause, errIdle) {
			return nil, WrapRequestError("no response from backend", cause)
		}
		return nil, err
	}
	if err := CheckStatus(resp); err != nil {
		resp.Body.Close()
		cancel(nil)
		return nil, err
	}

	events := make(chan stream.Event, c.config.EventBuffer)
	go func() {
		defer close(events)
		defer cancel(nil)
		defer resp.Body.Close()

		body := newIdleReader(resp.Body, timeout, func() { cancel(errIdle) })
		defer body.stop()

		// Only the caller's cancellation drops events; an idle cancel must
		// still deliver its failure.
		emit := func(ev stream.Event) bool {
			select {
			case events <- ev:
				return true
			case <-parent.Done():
				return false
			}
		}

		for ev, err := range stream.Decode(ctx, body, c.logger) {
			if err != nil {
				if errors.Is(err, stream.ErrIncompleteStream) && c.config.StreamGrace > 0 {
					select {
					case <-time.After(c.config.StreamGrace):
					case <-ctx.Done():
					}
				}
				if cause := context.Cause(ctx); errors.Is(cause, errIdle) {
					err = cause
				}
				emitFailure(emit, WrapRequestError("stream failed", err))
				return
			}

			if ev.Type == stream.TypeError {
				emitFailure(emit, &TransportError{Type: ErrTypeRemote, Message: ev.Message})
				return
			}
			if !emit(ev) {
				return
			}
		}
	}()

	return events, nil
}

func emitFailure(emit func(stream.Event) bool, err *TransportError) {
	emit(stream.Failure(err))
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Type: ErrTypeMalformed, Message: "failed to marshal request", Cause: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, WrapRequestError("rate limiter", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Type: ErrTypeNetwork, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	c.logger.Debug("TRANSPORT_REQUEST", "path", path, "bytes", len(body))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, WrapRequestError("request failed", err)
	}
	return resp, nil
}

// CheckStatus turns a non-2xx response into a TransportError.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := resp.Status
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		if eb.Detail != "" {
			msg = eb.Detail
		} else if eb.Error != "" {
			msg = eb.Error
		}
	}
	return &TransportError{Type: ErrTypeStatus, Message: msg, StatusCode: resp.StatusCode}
}

func wrapDecodeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return WrapRequestError("reading response", ctx.Err())
	}
	return &TransportError{Type: ErrTypeMalformed, Message: "failed to decode response", Cause: err}
}

func timeoutOrNever(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Duration(1<<63 - 1)
	}
	return d
}

// idleReader calls onIdle when no Read has returned data for the timeout.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
}

func newIdleReader(r io.Reader, timeout time.Duration, onIdle func()) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	if timeout > 0 {
		ir.timer = time.AfterFunc(timeout, onIdle)
	}
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 && ir.timer != nil {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

func (ir *idleReader) stop() {
	if ir.timer != nil {
		ir.timer.Stop()
	}
}

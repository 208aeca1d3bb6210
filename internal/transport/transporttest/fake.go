// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transporttest provides an in-memory Transport for tests.
//
// The fake pushes canned byte chunks through the real stream decoder, so
// tests exercise the same framing rules as the HTTP client.
package transporttest

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/transport"
)

// Fake is a scripted Transport. Configure it before use; it records every call.
type Fake struct {
	mu sync.Mutex

	// Chunks are written to the decoder one by one for streaming calls.
	Chunks [][]byte

	// Gate, when set, must receive a value before each chunk is decoded.
	// Tests use it to interleave other actions with a running stream.
	Gate chan struct{}

	// StartErr is returned by SendStreaming before any event.
	StartErr error

	// Unary is returned by SendUnary unless UnaryErr is set.
	Unary    transport.UnaryResult
	UnaryErr error

	// UnaryGate, when set, blocks SendUnary until it receives a value.
	UnaryGate chan struct{}

	requests []transport.Request
	streamed int
	unary    int
}

var _ transport.Transport = (*Fake)(nil)

// SendUnary records the call and returns the scripted result.
func (f *Fake) SendUnary(ctx context.Context, req *transport.Request) (*transport.UnaryResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.unary++
	gate := f.UnaryGate
	res, err := f.Unary, f.UnaryErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &transport.TransportError{Type: transport.ErrTypeCancelled, Message: "cancelled", Cause: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	if res.Reply == "" {
		res.Reply = transport.FallbackReply
	}
	return &res, nil
}

// SendStreaming records the call and replays Chunks through a decoder.
func (f *Fake) SendStreaming(ctx context.Context, req *transport.Request) (<-chan stream.Event, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.streamed++
	chunks := append([][]byte(nil), f.Chunks...)
	gate := f.Gate
	startErr := f.StartErr
	f.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}

	out := make(chan stream.Event)
	go func() {
		defer close(out)
		dec := stream.NewDecoder(nil)
		send := func(ev stream.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, chunk := range chunks {
			if gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					return
				}
			}
			for _, ev := range dec.Feed(chunk) {
				if ev.Type == stream.TypeError {
					send(stream.Failure(&transport.TransportError{Type: transport.ErrTypeRemote, Message: ev.Message}))
					return
				}
				if !send(ev) {
					return
				}
			}
			if dec.Terminated() {
				return
			}
		}
		send(stream.Failure(&transport.TransportError{
			Type:    transport.ErrTypeIncomplete,
			Message: "stream failed",
			Cause:   stream.ErrIncompleteStream,
		}))
	}()
	return out, nil
}

// Requests returns a copy of every request received.
func (f *Fake) Requests() []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Request(nil), f.requests...)
}

// Calls returns the total number of calls, unary and streaming.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unary + f.streamed
}

// StreamCalls returns the number of SendStreaming calls.
func (f *Fake) StreamCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamed
}

// UnaryCalls returns the number of SendUnary calls.
func (f *Fake) UnaryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unary
}

// Frames renders events as wire chunks, one chunk per event.
func Frames(events ...stream.Event) [][]byte {
	chunks := make([][]byte, 0, len(events))
	for _, ev := range events {
		var buf bytes.Buffer
		if err := stream.WriteEvent(&buf, ev); err != nil {
			panic(err)
		}
		chunks = append(chunks, buf.Bytes())
	}
	return chunks
}

// ErrScripted is a convenient error for UnaryErr and StartErr.
var ErrScripted = errors.New("scripted failure")

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"
)

// =============================================================================
// DECODER CONSTANTS
// =============================================================================

// MaxLineSize bounds a single line. A longer line is dropped whole.
const MaxLineSize = 1 << 20

// readSize is the chunk size used by Decode.
const readSize = 4 * 1024

var (
	// ErrIncompleteStream means the body ended before a done or error frame.
	ErrIncompleteStream = errors.New("stream ended without a terminal event")

	// ErrConsumed is yielded when a Decode sequence is ranged a second time.
	ErrConsumed = errors.New("stream already consumed")
)

// =============================================================================
// DECODER
// =============================================================================

// Decoder is the incremental frame decoder. Feed it chunks as they arrive;
// incomplete trailing lines are kept until the next chunk. A Decoder is not
// safe for concurrent use.
type Decoder struct {
	buf        []byte
	terminated bool
	discarding bool // inside an oversized line, skip to the next newline
	dropped    int
	logger     *slog.Logger
}

// NewDecoder creates a decoder. A nil logger uses slog.Default().
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Feed appends chunk to the buffer and returns the events decoded from every
// complete line, in order. Once a terminal event has been returned, further
// calls return nil.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.terminated {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.buf = d.buf[i+1:]

		if d.discarding {
			d.discarding = false
			continue
		}

		ev, ok := d.decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Terminal() {
			d.terminated = true
			d.buf = nil
			return events
		}
	}

	if len(d.buf) > MaxLineSize {
		d.logger.Warn("STREAM_LINE_OVERSIZED", "bytes", len(d.buf))
		d.buf = nil
		d.discarding = true
		d.dropped++
	}

	// Compact so the backing array does not grow forever.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	} else if cap(d.buf) > 2*len(d.buf)+readSize {
		d.buf = append([]byte(nil), d.buf...)
	}
	return events
}

// Terminated reports whether a done or error frame has been seen.
func (d *Decoder) Terminated() bool {
	return d.terminated
}

// Dropped returns the number of lines that could not be decoded.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Residual returns the number of buffered bytes not yet terminated by a newline.
func (d *Decoder) Residual() int {
	return len(d.buf)
}

// decodeLine parses one complete line. ok is false for lines that carry no event.
func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return Event{}, false
	}
	if !bytes.HasPrefix(line, []byte(Prefix)) {
		// comments, event: and id: fields
		return Event{}, false
	}

	payload := line[len(Prefix):]
	ev, err := parsePayload(payload)
	if err != nil {
		d.dropped++
		d.logger.Debug("STREAM_FRAME_DROPPED", "error", err, "payload", truncateBytes(payload, 120))
		return Event{}, false
	}
	return ev, true
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// =============================================================================
// READER ADAPTER
// =============================================================================

// Decode reads r until a terminal frame, EOF or a read error, yielding each
// event. The sequence is single use. When r ends without a terminal frame the
// last pair yielded carries ErrIncompleteStream; read errors are yielded as is.
// Cancelling ctx stops iteration between reads.
func Decode(ctx context.Context, r io.Reader, logger *slog.Logger) iter.Seq2[Event, error] {
	var used atomic.Bool
	return func(yield func(Event, error) bool) {
		if used.Swap(true) {
			yield(Event{}, ErrConsumed)
			return
		}

		dec := NewDecoder(logger)
		buf := make([]byte, readSize)
		for {
			if err := ctx.Err(); err != nil {
				yield(Event{}, err)
				return
			}

			n, readErr := r.Read(buf)
			if n > 0 {
				for _, ev := range dec.Feed(buf[:n]) {
					if !yield(ev, nil) {
						return
					}
				}
				if dec.Terminated() {
					return
				}
			}

			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					// A final line without a trailing newline still counts.
					if dec.Residual() > 0 {
						for _, ev := range dec.Feed([]byte("\n")) {
							if !yield(ev, nil) {
								return
							}
						}
						if dec.Terminated() {
							return
						}
					}
					yield(Event{}, ErrIncompleteStream)
					return
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					readErr = ctxErr
				}
				yield(Event{}, readErr)
				return
			}
		}
	}
}

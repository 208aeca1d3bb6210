// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package timeline holds the ordered message list of the active chat.
//
// Writers replace the whole slice on each change, so a Snapshot taken by a
// reader never changes underneath it. Message ids come from a process-wide
// counter and are therefore unique across timelines as well.
package timeline

import (
	"iter"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/rigchat/internal/model"
)

// lastID is shared by all timelines so an id from a discarded timeline can
// never match a message in its replacement.
var lastID atomic.Uint64

// Timeline is an append-only list of messages with per-message lifecycle.
type Timeline struct {
	mu       sync.Mutex // serializes writers
	messages atomic.Pointer[[]model.Message]

	subMu sync.Mutex
	subs  []chan struct{}
}

// New creates a timeline seeded with already persisted messages. Seed
// messages get fresh ids; their status is kept.
func New(seed ...model.Message) *Timeline {
	t := &Timeline{}
	msgs := make([]model.Message, 0, len(seed))
	for _, m := range seed {
		m.ID = model.MessageID(lastID.Add(1))
		msgs = append(msgs, m)
	}
	t.messages.Store(&msgs)
	return t
}

// Append adds m at the end and returns its new id. Any id set on m is replaced.
func (t *Timeline) Append(m model.Message) model.MessageID {
	t.mu.Lock()
	cur := *t.messages.Load()
	next := make([]model.Message, len(cur), len(cur)+1)
	copy(next, cur)
	m.ID = model.MessageID(lastID.Add(1))
	next = append(next, m)
	t.messages.Store(&next)
	t.mu.Unlock()

	t.notify()
	return m.ID
}

// UpdateByID applies patch to the message with the given id. It returns false
// if the id is unknown or the patch would move the status backwards; the
// timeline is left untouched in both cases.
func (t *Timeline) UpdateByID(id model.MessageID, patch model.Patch) bool {
	t.mu.Lock()
	cur := *t.messages.Load()
	idx := indexOf(cur, id)
	if idx < 0 {
		t.mu.Unlock()
		return false
	}
	updated, ok := patch.ApplyTo(cur[idx])
	if !ok {
		t.mu.Unlock()
		return false
	}
	next := make([]model.Message, len(cur))
	copy(next, cur)
	next[idx] = updated
	t.messages.Store(&next)
	t.mu.Unlock()

	t.notify()
	return true
}

// Get returns the message with the given id.
func (t *Timeline) Get(id model.MessageID) (model.Message, bool) {
	cur := *t.messages.Load()
	if idx := indexOf(cur, id); idx >= 0 {
		return cur[idx], true
	}
	return model.Message{}, false
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(*t.messages.Load())
}

// Snapshot returns the current immutable view.
func (t *Timeline) Snapshot() Snapshot {
	return Snapshot{msgs: *t.messages.Load()}
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce: a slow reader sees at most one pending signal and should
// take a fresh Snapshot when it wakes. Call the returned func to unsubscribe.
func (t *Timeline) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.subMu.Lock()
	t.subs = append(t.subs, ch)
	t.subMu.Unlock()

	return ch, func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		for i, s := range t.subs {
			if s == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

func (t *Timeline) notify() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func indexOf(msgs []model.Message, id model.MessageID) int {
	// ids are increasing, so binary search works
	lo, hi := 0, len(msgs)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case msgs[mid].ID == id:
			return mid
		case msgs[mid].ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return -1
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a read-only view of the timeline at one point in time.
type Snapshot struct {
	msgs []model.Message
}

// All yields the messages in insertion order. It can be ranged repeatedly.
func (s Snapshot) All() iter.Seq[model.Message] {
	return func(yield func(model.Message) bool) {
		for _, m := range s.msgs {
			if !yield(m) {
				return
			}
		}
	}
}

// Len returns the number of messages in the snapshot.
func (s Snapshot) Len() int {
	return len(s.msgs)
}

// At returns the i-th message.
func (s Snapshot) At(i int) model.Message {
	return s.msgs[i]
}

// Last returns the final message, if any.
func (s Snapshot) Last() (model.Message, bool) {
	if len(s.msgs) == 0 {
		return model.Message{}, false
	}
	return s.msgs[len(s.msgs)-1], true
}

// Messages returns a copy of the messages.
func (s Snapshot) Messages() []model.Message {
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// InFlight returns the assistant message still pending or streaming, if any.
func (s Snapshot) InFlight() (model.Message, bool) {
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].Status.InFlight() {
			return s.msgs[i], true
		}
	}
	return model.Message{}, false
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package timeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

func TestAppend_IDsIncrease(t *testing.T) {
	tl := New()

	var prev model.MessageID
	for i := 0; i < 50; i++ {
		id := tl.Append(model.NewUserMessage("x"))
		assert.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, 50, tl.Len())
}

func TestAppend_IDsUniqueAcrossTimelines(t *testing.T) {
	a := New()
	b := New()

	idA := a.Append(model.NewPlaceholder())
	idB := b.Append(model.NewPlaceholder())
	assert.NotEqual(t, idA, idB)

	assert.False(t, b.UpdateByID(idA, model.AppendText("stale")))
	msg, _ := b.Get(idB)
	assert.Empty(t, msg.Content)
}

func TestUpdateByID_UnknownIsNoop(t *testing.T) {
	tl := New(model.NewUserMessage("hello"))
	before := tl.Snapshot().Messages()

	assert.False(t, tl.UpdateByID(model.MessageID(1<<62), model.AppendText("x")))
	assert.Equal(t, before, tl.Snapshot().Messages())
}

func TestUpdateByID_RefusesBackwards(t *testing.T) {
	tl := New()
	id := tl.Append(model.NewPlaceholder())

	require.True(t, tl.UpdateByID(id, model.SetStatus(model.StatusComplete)))
	assert.False(t, tl.UpdateByID(id, model.SetStatus(model.StatusStreaming)))

	msg, ok := tl.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.StatusComplete, msg.Status)
}

func TestSnapshot_CopyOnWrite(t *testing.T) {
	tl := New()
	id := tl.Append(model.NewPlaceholder())
	snap := tl.Snapshot()

	tl.UpdateByID(id, model.AppendText("new"))
	tl.Append(model.NewUserMessage("later"))

	assert.Equal(t, 1, snap.Len())
	assert.Empty(t, snap.At(0).Content)
	assert.Equal(t, model.StatusPending, snap.At(0).Status)
	assert.Equal(t, 2, tl.Snapshot().Len())
}

func TestSnapshot_AllIsRestartable(t *testing.T) {
	tl := New(model.NewUserMessage("a"), model.NewAssistantNotice("b"))
	snap := tl.Snapshot()

	collect := func() []string {
		var out []string
		for m := range snap.All() {
			out = append(out, m.Content)
		}
		return out
	}

	assert.Equal(t, []string{"a", "b"}, collect())
	assert.Equal(t, []string{"a", "b"}, collect())
}

func TestSnapshot_MutationDuringIteration(t *testing.T) {
	tl := New(model.NewUserMessage("a"))

	seen := 0
	for range tl.Snapshot().All() {
		tl.Append(model.NewUserMessage("more"))
		seen++
	}
	assert.Equal(t, 1, seen)
	assert.Equal(t, 2, tl.Len())
}

func TestSnapshot_InFlight(t *testing.T) {
	tl := New(model.NewUserMessage("q"))
	_, ok := tl.Snapshot().InFlight()
	assert.False(t, ok)

	id := tl.Append(model.NewPlaceholder())
	msg, ok := tl.Snapshot().InFlight()
	require.True(t, ok)
	assert.Equal(t, id, msg.ID)
}

func TestSubscribe(t *testing.T) {
	tl := New()
	ch, cancel := tl.Subscribe()

	tl.Append(model.NewUserMessage("a"))
	tl.Append(model.NewUserMessage("b"))

	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal")
	}

	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestConcurrentAppendAndUpdate(t *testing.T) {
	tl := New()
	id := tl.Append(model.NewPlaceholder())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tl.Append(model.NewUserMessage("x"))
				tl.UpdateByID(id, model.AppendText("."))
				_ = tl.Snapshot().Len()
			}
		}()
	}
	wg.Wait()

	msg, _ := tl.Get(id)
	assert.Len(t, msg.Content, 800)
	assert.Equal(t, 801, tl.Len())
}

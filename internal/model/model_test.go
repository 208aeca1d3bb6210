// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// STATUS TESTS
// =============================================================================

func TestStatus_CanAdvance(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusStreaming, true},
		{StatusPending, StatusComplete, true},
		{StatusPending, StatusErrored, true},
		{StatusStreaming, StatusStreaming, true},
		{StatusStreaming, StatusComplete, true},
		{StatusStreaming, StatusErrored, true},
		{StatusStreaming, StatusPending, false},
		{StatusComplete, StatusStreaming, false},
		{StatusComplete, StatusErrored, false},
		{StatusErrored, StatusComplete, false},
		{StatusErrored, StatusPending, false},
	}

	for _, tc := range tests {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanAdvance(tc.to))
		})
	}
}

func TestPatch_ApplyTo(t *testing.T) {
	m := NewPlaceholder()

	m, ok := AppendText("Hi").ApplyTo(m)
	require.True(t, ok)
	assert.Equal(t, StatusStreaming, m.Status)

	m, ok = AppendText(" there").ApplyTo(m)
	require.True(t, ok)
	assert.Equal(t, "Hi there", m.Content)

	m, ok = SetStatus(StatusComplete).ApplyTo(m)
	require.True(t, ok)

	_, ok = AppendText("late").ApplyTo(m)
	assert.False(t, ok, "complete message must not reopen")

	_, ok = SetStatus(StatusComplete).ApplyTo(m)
	assert.False(t, ok, "terminal state is not re-entered")
}

func TestPatch_Replace(t *testing.T) {
	m := NewPlaceholder()
	m, _ = AppendText("partial").ApplyTo(m)

	m, ok := Replace(StatusErrored, "failed").ApplyTo(m)
	require.True(t, ok)
	assert.Equal(t, "failed", m.Content)
	assert.Equal(t, StatusErrored, m.Status)
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "short", TitleFrom("short"))

	long := "这是一个非常长的标题这是一个非常长的标题这是一个非常长的标题这是一个非常长的标题这是一个非常长的标题这是一个非常长的标题"
	title := TitleFrom(long)
	assert.Equal(t, TitleMaxRunes+3, len([]rune(title)))
	assert.Equal(t, "...", title[len(title)-3:])
}

func TestChatSession_CloneIsDeep(t *testing.T) {
	s := NewDraft("7")
	s.Persisted.WindowSize = Ptr(12)

	c := s.Clone()
	*c.Persisted.WindowSize = 3

	assert.Equal(t, 12, *s.Persisted.WindowSize)
	assert.True(t, c.IsDraft())
}

func TestModelCapability_CloneIsDeep(t *testing.T) {
	var none *ModelCapability
	assert.Nil(t, none.Clone())

	m := &ModelCapability{ID: "1", Temperature: Ptr(0.5), MaxTokens: Ptr(64), PresPenalty: Ptr(0.1)}
	c := m.Clone()
	require.NotSame(t, m.Temperature, c.Temperature)
	*c.Temperature = 1.0
	*c.MaxTokens = 1
	*c.PresPenalty = 2

	assert.Equal(t, 0.5, *m.Temperature)
	assert.Equal(t, 64, *m.MaxTokens)
	assert.Equal(t, 0.1, *m.PresPenalty)
	assert.Nil(t, c.TopP)
	assert.Equal(t, "1", c.ID)
}

func TestHistoryFrom_SkipsIncomplete(t *testing.T) {
	msgs := []Message{
		NewUserMessage("q1"),
		NewAssistantNotice("a1"),
		{Role: RoleAssistant, Content: "boom", Status: StatusErrored},
		NewPlaceholder(),
	}

	got := HistoryFrom(msgs)
	assert.Equal(t, []HistoryEntry{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
	}, got)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextwindow

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

func msgs(contents ...string) []model.Message {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]model.Message, len(contents))
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out[i] = model.Message{ID: model.MessageID(i + 1), Role: role, Content: c, CreatedAt: base.Add(time.Duration(i) * time.Hour), Status: model.StatusComplete}
	}
	return out
}

func TestKeywords(t *testing.T) {
	got := Keywords("Kubernetes pods, kubernetes deployments and the Kubernetes API", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "kubernetes", got[0])
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "and")
}

func TestKeywords_Han(t *testing.T) {
	got := Keywords("机器学习 and 机器人", 10)
	assert.Contains(t, got, "机器")
	assert.Equal(t, "机器", got[0])
}

func TestRelevance(t *testing.T) {
	assert.Equal(t, 0, Relevance("anything", nil))
	assert.Equal(t, 100, Relevance("golang channels", []string{"golang", "channels"}))
	assert.Equal(t, 0, Relevance("weather today", []string{"golang"}))
}

func TestSelect_ShortConversationUnchanged(t *testing.T) {
	m := msgs("a1", "b2", "c3")
	assert.Equal(t, m, Select(m, Options{WindowSize: 10, SmartSelection: true}))
}

func TestSelect_LastN(t *testing.T) {
	var contents []string
	for i := 0; i < 20; i++ {
		contents = append(contents, fmt.Sprintf("message %d", i))
	}
	m := msgs(contents...)

	got := Select(m, Options{WindowSize: 4})
	require.Len(t, got, 4)
	assert.Equal(t, "message 16", got[0].Content)
	assert.Equal(t, "message 19", got[3].Content)
}

func TestSelect_Smart(t *testing.T) {
	m := msgs(
		"postgres index tuning",  // relevant
		"lunch plans tomorrow",   // irrelevant
		"weather forecast rainy", // irrelevant
		"postgres vacuum settings",
		"postgres index bloat",
		"postgres query planner",
	)

	got := Select(m, Options{WindowSize: 4, SmartSelection: true})
	require.Len(t, got, 4)

	// last two always kept, in order
	assert.Equal(t, "postgres index bloat", got[2].Content)
	assert.Equal(t, "postgres query planner", got[3].Content)

	// older picks are the postgres ones, sorted by time
	assert.Equal(t, "postgres index tuning", got[0].Content)
	assert.Equal(t, "postgres vacuum settings", got[1].Content)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].CreatedAt.Before(got[i].CreatedAt))
	}
}

func TestSelect_KeywordFilteringDropsUnrelated(t *testing.T) {
	m := msgs("zebra", "giraffe", "postgres tuning", "postgres index")
	got := Select(m, Options{WindowSize: 2, SmartSelection: true, KeywordFiltering: true})

	for _, g := range got {
		assert.NotEqual(t, "zebra", g.Content)
	}
}

func TestSummarize(t *testing.T) {
	m := msgs("golang generics question", "golang generics answer", "more golang")
	s := Summarize(m, 200)

	assert.True(t, strings.HasPrefix(s, "Topics: golang"))
	assert.Contains(t, s, "User messages: 2")
	assert.Contains(t, s, "Assistant replies: 1")
	assert.Contains(t, s, "Range: 2025-03-01 to 2025-03-01")

	short := Summarize(m, 20)
	assert.Equal(t, 20, len([]rune(short)))
	assert.True(t, strings.HasSuffix(short, "..."))

	assert.Empty(t, Summarize(nil, 200))
}

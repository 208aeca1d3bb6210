// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/rigchat/internal/model"
)

func TestMessageIndicator(t *testing.T) {
	assert.Equal(t, "[ ]", MessageIndicator(model.StatusPending))
	assert.Equal(t, "[*]", MessageIndicator(model.StatusStreaming))
	assert.Equal(t, "[X]", MessageIndicator(model.StatusErrored))
	assert.Empty(t, MessageIndicator(model.StatusComplete))
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, Amber, StatusColor(model.StatusStreaming))
	assert.Equal(t, Rose, StatusColor(model.StatusErrored))
	assert.Equal(t, Emerald, StatusColor(model.StatusComplete))
}

func TestRenderMark(t *testing.T) {
	assert.True(t, strings.Contains(RenderMark(model.StatusErrored), MarkErrored))
	assert.Empty(t, RenderMark(model.StatusComplete))
}

func TestBubbleByRoleAndStatus(t *testing.T) {
	theme := NewTheme()
	user := theme.Bubble(model.RoleUser, model.StatusErrored)
	assert.Equal(t, UserBubbleFg, user.GetForeground())

	failed := theme.Bubble(model.RoleAssistant, model.StatusErrored)
	assert.Equal(t, ErrorBubbleFg, failed.GetForeground())

	ok := theme.Bubble(model.RoleAssistant, model.StatusComplete)
	assert.Equal(t, AssistantBubbleFg, ok.GetForeground())
}

func TestLayoutMode(t *testing.T) {
	tests := []struct {
		width     int
		mode      LayoutMode
		wantWidth int
	}{
		{40, LayoutNarrow, 36},
		{8, LayoutNarrow, 10},
		{80, LayoutMedium, 74},
		{110, LayoutWide, 100},
		{300, LayoutWide, 120},
	}
	theme := NewTheme()
	for _, tt := range tests {
		theme.SetSize(tt.width, 24)
		assert.Equal(t, tt.mode, theme.GetLayoutMode(), "width %d", tt.width)
		assert.Equal(t, tt.wantWidth, theme.ContentWidth(), "width %d", tt.width)
	}
}

func TestSpinners(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, SpinnerLine.FrameInterval())
	assert.Equal(t, time.Second, SpinnerKind(99).FrameInterval())

	s := NewSpinner(SpinnerDots, NewTheme())
	assert.Equal(t, spinnerFrames[SpinnerDots], s.Spinner.Frames)
	assert.Equal(t, SpinnerDots.FrameInterval(), s.Spinner.FPS)

	fallback := NewSpinner(SpinnerKind(99), NewTheme())
	assert.Equal(t, spinnerFrames[SpinnerLine], fallback.Spinner.Frames)
}

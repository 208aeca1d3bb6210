// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Purple - assistant messages and selections
var Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

// Cyan - brand color, prompts and commands
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// Emerald - success and healthy states
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - errors and failed replies
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - warnings and notices
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE COLORS
// =============================================================================

var Surface = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// =============================================================================
// TEXT COLORS
// =============================================================================

var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

var TextInverse = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#1E1E2E"}

// =============================================================================
// MESSAGE COLORS
// =============================================================================

var UserBubbleFg = lipgloss.AdaptiveColor{Light: "#1E40AF", Dark: "#E0F2FE"}
var UserBubbleBorder = lipgloss.AdaptiveColor{Light: "#3B82F6", Dark: "#3B82F6"}

var AssistantBubbleFg = lipgloss.AdaptiveColor{Light: "#5B4B8A", Dark: "#E9E4F5"}
var AssistantBubbleBorder = lipgloss.AdaptiveColor{Light: "#C4B5FD", Dark: "#A78BFA"}

var ErrorBubbleFg = lipgloss.AdaptiveColor{Light: "#991B1B", Dark: "#FECACA"}

// =============================================================================
// STATUS INDICATORS
// =============================================================================

// Message markers, shown beside the status color so states stay readable
// without color.
const (
	MarkPending   = "[ ]"
	MarkStreaming = "[*]"
	MarkErrored   = "[X]"
)

// MessageIndicator returns the marker for a message lifecycle status.
func MessageIndicator(s model.Status) string {
	switch s {
	case model.StatusPending:
		return MarkPending
	case model.StatusStreaming:
		return MarkStreaming
	case model.StatusErrored:
		return MarkErrored
	default:
		return ""
	}
}

// StatusColor returns the accent for a message lifecycle status.
func StatusColor(s model.Status) lipgloss.AdaptiveColor {
	switch s {
	case model.StatusPending, model.StatusStreaming:
		return Amber
	case model.StatusErrored:
		return Rose
	default:
		return Emerald
	}
}

// RenderMark returns the colored marker for s, or "" for complete messages.
func RenderMark(s model.Status) string {
	mark := MessageIndicator(s)
	if mark == "" {
		return ""
	}
	return lipgloss.NewStyle().Foreground(StatusColor(s)).Render(mark)
}

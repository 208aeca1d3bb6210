// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SpinnerKind names one of the activity indicators.
type SpinnerKind int

const (
	// SpinnerLine rotates a bar. It marks a reply that has not started.
	SpinnerLine SpinnerKind = iota
	// SpinnerDots walks three dots across.
	SpinnerDots
)

var spinnerFrames = map[SpinnerKind][]string{
	SpinnerLine: {"|", "/", "-", "\\"},
	SpinnerDots: {".  ", ".. ", "...", " ..", "  .", "   "},
}

var spinnerRate = map[SpinnerKind]int{
	SpinnerLine: 10,
	SpinnerDots: 6,
}

// FrameInterval is how long each frame of kind stays on screen. Unknown
// kinds tick once a second.
func (k SpinnerKind) FrameInterval() time.Duration {
	fps := spinnerRate[k]
	if fps <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(fps)
}

// NewSpinner returns a bubbles spinner model animating kind in style.
func NewSpinner(kind SpinnerKind, theme *Theme) spinner.Model {
	frames, ok := spinnerFrames[kind]
	if !ok {
		frames = spinnerFrames[SpinnerLine]
	}
	return spinner.New(
		spinner.WithSpinner(spinner.Spinner{Frames: frames, FPS: kind.FrameInterval()}),
		spinner.WithStyle(theme.Spinner),
	)
}

// TypingCursor is appended to a reply while it streams.
const TypingCursor = "_"

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL
// =============================================================================

// RequiresTTY fails with a TTYRequiredError when stdin is not a terminal.
// The line and full-screen chats need one; piping a transcript in does not
// work.
func RequiresTTY(mode string) error {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return &TTYRequiredError{Mode: mode}
}

// TTYRequiredError names the chat mode that could not start.
type TTYRequiredError struct {
	Mode string
}

func (e *TTYRequiredError) Error() string {
	return "rigchat " + e.Mode + " needs an interactive terminal (stdin is not a TTY)"
}

// terminalWidth is the width of stdout clamped to [40, 120], or 70 when
// stdout is not a terminal.
func terminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || w <= 0:
		return 70
	case w < 40:
		return 40
	case w > 120:
		return 120
	}
	return w
}

// =============================================================================
// COLOR
// =============================================================================

// ColorsEnabled follows https://no-color.org/: NO_COLOR beats FORCE_COLOR,
// and without either colors are on only when stdout is a terminal.
var ColorsEnabled = sync.OnceValue(func() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
})

// colorProfile is the termenv profile line output renders with.
func colorProfile() termenv.Profile {
	if ColorsEnabled() {
		return termenv.ColorProfile()
	}
	return termenv.Ascii
}

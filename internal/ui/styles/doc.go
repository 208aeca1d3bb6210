// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors, theme and animations of the rigchat TUI.

All colors are Lip Gloss AdaptiveColors, so they follow the terminal's light
or dark background.

# Colors (colors.go)

  - Purple - assistant messages and selections
  - Cyan - brand, prompts and commands
  - Emerald - success and healthy states
  - Amber - pending replies and warnings
  - Rose - errors

Every message status color has an ASCII marker, so message states stay
readable without color:

	styles.MessageIndicator(model.StatusErrored) // "[X]"

# Theme (theme.go)

Theme groups the styles of the chat screen. Bubble and Label pick the
message styles for a role and status. Call SetSize on every window
resize; ContentWidth then gives the wrap width for message bodies.

# Animations (animations.go)

NewSpinner builds a bubbles spinner for a SpinnerKind, styled by the theme.
*/
package styles

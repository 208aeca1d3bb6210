// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/rigchat/internal/model"
)

// markdownRenderer renders finished assistant replies with glamour. Output is
// cached per message until its content or the wrap width changes.
type markdownRenderer struct {
	style string
	width int
	tr    *glamour.TermRenderer
	cache map[model.MessageID]renderedMessage
}

type renderedMessage struct {
	content string
	out     string
}

func newMarkdownRenderer(profile termenv.Profile, dark bool) *markdownRenderer {
	style := "dark"
	switch {
	case profile == termenv.Ascii:
		style = "notty"
	case !dark:
		style = "light"
	}
	return &markdownRenderer{
		style: style,
		cache: make(map[model.MessageID]renderedMessage),
	}
}

func (r *markdownRenderer) setWidth(width int) {
	if width == r.width {
		return
	}
	r.width = width
	r.tr = nil
	clear(r.cache)
}

func (r *markdownRenderer) render(id model.MessageID, content string) string {
	if c, ok := r.cache[id]; ok && c.content == content {
		return c.out
	}
	out := r.renderMarkdown(content)
	r.cache[id] = renderedMessage{content: content, out: out}
	return out
}

func (r *markdownRenderer) renderMarkdown(content string) string {
	if r.tr == nil {
		tr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			return wrapPlain(content, r.width)
		}
		r.tr = tr
	}
	out, err := r.tr.Render(content)
	if err != nil {
		return wrapPlain(content, r.width)
	}
	return strings.Trim(out, "\n")
}

// wrapPlain wraps text without markdown, for replies still streaming in.
func wrapPlain(text string, width int) string {
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

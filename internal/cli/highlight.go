// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
)

const fence = "```"

// =============================================================================
// CODE BLOCK HIGHLIGHTING
// =============================================================================

// highlightBlocks syntax-highlights fenced code blocks in a reply. Text
// outside fences and unterminated blocks are returned unchanged.
func highlightBlocks(text string) string {
	if !strings.Contains(text, fence) {
		return text
	}

	var out strings.Builder
	rest := text
	for {
		start := strings.Index(rest, fence)
		if start < 0 {
			break
		}
		header := rest[start+len(fence):]
		nl := strings.IndexByte(header, '\n')
		if nl < 0 {
			break
		}
		body := header[nl+1:]
		end := strings.Index(body, fence)
		if end < 0 {
			break
		}

		language := strings.TrimSpace(header[:nl])
		out.WriteString(rest[:start+len(fence)+nl+1])
		out.WriteString(highlightCode(body[:end], language))
		out.WriteString(fence)
		rest = body[end+len(fence):]
	}
	out.WriteString(rest)
	return out.String()
}

// highlightCode renders code with ANSI colors. Unknown languages are
// guessed from the content.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

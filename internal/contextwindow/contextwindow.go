// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package contextwindow picks which prior messages accompany a prompt and
// produces a short textual summary of a conversation.
package contextwindow

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options mirror the context part of the effective settings.
type Options struct {
	WindowSize       int
	SmartSelection   bool
	KeywordFiltering bool
	MaxSummaryLength int
}

const (
	maxKeywordsPerMessage = 10
	summaryKeywords       = 5
	minWordRunes          = 2
)

var stopWords = map[string]bool{
	// English
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "her": true, "was": true, "one": true,
	"our": true, "out": true, "has": true, "have": true, "had": true, "this": true,
	"that": true, "with": true, "from": true, "they": true, "will": true, "would": true,
	"there": true, "their": true, "what": true, "about": true, "which": true, "when": true,
	"your": true, "how": true, "its": true, "into": true, "than": true, "then": true,
	"them": true, "these": true, "some": true, "could": true, "been": true, "were": true,
	"is": true, "it": true, "to": true, "of": true, "in": true, "on": true, "an": true,
	"be": true, "as": true, "at": true, "by": true, "or": true, "if": true, "so": true,
	"do": true, "me": true, "my": true, "we": true, "he": true, "she": true, "no": true,
	// Chinese
	"的": true, "了": true, "在": true, "是": true, "我": true, "有": true, "和": true,
	"就": true, "不": true, "人": true, "都": true, "一": true, "一个": true, "上": true,
	"也": true, "很": true, "到": true, "说": true, "要": true, "去": true, "你": true,
	"会": true, "着": true, "没有": true, "看": true, "好": true, "自己": true, "这": true,
}

// =============================================================================
// KEYWORDS
// =============================================================================

// Keywords returns up to max of the most frequent keywords in text, most
// frequent first. Latin words are case folded. Han runs have no spaces, so
// they are split into overlapping bigrams.
func Keywords(text string, max int) []string {
	fold := cases.Fold()
	counts := map[string]int{}
	var order []string
	add := func(w string) {
		if len([]rune(w)) < minWordRunes || stopWords[w] {
			return
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		for _, seg := range splitScript(word) {
			if isHan(seg[0]) {
				for i := 0; i+1 < len(seg); i++ {
					add(string(seg[i : i+2]))
				}
				continue
			}
			add(fold.String(string(seg)))
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if max > 0 && len(order) > max {
		order = order[:max]
	}
	return order
}

// splitScript cuts a word wherever it switches between Han and other runes.
func splitScript(word string) [][]rune {
	var segs [][]rune
	var cur []rune
	for _, r := range word {
		if len(cur) > 0 && isHan(cur[0]) != isHan(r) {
			segs = append(segs, cur)
			cur = nil
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		segs = append(segs, cur)
	}
	return segs
}

func isHan(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

// Relevance scores text against a keyword set from 0 to 100 by overlap
// over union of keywords.
func Relevance(text string, context []string) int {
	if len(context) == 0 {
		return 0
	}
	mine := toSet(Keywords(text, maxKeywordsPerMessage))
	theirs := toSet(context)

	overlap := 0
	union := len(theirs)
	for w := range mine {
		if theirs[w] {
			overlap++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return overlap * 100 / union
}

func toSet(words []string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}

// =============================================================================
// SELECTION
// =============================================================================

// Select returns the messages to send as context, in their original order.
//
// Without smart selection it keeps the last WindowSize messages. With it,
// the most recent half of the window is always kept and the other half is
// filled with the older messages that share the most keywords with the
// recent half. With KeywordFiltering, older messages scoring zero are
// never picked.
func Select(messages []model.Message, opts Options) []model.Message {
	window := opts.WindowSize
	if window <= 0 || len(messages) <= window {
		return messages
	}
	if !opts.SmartSelection {
		return messages[len(messages)-window:]
	}

	half := window / 2
	if half == 0 {
		half = 1
	}
	recentStart := len(messages) - half
	older := messages[:recentStart]

	var recent []string
	for _, m := range messages[recentStart:] {
		recent = append(recent, Keywords(m.Content, maxKeywordsPerMessage)...)
	}

	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, 0, len(older))
	for i, m := range older {
		s := Relevance(m.Content, recent)
		if opts.KeywordFiltering && s == 0 {
			continue
		}
		ranked = append(ranked, scored{idx: i, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	pick := window - half
	if pick > len(ranked) {
		pick = len(ranked)
	}
	chosen := make([]int, 0, pick)
	for _, r := range ranked[:pick] {
		chosen = append(chosen, r.idx)
	}
	sort.Ints(chosen)

	out := make([]model.Message, 0, len(chosen)+half)
	for _, i := range chosen {
		out = append(out, older[i])
	}
	return append(out, messages[recentStart:]...)
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summarize describes messages in one line: main topics, message counts per
// role and the date range. The result is cut to maxLen runes with "...".
func Summarize(messages []model.Message, maxLen int) string {
	if len(messages) == 0 {
		return ""
	}

	var text strings.Builder
	users, assistants := 0, 0
	for _, m := range messages {
		text.WriteString(m.Content)
		text.WriteByte('\n')
		switch m.Role {
		case model.RoleUser:
			users++
		case model.RoleAssistant:
			assistants++
		}
	}

	var parts []string
	if topics := Keywords(text.String(), summaryKeywords); len(topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(topics, ", "))
	}
	parts = append(parts,
		fmt.Sprintf("User messages: %d", users),
		fmt.Sprintf("Assistant replies: %d", assistants),
	)

	first, last := messages[0].CreatedAt, messages[len(messages)-1].CreatedAt
	if !first.IsZero() && !last.IsZero() {
		parts = append(parts, fmt.Sprintf("Range: %s to %s", first.Format("2006-01-02"), last.Format("2006-01-02")))
	}

	summary := strings.Join(parts, " | ")
	if maxLen > 3 && len([]rune(summary)) > maxLen {
		summary = string([]rune(summary)[:maxLen-3]) + "..."
	}
	return summary
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/settings"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// Dynamic sources. Nil means no suggestions of that kind.
	ModelsFn func() []string
	ChatsFn  func() []ChatInfo
}

// NewCompleter creates a completer whose dynamic sources read env's caches.
func NewCompleter(env *Env) *Completer {
	return &Completer{
		registry: env.Registry,
		ModelsFn: env.ModelNames,
		ChatsFn:  env.ChatRefs,
	}
}

// Complete returns completions for input, which is assumed to end at the
// cursor.
func (c *Completer) Complete(input string) []Completion {
	if !IsCommand(input) {
		return nil
	}
	input = strings.TrimLeft(input, " \t")
	trailingSpace := strings.HasSuffix(input, " ")

	parts := splitCommandLine(input)
	if len(parts) == 0 {
		return c.completeCommands("")
	}
	if len(parts) == 1 && !trailingSpace {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}

	argIndex := len(parts) - 2
	partial := parts[len(parts)-1]
	if trailingSpace {
		argIndex++
		partial = ""
	}
	return c.completeArg(cmd, argIndex, partial)
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(alias, partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Display:     alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}
	if len(completions) == 0 && len(partial) > 1 {
		completions = c.fuzzyCommands(partial)
	}

	sortCompletions(completions)
	return completions
}

// fuzzyCommands matches partial as a subsequence of command names, so that
// "/mdl" still finds "/model".
func (c *Completer) fuzzyCommands(partial string) []Completion {
	var cmds []*Command
	var names []string
	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		cmds = append(cmds, cmd)
		names = append(names, cmd.Name)
	}

	var completions []Completion
	for _, match := range fuzzy.Find(partial, names) {
		cmd := cmds[match.Index]
		completions = append(completions, Completion{
			Value:       cmd.Name,
			Display:     cmd.Name,
			Description: cmd.Description,
			Score:       match.Score,
		})
	}
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial)
	case ArgTypeSetting:
		return completeFromList(settings.Keys(), partial)
	case ArgTypeModel:
		if c.ModelsFn == nil {
			return nil
		}
		return completeFromList(c.ModelsFn(), partial)
	case ArgTypeChat:
		return c.completeChats(partial)
	case ArgTypeString:
		if cmd.Name == "/help" {
			return c.completeCommands(partial)
		}
	}
	return nil
}

// completeChats matches chat refs by prefix and titles by substring.
func (c *Completer) completeChats(partial string) []Completion {
	if c.ChatsFn == nil {
		return nil
	}

	var completions []Completion
	lower := strings.ToLower(partial)

	for _, chat := range c.ChatsFn() {
		refMatch := strings.HasPrefix(strings.ToLower(chat.Ref), lower)
		titleMatch := strings.Contains(strings.ToLower(chat.Title), lower)
		if !refMatch && !titleMatch {
			continue
		}

		score := calculateScore(chat.Ref, lower)
		if !refMatch {
			score -= 5
		}
		display := chat.Ref
		if chat.Title != "" {
			display += " - " + model.Truncate(chat.Title, 30)
		}
		completions = append(completions, Completion{
			Value:   chat.Ref,
			Display: display,
			Score:   score,
		})
	}

	sortCompletions(completions)
	return completions
}

func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, value := range values {
		if strings.HasPrefix(strings.ToLower(value), partial) {
			completions = append(completions, Completion{
				Value:   value,
				Display: value,
				Score:   calculateScore(value, partial),
			})
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// RANKING
// =============================================================================

// calculateScore ranks value against what was typed. An exact match wins,
// then prefix matches with shorter values first.
func calculateScore(value, partial string) int {
	value, partial = strings.ToLower(value), strings.ToLower(partial)
	switch {
	case value == partial:
		return 200
	case strings.HasPrefix(value, partial):
		return 170 - len(value) - len(value)/2
	default:
		return 100 - len(value)/2
	}
}

// sortCompletions orders by score, best first, then by value.
func sortCompletions(completions []Completion) {
	slices.SortFunc(completions, func(a, b Completion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
}

// =============================================================================
// COMPLETION NAVIGATION
// =============================================================================

// CompletionState holds the state for cycling through completions.
type CompletionState struct {
	Completions []Completion
	Selected    int
	Visible     bool
}

// Update replaces the completions and selects the first.
func (cs *CompletionState) Update(completions []Completion) {
	cs.Completions = completions
	cs.Selected = 0
	cs.Visible = len(completions) > 0
}

// Next moves to the next completion.
func (cs *CompletionState) Next() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected = (cs.Selected + 1) % len(cs.Completions)
}

// Prev moves to the previous completion.
func (cs *CompletionState) Prev() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected--
	if cs.Selected < 0 {
		cs.Selected = len(cs.Completions) - 1
	}
}

// Accept returns the selected completion value, or empty if none.
func (cs *CompletionState) Accept() string {
	if cs.Selected < 0 || cs.Selected >= len(cs.Completions) {
		return ""
	}
	return cs.Completions[cs.Selected].Value
}

// Clear hides and forgets the completions.
func (cs *CompletionState) Clear() {
	cs.Completions = nil
	cs.Selected = 0
	cs.Visible = false
}

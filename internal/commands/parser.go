// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/jeranaias/rigchat/internal/settings"
)

// =============================================================================
// INVOCATION
// =============================================================================

// Invocation is one parsed slash command line.
type Invocation struct {
	// Name is the command as typed, e.g. "/m" for an alias.
	Name    string
	Command *Command
	Args    []string
}

// Parse resolves input against the registry. Input that is not a slash
// command yields ErrNotCommand; a name nobody registered yields
// ErrUnknownCommand.
func (r *Registry) Parse(input string) (Invocation, error) {
	if !IsCommand(input) {
		return Invocation{}, ErrNotCommand
	}

	tokens := splitCommandLine(strings.TrimSpace(input))
	if len(tokens) == 0 {
		return Invocation{}, fmt.Errorf("%w: /", ErrUnknownCommand)
	}
	inv := Invocation{Name: tokens[0], Args: tokens[1:]}
	if inv.Command = r.Get(inv.Name); inv.Command == nil {
		return inv, fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Name)
	}
	return inv, nil
}

// IsCommand reports whether input is meant as a slash command rather than a
// chat message.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// ExtractCommandName returns the first word of a command line, e.g.
// "/model echo" -> "/model". Chat messages yield "".
func ExtractCommandName(input string) string {
	input = strings.TrimSpace(input)
	if !IsCommand(input) {
		return ""
	}
	name, _, _ := strings.Cut(input, " ")
	if i := strings.IndexFunc(name, unicode.IsSpace); i >= 0 {
		name = name[:i]
	}
	return name
}

// =============================================================================
// TOKENIZER
// =============================================================================

// splitCommandLine splits on unquoted whitespace. Single or double quotes
// group words, so chat titles and model names with spaces survive; inside
// quotes a backslash escapes a quote or another backslash. An empty quoted
// string is kept as an empty token.
func splitCommandLine(input string) []string {
	var (
		tokens  []string
		current strings.Builder
		quote   rune // open quote character, 0 outside quotes
		pending bool // a token has started, possibly empty
	)

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case quote != 0 && ch == '\\' && i+1 < len(runes) && strings.ContainsRune(`"'\`, runes[i+1]):
			i++
			current.WriteRune(runes[i])
		case quote != 0 && ch == quote:
			quote = 0
		case quote == 0 && (ch == '"' || ch == '\''):
			quote = ch
			pending = true
		case quote == 0 && unicode.IsSpace(ch):
			if pending {
				tokens = append(tokens, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(ch)
			pending = true
		}
	}
	if pending {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateArgs checks args against cmd's definitions: required arguments are
// present, enum values are known (case-insensitively) and setting keys are
// ones /set understands.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}

	for i, def := range cmd.Args {
		if i >= len(args) {
			if def.Required {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "required argument missing",
					Expected: def.Description,
				}
			}
			continue
		}

		value := strings.ToLower(args[i])
		switch def.Type {
		case ArgTypeEnum:
			if len(def.Values) > 0 && !slices.Contains(def.Values, value) {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "invalid value",
					Got:      args[i],
					Expected: strings.Join(def.Values, ", "),
				}
			}
		case ArgTypeSetting:
			if !slices.Contains(settings.Keys(), value) {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      def.Name,
					Message:  "unknown setting",
					Got:      args[i],
					Expected: "one of /settings",
				}
			}
		}
	}
	return nil
}

// ValidationError reports a command invoked with bad arguments.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Command + ": " + e.Message)
	if e.Arg != "" {
		fmt.Fprintf(&sb, " for %s", e.Arg)
	}
	if e.Got != "" {
		fmt.Fprintf(&sb, " (got %q)", e.Got)
	}
	if e.Expected != "" {
		sb.WriteString("; expected " + e.Expected)
	}
	return sb.String()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/atotto/clipboard"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/settings"
	"github.com/jeranaias/rigchat/internal/util"
)

// chatsPageSize is how many chats /chats shows per page.
const chatsPageSize = 20

// healthTimeout bounds the backend probe in /status.
const healthTimeout = 2 * time.Second

// errDraftChat is returned by commands that need a saved chat.
var errDraftChat = errors.New("the current chat has not been saved yet")

// errNothingToCopy is returned by /copy before any reply has finished.
var errNothingToCopy = errors.New("no finished reply to copy")

// clipboardWrite is swapped out in tests.
var clipboardWrite = clipboard.WriteAll

// contextKeys are the settings stored with a chat rather than kept for the
// session only.
var contextKeys = map[string]bool{
	"enable_context":     true,
	"window_size":        true,
	"enable_summary":     true,
	"smart_selection":    true,
	"keyword_filtering":  true,
	"max_summary_length": true,
}

// =============================================================================
// NAVIGATION
// =============================================================================

func handleHelp(ctx context.Context, env *Env, args []string) (Result, error) {
	if len(args) > 0 {
		name := args[0]
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		cmd := env.Registry.Get(name)
		if cmd == nil {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
		}
		return Result{Output: commandHelp(cmd)}, nil
	}
	return Result{Output: GenerateHelpText(env.Registry)}, nil
}

// GenerateHelpText lists every visible command by category.
func GenerateHelpText(r *Registry) string {
	var sb strings.Builder

	sb.WriteString("Available Commands\n")
	sb.WriteString("==================\n\n")

	categories := r.ByCategory()
	for _, category := range []string{"Conversation", "Model", "Settings", "Navigation"} {
		cmds := categories[category]
		if len(cmds) == 0 {
			continue
		}

		sb.WriteString(category + "\n")
		sb.WriteString(strings.Repeat("-", len(category)) + "\n")
		for _, cmd := range cmds {
			line := "  " + cmd.Name
			if len(cmd.Aliases) > 0 {
				line += " (" + strings.Join(cmd.Aliases, ", ") + ")"
			}
			fmt.Fprintf(&sb, "%-30s%s\n", line, cmd.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Anything not starting with / is sent as a message.\n")
	return sb.String()
}

func commandHelp(cmd *Command) string {
	var sb strings.Builder
	sb.WriteString(cmd.Name + ": " + cmd.Description + "\n")
	usage := cmd.Usage
	if usage == "" {
		usage = cmd.Name
	}
	sb.WriteString("  Usage: " + usage + "\n")
	if len(cmd.Aliases) > 0 {
		sb.WriteString("  Aliases: " + strings.Join(cmd.Aliases, ", ") + "\n")
	}
	for _, arg := range cmd.Args {
		req := "optional"
		if arg.Required {
			req = "required"
		}
		desc := arg.Description
		if len(arg.Values) > 0 {
			desc = strings.Join(arg.Values, "|")
		}
		fmt.Fprintf(&sb, "  %-10s %-9s %s\n", arg.Name, req, desc)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func handleQuit(ctx context.Context, env *Env, args []string) (Result, error) {
	env.Controller.Cancel()
	return Result{Quit: true}, nil
}

func handleStatus(ctx context.Context, env *Env, args []string) (Result, error) {
	var sb strings.Builder

	sess := env.Controller.Session()
	title := sess.Title
	if sess.IsDraft() {
		title = "(new chat)"
	}
	fmt.Fprintf(&sb, "Chat:     %s\n", title)
	if !sess.IsDraft() {
		fmt.Fprintf(&sb, "Chat ID:  %s\n", sess.ID)
		if sess.URL != "" {
			fmt.Fprintf(&sb, "Chat URL: %s\n", sess.URL)
		}
	}
	fmt.Fprintf(&sb, "Messages: %d\n", env.Controller.Timeline().Len())
	fmt.Fprintf(&sb, "State:    %s\n", env.Controller.State())

	if m := env.Controller.Model(); m != nil {
		fmt.Fprintf(&sb, "Model:    %s (%s)\n", m.Name, m.ModelName)
	} else {
		sb.WriteString("Model:    none selected\n")
	}

	switch {
	case env.Backend == nil:
		sb.WriteString("Backend:  not configured")
	default:
		probe, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()
		h, err := env.Backend.Health(probe)
		if err != nil {
			fmt.Fprintf(&sb, "Backend:  unreachable (%v)", err)
		} else {
			fmt.Fprintf(&sb, "Backend:  %s (%s)", h.Status, h.Service)
		}
	}

	return Result{Output: sb.String()}, nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

func handleNew(ctx context.Context, env *Env, args []string) (Result, error) {
	env.Controller.NewChat()
	return Result{Output: "Started a new chat.", SessionChanged: true}, nil
}

func handleChats(ctx context.Context, env *Env, args []string) (Result, error) {
	if env.Backend == nil {
		return Result{}, ErrOffline
	}

	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return Result{}, &ValidationError{Command: "/chats", Arg: "page", Message: "invalid value", Got: args[0], Expected: "a number from 1"}
		}
		page = n
	}

	list, err := env.Backend.ListChats(ctx, (page-1)*chatsPageSize, chatsPageSize)
	if err != nil {
		return Result{}, err
	}
	env.rememberChats(list.Chats)

	if len(list.Chats) == 0 {
		if page > 1 {
			return Result{Output: fmt.Sprintf("No chats on page %d.", page)}, nil
		}
		return Result{Output: "No saved chats."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Chats (page %d, %d total):\n", page, list.Total)
	active := env.Controller.Session().ID
	for _, c := range list.Chats {
		marker := " "
		if strconv.FormatInt(c.ID, 10) == active {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %-6d %s %s\n", marker, c.ID, util.PadRight(util.SingleLine(c.Title), 40), c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	if shown := (page-1)*chatsPageSize + len(list.Chats); shown < list.Total {
		fmt.Fprintf(&sb, "Use /chats %d for more.", page+1)
	}
	return Result{Output: strings.TrimRight(sb.String(), "\n")}, nil
}

func handleOpen(ctx context.Context, env *Env, args []string) (Result, error) {
	if env.Backend == nil {
		return Result{}, ErrOffline
	}

	sess, messages, err := env.Backend.OpenChat(ctx, args[0])
	if err != nil {
		return Result{}, err
	}
	env.Controller.SwitchSession(sess, messages)

	// Follow the chat's model when it is still usable.
	if current := env.Controller.Model(); sess.ModelID != "" && (current == nil || current.ID != sess.ModelID) {
		if models, err := env.LoadModels(ctx); err == nil {
			if rec := findModel(models, sess.ModelID); rec != nil {
				env.Controller.SelectModel(rec.Capability())
			}
		}
	}

	return Result{
		Output:         fmt.Sprintf("Opened %q (%d messages).", sess.Title, len(messages)),
		SessionChanged: true,
	}, nil
}

func handleDelete(ctx context.Context, env *Env, args []string) (Result, error) {
	sess := env.Controller.Session()
	if sess.IsDraft() {
		env.Controller.NewChat()
		return Result{Output: "Discarded the unsaved chat.", SessionChanged: true}, nil
	}
	if err := env.Controller.DeleteActive(ctx); err != nil {
		return Result{}, fmt.Errorf("delete chat %s: %w", sess.ID, err)
	}
	return Result{Output: fmt.Sprintf("Deleted %q.", sess.Title), SessionChanged: true}, nil
}

func handleCancel(ctx context.Context, env *Env, args []string) (Result, error) {
	if env.Controller.Cancel() {
		return Result{Output: "Cancelled."}, nil
	}
	return Result{Output: "Nothing to cancel."}, nil
}

func handleCopy(ctx context.Context, env *Env, args []string) (Result, error) {
	snap := env.Controller.Timeline().Snapshot()
	for i := snap.Len() - 1; i >= 0; i-- {
		m := snap.At(i)
		if m.Role != model.RoleAssistant || m.Status != model.StatusComplete || m.Content == "" {
			continue
		}
		if err := clipboardWrite(m.Content); err != nil {
			return Result{}, fmt.Errorf("copy to clipboard: %w", err)
		}
		return Result{Output: fmt.Sprintf("Copied the last reply (%d characters).", utf8.RuneCountInString(m.Content))}, nil
	}
	return Result{}, errNothingToCopy
}

func handleSummary(ctx context.Context, env *Env, args []string) (Result, error) {
	if env.Backend == nil {
		return Result{}, ErrOffline
	}
	sess := env.Controller.Session()
	if sess.IsDraft() {
		return Result{}, errDraftChat
	}

	resp, err := env.Backend.ContextSummary(ctx, sess.ID)
	if err != nil {
		return Result{}, err
	}
	if !resp.Success {
		return Result{Output: resp.Message}, nil
	}
	return Result{Output: "Summary: " + resp.Summary}, nil
}

// =============================================================================
// MODEL
// =============================================================================

func handleModels(ctx context.Context, env *Env, args []string) (Result, error) {
	models, err := env.LoadModels(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(models) == 0 {
		return Result{Output: "No models configured."}, nil
	}

	current := ""
	if m := env.Controller.Model(); m != nil {
		current = m.ID
	}

	sorted := append([]api.ModelRecord(nil), models...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var sb strings.Builder
	sb.WriteString("Models:\n")
	for _, m := range sorted {
		marker := " "
		if strconv.FormatInt(m.ID, 10) == current {
			marker = "*"
		}
		var flags []string
		if !m.IsActive {
			flags = append(flags, "inactive")
		}
		if m.EnableStreaming {
			flags = append(flags, "streaming")
		}
		if m.EnableContext {
			flags = append(flags, "context")
		}
		fmt.Fprintf(&sb, "%s %-4d %s %s %s\n", marker, m.ID, util.PadRight(m.Name, 20), util.PadRight(m.ModelName, 24), strings.Join(flags, ", "))
	}
	return Result{Output: strings.TrimRight(sb.String(), "\n")}, nil
}

func handleModel(ctx context.Context, env *Env, args []string) (Result, error) {
	if len(args) == 0 {
		m := env.Controller.Model()
		if m == nil {
			return Result{Output: "No model selected. Use /models to list them."}, nil
		}
		return Result{Output: fmt.Sprintf("Model: %s (%s), streaming %s, context %s",
			m.Name, m.ModelName, onOffString(m.EnableStreaming), onOffString(m.EnableContext))}, nil
	}

	models, err := env.LoadModels(ctx)
	if err != nil {
		return Result{}, err
	}
	rec := findModel(models, args[0])
	if rec == nil {
		return Result{}, fmt.Errorf("model %q not found or inactive", args[0])
	}
	env.Controller.SelectModel(rec.Capability())
	return Result{Output: fmt.Sprintf("Switched to %s (%s).", rec.Name, rec.ModelName)}, nil
}

// findModel returns the active model whose id or name matches ref.
func findModel(models []api.ModelRecord, ref string) *api.ModelRecord {
	for i, m := range models {
		if !m.IsActive {
			continue
		}
		if strconv.FormatInt(m.ID, 10) == ref || strings.EqualFold(m.Name, ref) {
			return &models[i]
		}
	}
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func handleSettings(ctx context.Context, env *Env, args []string) (Result, error) {
	return Result{Output: FormatSettings(env.Controller.Effective())}, nil
}

// FormatSettings renders effective settings one per line, keyed the way /set
// accepts them.
func FormatSettings(e settings.EffectiveSettings) string {
	rows := []struct {
		key, value string
	}{
		{"streaming", onOffString(e.StreamingEnabled)},
		{"enable_context", onOffString(e.ContextEnabled)},
		{"window_size", strconv.Itoa(e.WindowSize)},
		{"enable_summary", onOffString(e.EnableSummary)},
		{"smart_selection", onOffString(e.SmartSelection)},
		{"keyword_filtering", onOffString(e.KeywordFiltering)},
		{"max_summary_length", strconv.Itoa(e.MaxSummaryLength)},
		{"temperature", strconv.FormatFloat(e.Temperature, 'g', -1, 64)},
		{"max_tokens", strconv.Itoa(e.MaxTokens)},
		{"top_p", strconv.FormatFloat(e.TopP, 'g', -1, 64)},
		{"frequency_penalty", strconv.FormatFloat(e.FrequencyPenalty, 'g', -1, 64)},
		{"presence_penalty", strconv.FormatFloat(e.PresencePenalty, 'g', -1, 64)},
		{"timeout", strconv.Itoa(e.TimeoutSeconds) + "s"},
	}

	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-20s %s\n", r.key, r.value)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func handleSet(ctx context.Context, env *Env, args []string) (Result, error) {
	key := strings.ToLower(args[0])
	value := strings.Join(args[1:], " ")
	return applySetting(ctx, env, key, value)
}

func featureHandler(key string) Handler {
	return func(ctx context.Context, env *Env, args []string) (Result, error) {
		return applySetting(ctx, env, key, args[0])
	}
}

// applySetting changes one setting and, for context settings, stores the
// result on the chat.
func applySetting(ctx context.Context, env *Env, key, value string) (Result, error) {
	applied, err := env.Controller.Set(key, value)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		return Result{Output: fmt.Sprintf("%s cannot be changed with the current model or context settings.", key)}, nil
	}

	if contextKeys[key] {
		if err := env.Controller.PersistContextSettings(ctx); err != nil {
			return Result{}, fmt.Errorf("save context settings: %w", err)
		}
	}
	return Result{Output: fmt.Sprintf("%s set to %s.", key, value)}, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func onOffString(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

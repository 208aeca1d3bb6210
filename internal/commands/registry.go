// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Handler executes a command. args excludes the command name.
type Handler func(ctx context.Context, env *Env, args []string) (Result, error)

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/open <chat>")
	Usage string

	Args []ArgDef

	Handler Handler

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeEnum                   // One of Values
	ArgTypeModel                  // Model id or name
	ArgTypeChat                   // Chat id or URL
	ArgTypeSetting                // Setting key
)

// Result is what a command hands back to the front end.
type Result struct {
	// Output is text to show the user. May be empty.
	Output string

	// Quit asks the front end to exit.
	Quit bool

	// SessionChanged is set when the active chat was replaced and any
	// rendered transcript is stale.
	SessionChanged bool
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotCommand is returned by Execute for input without a leading slash.
	ErrNotCommand = errors.New("not a command")

	// ErrUnknownCommand is returned for a slash command nobody registered.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrOffline is returned by commands that need the backend when none
	// is configured.
	ErrOffline = errors.New("no backend configured")
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Backend is the part of the chat backend the commands use.
type Backend interface {
	ListChats(ctx context.Context, skip, limit int) (*api.ChatList, error)
	OpenChat(ctx context.Context, ref string) (*model.ChatSession, []model.Message, error)
	ListModels(ctx context.Context) (*api.ModelList, error)
	ContextSummary(ctx context.Context, id string) (*api.ContextSummaryResponse, error)
	Health(ctx context.Context) (*api.Health, error)
}

// Env is the state commands operate on. It is shared by the REPL and the TUI.
type Env struct {
	Controller *conversation.Controller

	// Backend may be nil; commands that need it then fail with ErrOffline.
	Backend Backend

	Registry *Registry

	mu     sync.Mutex
	models []api.ModelRecord
	chats  []api.ChatRecord
}

// NewEnv returns an Env with a registry of the built-in commands.
func NewEnv(controller *conversation.Controller, backend Backend) *Env {
	return &Env{
		Controller: controller,
		Backend:    backend,
		Registry:   NewRegistry(),
	}
}

// ModelNames returns the names of the active models seen by the last model
// listing. Used for completion.
func (e *Env) ModelNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for _, m := range e.models {
		if m.IsActive {
			names = append(names, m.Name)
		}
	}
	return names
}

// ChatRefs returns the chats seen by the last chat listing.
func (e *Env) ChatRefs() []ChatInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ChatInfo, 0, len(e.chats))
	for _, c := range e.chats {
		out = append(out, ChatInfo{Ref: fmt.Sprint(c.ID), Title: c.Title})
	}
	return out
}

func (e *Env) rememberModels(models []api.ModelRecord) {
	e.mu.Lock()
	e.models = append([]api.ModelRecord(nil), models...)
	e.mu.Unlock()
}

func (e *Env) rememberChats(chats []api.ChatRecord) {
	e.mu.Lock()
	e.chats = append([]api.ChatRecord(nil), chats...)
	e.mu.Unlock()
}

// LoadModels fetches the model list and caches it for completion.
func (e *Env) LoadModels(ctx context.Context) ([]api.ModelRecord, error) {
	if e.Backend == nil {
		return nil, ErrOffline
	}
	list, err := e.Backend.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	e.rememberModels(list.Models)
	return list.Models, nil
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	registerBuiltins(r)
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias. Lookup is case-insensitive.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Execute parses input and runs the command it names.
func (r *Registry) Execute(ctx context.Context, env *Env, input string) (Result, error) {
	inv, err := r.Parse(input)
	if err != nil {
		return Result{}, err
	}
	if err := ValidateArgs(inv.Command, inv.Args); err != nil {
		return Result{}, err
	}
	return inv.Command.Handler(ctx, env, inv.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

var onOff = []string{"on", "off"}

func registerBuiltins(r *Registry) {
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show help and available commands",
		Usage:       "/help [command]",
		Args:        []ArgDef{{Name: "command", Type: ArgTypeString, Description: "Command to describe"}},
		Category:    "Navigation",
		Handler:     handleHelp,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit rigchat",
		Category:    "Navigation",
		Handler:     handleQuit,
	})
	r.Register(&Command{
		Name:        "/status",
		Description: "Show chat, model and backend status",
		Category:    "Navigation",
		Handler:     handleStatus,
	})

	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/n"},
		Description: "Start a new chat",
		Category:    "Conversation",
		Handler:     handleNew,
	})
	r.Register(&Command{
		Name:        "/chats",
		Aliases:     []string{"/list"},
		Description: "List saved chats",
		Usage:       "/chats [page]",
		Args:        []ArgDef{{Name: "page", Type: ArgTypeString, Description: "Page number, starting at 1"}},
		Category:    "Conversation",
		Handler:     handleChats,
	})
	r.Register(&Command{
		Name:        "/open",
		Aliases:     []string{"/o", "/load"},
		Description: "Open a saved chat",
		Usage:       "/open <chat>",
		Args:        []ArgDef{{Name: "chat", Required: true, Type: ArgTypeChat, Description: "Chat id or URL"}},
		Category:    "Conversation",
		Handler:     handleOpen,
	})
	r.Register(&Command{
		Name:        "/delete",
		Description: "Delete the current chat",
		Category:    "Conversation",
		Handler:     handleDelete,
	})
	r.Register(&Command{
		Name:        "/cancel",
		Aliases:     []string{"/stop"},
		Description: "Stop the reply in progress",
		Category:    "Conversation",
		Handler:     handleCancel,
	})
	r.Register(&Command{
		Name:        "/summary",
		Description: "Generate a context summary for the current chat",
		Category:    "Conversation",
		Handler:     handleSummary,
	})
	r.Register(&Command{
		Name:        "/copy",
		Description: "Copy the last reply to the clipboard",
		Category:    "Conversation",
		Handler:     handleCopy,
	})

	r.Register(&Command{
		Name:        "/models",
		Description: "List model configurations",
		Category:    "Model",
		Handler:     handleModels,
	})
	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Switch or show current model",
		Usage:       "/model [name]",
		Args:        []ArgDef{{Name: "name", Type: ArgTypeModel, Description: "Model id or name"}},
		Category:    "Model",
		Handler:     handleModel,
	})

	r.Register(&Command{
		Name:        "/settings",
		Description: "Show the settings the next message will use",
		Category:    "Settings",
		Handler:     handleSettings,
	})
	r.Register(&Command{
		Name:        "/set",
		Description: "Change a setting for this chat",
		Usage:       "/set <key> <value>",
		Args: []ArgDef{
			{Name: "key", Required: true, Type: ArgTypeSetting, Description: "Setting key"},
			{Name: "value", Required: true, Type: ArgTypeString, Description: "New value"},
		},
		Category: "Settings",
		Handler:  handleSet,
	})
	r.Register(&Command{
		Name:        "/stream",
		Description: "Turn streaming replies on or off",
		Usage:       "/stream <on|off>",
		Args:        []ArgDef{{Name: "state", Required: true, Type: ArgTypeEnum, Values: onOff}},
		Category:    "Settings",
		Handler:     featureHandler("streaming"),
	})
	r.Register(&Command{
		Name:        "/context",
		Description: "Turn conversation context on or off",
		Usage:       "/context <on|off>",
		Args:        []ArgDef{{Name: "state", Required: true, Type: ArgTypeEnum, Values: onOff}},
		Category:    "Settings",
		Handler:     featureHandler("enable_context"),
	})
}

// =============================================================================
// COMPLETION TYPE
// =============================================================================

// Completion represents a completion suggestion.
type Completion struct {
	// Value to insert
	Value string

	// Display text
	Display string

	// Description shown alongside
	Description string

	// Score for ranking (higher = better match)
	Score int
}

// ChatInfo identifies a saved chat for completion.
type ChatInfo struct {
	Ref   string
	Title string
}

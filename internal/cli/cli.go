// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdServe
	CmdStatus
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name as typed.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdServe:
		return "serve"
	case CmdStatus:
		return "status"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool
	Model   string
	BaseURL string

	// Open is a chat id or URL to resume (chat and tui)
	Open string

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string

	// Raw args after the command name
	Raw []string
}

const usageText = `rigchat - chat with language models through a rigchat backend

Usage:
  rigchat                        Start the TUI (default)
  rigchat chat                   Line-based interactive chat
  rigchat serve                  Run the development backend
  rigchat status                 Check the backend and list models
  rigchat config [subcommand]    Show or edit configuration
  rigchat version                Show version information
  rigchat help                   Show this help

Global Flags:
  -m, --model NAME     Model id or name to start with
  --backend URL        Backend base URL (overrides backend.base_url)
  --open CHAT          Resume a saved chat by id or URL
  -q, --quiet          Minimal output
  -v, --verbose        Debug logging
  --json               JSON output (status, config, version)

Serve Flags:
  --listen ADDR        Address to bind (default from devserver.listen)
  --db PATH            SQLite database file

Config Subcommands:
  rigchat config show              Show the effective configuration
  rigchat config path              Show the config file location
  rigchat config init              Write a default config file
  rigchat config get <key>         Print one value
  rigchat config set <key> <value> Change one value
  rigchat config keys              List every key

In chat, type /help for commands. Ctrl+C stops a reply in progress.

Environment:
  RIGCHAT_HOME         Config directory (default ~/.rigchat)
  RIGCHAT_BASE_URL     Backend base URL
  RIGCHAT_TOKEN        Backend bearer token
  RIGCHAT_MODEL        Startup model
  RIGCHAT_UPSTREAM_KEY API key for the development backend's upstream
  NO_COLOR             Disable colors
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "rigchat %s\n", Version)
	fmt.Fprintf(w, "  Commit:     %s\n", GitCommit)
	fmt.Fprintf(w, "  Built:      %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// Parse parses argv (without the program name).
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "chat", "repl":
		return CmdChat, parsedArgs

	case "serve", "server":
		return CmdServe, parsedArgs

	case "status", "s":
		return CmdStatus, parsedArgs

	case "config", "cfg":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version":
		return CmdVersion, parsedArgs

	case "help":
		return CmdHelp, parsedArgs

	default:
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")

		// takeValue returns the flag's value from --x=v or the next argument.
		takeValue := func() string {
			if hasValue {
				return value
			}
			if i+1 < len(args) {
				i++
				return args[i]
			}
			return ""
		}

		switch name {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--json":
			parsed.JSON = true
		case "-m", "--model":
			parsed.Model = takeValue()
		case "--backend":
			parsed.BaseURL = takeValue()
		case "--open":
			parsed.Open = takeValue()
		case "-h", "--help":
			remaining = append(remaining, "help")
		case "--version":
			remaining = append(remaining, "version")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, parsed
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
	}
	if len(remaining) > 1 {
		args.ConfigKey = remaining[1]
	}
	if len(remaining) > 2 {
		args.ConfigVal = strings.Join(remaining[2:], " ")
	}
}

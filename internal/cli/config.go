// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Subcommands:
//   show (default)      Display the effective configuration
//   path                Show the configuration file path
//   init                Write a default config file if none exists
//   get <key>           Print one value
//   set <key> <value>   Change one value in the config file
//   keys                List every settable key
//
// Examples:
//   rigchat config set backend.base_url http://gpu-box:8000
//   rigchat config set overrides.temperature 0.2
//   rigchat config set chat.streaming false
//   rigchat config get backend.base_url --json

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/rigchat/internal/config"
)

// secretKeys are masked by `config get` and `config show`.
var secretKeys = map[string]bool{
	"backend.token":              true,
	"devserver.upstream.api_key": true,
}

// HandleConfig dispatches the config subcommands. cfg is the effective
// configuration; set and init work on the file at path instead.
func HandleConfig(cfg *config.Config, path string, args Args, out io.Writer) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(cfg, args, out)
	case "path":
		if args.JSON {
			return NewJSONResponse("config path", map[string]string{"path": path}).Write(out)
		}
		fmt.Fprintln(out, path)
		return nil
	case "init":
		return configInit(path, args, out)
	case "get":
		return configGet(cfg, args, out)
	case "set":
		return configSet(path, args, out)
	case "keys":
		keys := config.Keys()
		if args.JSON {
			return NewJSONResponse("config keys", keys).Write(out)
		}
		fmt.Fprintln(out, strings.Join(keys, "\n"))
		return nil
	default:
		return &UsageError{Command: "config", Reason: fmt.Sprintf("unknown subcommand %q", args.Subcommand)}
	}
}

func configShow(cfg *config.Config, args Args, out io.Writer) error {
	if args.JSON {
		values := make(map[string]any)
		for _, key := range config.Keys() {
			v, err := cfg.Get(key)
			if err != nil {
				return err
			}
			values[key] = maskSecret(key, v)
		}
		return NewJSONResponse("config show", values).Write(out)
	}
	fmt.Fprintln(out, TitleStyle.Render("rigchat configuration"))
	fmt.Fprintln(out, RenderSeparator())
	fmt.Fprint(out, cfg.String())
	return nil
}

func configInit(path string, args Args, out io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := config.SaveTo(config.Default(), path); err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config init", map[string]string{"path": path}).Write(out)
	}
	fmt.Fprintf(out, "%s Wrote %s\n", RenderStatus("ok"), path)
	return nil
}

func configGet(cfg *config.Config, args Args, out io.Writer) error {
	if args.ConfigKey == "" {
		return &UsageError{Command: "config get", Reason: "missing key"}
	}
	v, err := cfg.Get(args.ConfigKey)
	if err != nil {
		return &UsageError{Command: "config get", Reason: err.Error()}
	}
	v = maskSecret(args.ConfigKey, v)
	if args.JSON {
		return NewJSONResponse("config get", map[string]any{"key": args.ConfigKey, "value": v}).Write(out)
	}
	if v == nil {
		fmt.Fprintln(out, DimStyle.Render("(unset)"))
		return nil
	}
	fmt.Fprintln(out, v)
	return nil
}

// configSet edits the file at path. Environment overrides never leak into
// the written file.
func configSet(path string, args Args, out io.Writer) error {
	if args.ConfigKey == "" {
		return &UsageError{Command: "config set", Reason: "missing key"}
	}

	cfg, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return &UsageError{Command: "config set", Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTo(cfg, path); err != nil {
		return err
	}

	if args.JSON {
		v, _ := cfg.Get(args.ConfigKey)
		return NewJSONResponse("config set", map[string]any{
			"key":   args.ConfigKey,
			"value": maskSecret(args.ConfigKey, v),
		}).Write(out)
	}
	shown := args.ConfigVal
	if secretKeys[args.ConfigKey] {
		shown = "[REDACTED]"
	}
	if shown == "" {
		shown = "(unset)"
	}
	fmt.Fprintf(out, "%s %s = %s\n", RenderStatus("ok"), args.ConfigKey, shown)
	return nil
}

func maskSecret(key string, v any) any {
	if s, ok := v.(string); ok && secretKeys[key] && s != "" {
		return "[REDACTED]"
	}
	return v
}

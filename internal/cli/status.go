// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation.
//
// Command: status
// Aliases: s
//
// Probes the backend health endpoint and lists the registered models,
// marking the one a chat would start with.
//
// Examples:
//   rigchat status
//   rigchat status --backend http://gpu-box:8000
//   rigchat status --json

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/rigchat/internal/backend"
)

const statusTimeout = 5 * time.Second

// HandleStatus reports backend health and the model registry.
func HandleStatus(ctx context.Context, app *App, args Args, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	data := StatusData{Backend: app.Backend.BaseURL()}

	health, healthErr := app.Backend.Health(ctx)
	if healthErr != nil {
		data.Error = healthErr.Error()
	} else {
		data.Health = health
	}

	var modelsErr error
	if healthErr == nil {
		list, err := app.Backend.ListModels(ctx)
		if err != nil {
			modelsErr = err
			data.Error = err.Error()
		} else {
			data.Models = list.Models
			preferred := args.Model
			if preferred == "" {
				preferred = app.Config.Chat.DefaultModel
			}
			if m := backend.PickModel(list.Models, preferred); m != nil {
				data.Default = m.ID
			}
		}
	}

	err := healthErr
	if err == nil {
		err = modelsErr
	}

	if args.JSON {
		if err != nil {
			// Reported by the caller's DisplayError.
			return err
		}
		return NewJSONResponse("status", data).Write(out)
	}

	fmt.Fprintln(out, TitleStyle.Render("rigchat status"))
	fmt.Fprintln(out, RenderSeparator())
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Backend"), data.Backend)
	if healthErr != nil {
		fmt.Fprintf(out, "%s%s %s\n", RenderLabel("Health"), RenderStatus("unreachable"), DimStyle.Render(healthErr.Error()))
		return healthErr
	}
	fmt.Fprintf(out, "%s%s %s\n", RenderLabel("Health"), RenderStatus(data.Health.Status), data.Health.Service)
	if modelsErr != nil {
		fmt.Fprintf(out, "%s%s %s\n", RenderLabel("Models"), RenderStatus("error"), DimStyle.Render(modelsErr.Error()))
		return modelsErr
	}

	if len(data.Models) == 0 {
		fmt.Fprintf(out, "%s%s\n", RenderLabel("Models"), WarningStyle.Render("none registered"))
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render("Models"))
	for _, m := range data.Models {
		marker := "  "
		if fmt.Sprint(m.ID) == data.Default {
			marker = SuccessStyle.Render("* ")
		}
		line := fmt.Sprintf("%s%-4d %s (%s)", marker, m.ID, m.Name, m.ModelName)
		if !m.IsActive {
			line = DimStyle.Render(line + " inactive")
		} else if m.EnableStreaming {
			line += DimStyle.Render(" streaming")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

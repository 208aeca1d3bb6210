// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/timeline"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader is the prompt the REPL reads from.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI whose history lives in the config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	c.loadHistory()
	return c
}

func (c *ChatCLI) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// Prompt reads a line, recording non-empty input in the history.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the
// terminal.
func (c *ChatCLI) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the line-based chat until /quit, Ctrl+D or Ctrl+C at the
// prompt. Ctrl+C while a reply is arriving cancels that reply only.
func HandleChat(ctx context.Context, app *App, args Args, out io.Writer) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}
	if err := app.Start(ctx, args.Model, args.Open); err != nil {
		fmt.Fprintf(out, "%s %v\n", WarningStyle.Render("[WARN]"), err)
	}

	input := NewChatCLI()
	defer input.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if app.Controller.Cancel() {
				fmt.Fprintln(out, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	if !args.Quiet {
		printWelcome(out, app)
	}
	return runREPL(ctx, app.Env, input, out)
}

// runREPL is the read-eval-print loop behind HandleChat.
func runREPL(ctx context.Context, env *commands.Env, in lineReader, out io.Writer) error {
	for {
		line, err := in.Prompt(promptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if commands.IsCommand(line) {
			res, err := env.Registry.Execute(ctx, env, line)
			if err != nil {
				DisplayError(out, err, false)
				continue
			}
			if res.SessionChanged {
				printTranscript(out, env.Controller.Timeline().Snapshot())
			}
			if res.Output != "" {
				fmt.Fprintln(out, res.Output)
			}
			if res.Quit {
				return nil
			}
			continue
		}

		if err := sendAndFollow(ctx, env.Controller, line, out); err != nil {
			DisplayError(out, err, false)
		}
	}
}

// sendAndFollow dispatches one message and prints the reply as it arrives.
func sendAndFollow(ctx context.Context, ctrl *conversation.Controller, text string, out io.Writer) error {
	tl := ctrl.Timeline()
	changes, unsubscribe := tl.Subscribe()
	defer unsubscribe()

	if err := ctrl.Send(ctx, text); err != nil {
		if errors.Is(err, conversation.ErrNoModel) {
			return fmt.Errorf("%w; pick one with /models and /model", err)
		}
		return err
	}

	last, ok := tl.Snapshot().Last()
	if !ok {
		return nil
	}
	fmt.Fprint(out, assistantLabelStyle.Render("assistant> "))
	p := &replyPrinter{w: out}
	for {
		m, ok := tl.Get(last.ID)
		if !ok {
			// The session was replaced under us.
			fmt.Fprintln(out)
			return nil
		}
		p.update(m)
		if m.Status.Terminal() {
			fmt.Fprintln(out)
			return ctrl.Wait(ctx)
		}

		select {
		case <-changes:
		case <-ctx.Done():
			ctrl.Cancel()
			return ctx.Err()
		}
	}
}

// replyPrinter writes a growing message as deltas. Content that no longer
// extends what was printed is written again in full on a new line.
type replyPrinter struct {
	w     io.Writer
	shown string
}

func (p *replyPrinter) update(m model.Message) {
	if m.Content == p.shown {
		return
	}

	text := m.Content
	if strings.HasPrefix(m.Content, p.shown) {
		text = m.Content[len(p.shown):]
	} else if p.shown != "" {
		fmt.Fprintln(p.w)
	}
	if m.Status == model.StatusErrored {
		text = ErrorStyle.Render(text)
	}
	fmt.Fprint(p.w, text)
	p.shown = m.Content
}

// =============================================================================
// OUTPUT
// =============================================================================

func printWelcome(out io.Writer, app *App) {
	fmt.Fprintln(out, TitleStyle.Render("rigchat "+Version))
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Backend"), app.Backend.BaseURL())
	if m := app.Controller.Model(); m != nil {
		fmt.Fprintf(out, "%s%s (%s)\n", RenderLabel("Model"), m.Name, m.ModelName)
	}
	fmt.Fprintln(out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(out, RenderSeparator())
}

// printTranscript writes every message of a freshly opened chat.
func printTranscript(out io.Writer, snap timeline.Snapshot) {
	for m := range snap.All() {
		label := assistantLabelStyle.Render("assistant> ")
		if m.Role == model.RoleUser {
			label = userLabelStyle.Render("you> ")
		}
		content := m.Content
		switch {
		case m.Status == model.StatusErrored:
			content = ErrorStyle.Render(content)
		case m.Role == model.RoleAssistant && ColorsEnabled():
			content = highlightBlocks(content)
		}
		fmt.Fprintln(out, label+content)
	}
}

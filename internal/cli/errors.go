// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/rigchat/internal/backend"
	"github.com/jeranaias/rigchat/internal/commands"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/transport"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports a command invoked with bad arguments.
type UsageError struct {
	Command string
	Reason  string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s (see 'rigchat help')", e.Command, e.Reason)
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in jsonMode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"success":   false,
			"error":     err.Error(),
			"exit_code": GetExitCode(err),
		})
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var cmdErr *commands.ValidationError
	var ttyErr *TTYRequiredError
	if errors.As(err, &usageErr) || errors.As(err, &cmdErr) || errors.As(err, &ttyErr) {
		return ExitUsageError
	}

	var cfgErr config.ValidateErrors
	var cfgFieldErr config.ValidationError
	if errors.As(err, &cfgErr) || errors.As(err, &cfgFieldErr) {
		return ExitConfigError
	}

	if errors.Is(err, backend.ErrNotFound) {
		return ExitNotFoundError
	}

	if transport.IsStatus(err, 401) || transport.IsStatus(err, 403) {
		return ExitAuthError
	}
	switch transport.TypeOf(err) {
	case transport.ErrTypeTimeout:
		return ExitTimeoutError
	case transport.ErrTypeNetwork:
		return ExitNetworkError
	}

	return ExitGeneralError
}

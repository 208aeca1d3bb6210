// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

// User-facing texts written into the timeline.
const (
	NoModelMessage       = "Please select an available model first. You can add and activate models in settings."
	UnaryFailureMessage  = "Sorry, an error occurred while sending the message. Please try again."
	StreamFailureMessage = "Sorry, an error occurred during streaming. Please try again."
	CancelledMessage     = "Generation cancelled."
)

// ValidationError rejects a send before anything reaches the network.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Sentinel errors for easy checking.
var (
	ErrEmptyInput = &ValidationError{Reason: "message is empty"}
	ErrNoModel    = &ValidationError{Reason: "no model selected"}
	ErrBusy       = &ValidationError{Reason: "a turn is already in progress"}
)

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jeranaias/rigchat/internal/stream"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes transport failures.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNetwork
	ErrTypeTimeout
	ErrTypeCancelled
	ErrTypeStatus
	ErrTypeMalformed
	ErrTypeRemote
	ErrTypeIncomplete
)

// String returns a short name for logs.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNetwork:
		return "network"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeCancelled:
		return "cancelled"
	case ErrTypeStatus:
		return "status"
	case ErrTypeMalformed:
		return "malformed"
	case ErrTypeRemote:
		return "remote"
	case ErrTypeIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// TransportError is returned (or carried in an error event) for every failed
// request. It is never retried.
type TransportError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Type == ErrTypeTimeout
}

// IsStatus reports whether err came from a non-2xx response with the given code.
// A zero code matches any status error.
func IsStatus(err error, code int) bool {
	var te *TransportError
	if !errors.As(err, &te) || te.Type != ErrTypeStatus {
		return false
	}
	return code == 0 || te.StatusCode == code
}

// TypeOf returns the ErrorType of err, or ErrTypeUnknown.
func TypeOf(err error) ErrorType {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}
	return ErrTypeUnknown
}

// WrapRequestError classifies an error from http.Client.Do or a body read.
func WrapRequestError(msg string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	typ := ErrTypeNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errIdle):
		typ = ErrTypeTimeout
	case errors.Is(err, context.Canceled):
		typ = ErrTypeCancelled
	case errors.Is(err, stream.ErrIncompleteStream):
		typ = ErrTypeIncomplete
	case errors.As(err, &netErr) && netErr.Timeout():
		typ = ErrTypeTimeout
	}
	return &TransportError{Type: typ, Message: msg, Cause: err}
}

// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error types and error handling utilities for the evsched library.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// ErrSchedulerClosed indicates a registration attempt after Shutdown.
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrBackendUnavailable indicates the requested polling backend is not
	// supported on this platform.
	ErrBackendUnavailable = errors.New("polling backend unavailable")

	// ErrInvalidConcurrency indicates a non-positive loop count.
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrLoopClosed indicates an operation against a destroyed loop.
	ErrLoopClosed = errors.New("event loop is closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeNotSupported
	ErrCodeClosed
	ErrCodeInternal
)

// Error represents a structured error with code and context. Backend
// installation failures are wrapped into it so callers can decide whether
// to retry on another loop or propagate.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a structured error around a cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

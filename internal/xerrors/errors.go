// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

// Package xerrors provides the structured error kinds used across the
// engine, following the error-kind/category split from spec.md section 7.
package xerrors

import (
	"fmt"
	"time"
)

// Code is one of the error kinds from spec.md section 7.
type Code string

const (
	// CodeArgument covers bad user input: unknown key, bad cast, bad
	// parameter path.
	CodeArgument Code = "argument_error"

	// CodeParameter is raised by Value validation; carries Path.
	CodeParameter Code = "parameter_error"

	// CodeSealed is raised when Set is called on a sealed Value.
	CodeSealed Code = "sealed_error"

	// CodeCast is raised on an invalid scalar conversion.
	CodeCast Code = "cast_error"

	// CodeIO is raised when a Connector filesystem/process operation fails.
	CodeIO Code = "io_error"

	// CodeLock is raised when lock acquisition times out.
	CodeLock Code = "lock_error"

	// CodeAssertion marks an internal invariant violation.
	CodeAssertion Code = "assertion_error"

	// CodeNotImplemented marks an optional path not yet available.
	CodeNotImplemented Code = "not_implemented_error"
)

// Category groups codes so callers can branch on recovery policy rather
// than on the exact code.
type Category string

const (
	CategoryUser     Category = "USER"     // surface to caller, abort
	CategoryRuntime  Category = "RUNTIME"  // mark job ERROR
	CategoryInternal Category = "INTERNAL" // fatal, abort
)

func categoryFor(code Code) Category {
	switch code {
	case CodeArgument, CodeParameter, CodeCast:
		return CategoryUser
	case CodeIO, CodeLock:
		return CategoryRuntime
	case CodeSealed, CodeAssertion, CodeNotImplemented:
		return CategoryInternal
	default:
		return CategoryInternal
	}
}

func retryableFor(code Code) bool {
	return code == CodeLock
}

// Error is the structured error type returned across package boundaries
// in the engine.
type Error struct {
	Code      Code
	Category  Category
	Message   string
	Path      string // dotted argument path, set for CodeParameter
	Timestamp time.Time
	Retryable bool
	Cause     error
}

// New creates a structured Error with no cause.
func New(code Code, message string) *Error {
	return &Error{
		Code:      code,
		Category:  categoryFor(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: retryableFor(code),
	}
}

// Wrap creates a structured Error with an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithPath attaches a dotted argument path to the error (used by
// CodeParameter) and returns the same error for chaining.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s: path=%s", e.Code, e.Message, e.Path)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Code, as the teacher's SlurmError does for
// ErrorCode.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsRetryable reports whether the caller may retry the operation.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// Argument builds a CodeArgument error.
func Argument(format string, args ...any) *Error {
	return New(CodeArgument, fmt.Sprintf(format, args...))
}

// Parameter builds a CodeParameter error carrying a dotted path.
func Parameter(path, format string, args ...any) *Error {
	return New(CodeParameter, fmt.Sprintf(format, args...)).WithPath(path)
}

// Sealed builds a CodeSealed error.
func Sealed(format string, args ...any) *Error {
	return New(CodeSealed, fmt.Sprintf(format, args...))
}

// Cast builds a CodeCast error.
func Cast(format string, args ...any) *Error {
	return New(CodeCast, fmt.Sprintf(format, args...))
}

// IO wraps a lower-level error as a CodeIO error.
func IO(cause error, format string, args ...any) *Error {
	return Wrap(CodeIO, fmt.Sprintf(format, args...), cause)
}

// Lock builds a CodeLock error.
func Lock(format string, args ...any) *Error {
	return New(CodeLock, fmt.Sprintf(format, args...))
}

// Assertion builds a CodeAssertion error.
func Assertion(format string, args ...any) *Error {
	return New(CodeAssertion, fmt.Sprintf(format, args...))
}

// NotImplemented builds a CodeNotImplemented error.
func NotImplemented(format string, args ...any) *Error {
	return New(CodeNotImplemented, fmt.Sprintf(format, args...))
}

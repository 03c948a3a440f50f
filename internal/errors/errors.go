package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig     = "CONFIG"
	ErrAuth       = "AUTH"
	ErrTransport  = "TRANSPORT"
	ErrSample     = "SAMPLE"
	ErrNotFound   = "NOT_FOUND"
	ErrPersist    = "PERSIST"
	ErrValidation = "VALIDATION"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrTransport code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrTransport,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// NotFound creates the error returned when an operation references a host
// that isn't registered for the tenant.
func NotFound(tenant, host string) *Error {
	return &Error{
		Code:       ErrNotFound,
		Message:    fmt.Sprintf("Server %s isn't registered for %s", host, tenant),
		Suggestion: "List registered servers with 'loadwatch host list'",
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	// First line: failure symbol + main message
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Short returns the message and the root cause on one line, without the
// suggestion. Used where errors are rendered inline (events, logs).
func (e *Error) Short() string {
	if e.Cause == nil {
		return e.Message
	}
	var inner *Error
	if errors.As(e.Cause, &inner) {
		return e.Message + ": " + inner.Short()
	}
	return e.Message + ": " + e.Cause.Error()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
// Only the outermost structured error is considered.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var lwErr *Error
	if errors.As(err, &lwErr) {
		return lwErr.Code == code
	}
	return false
}

// HasCode reports whether any structured Error in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var lwErr *Error
		if !errors.As(err, &lwErr) {
			return false
		}
		if lwErr.Code == code {
			return true
		}
		err = lwErr.Cause
	}
	return false
}

// Short renders any error on a single line.
func Short(err error) string {
	if err == nil {
		return ""
	}
	var lwErr *Error
	if errors.As(err, &lwErr) {
		return lwErr.Short()
	}
	return err.Error()
}

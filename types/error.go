package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the connection layer.
type ErrorCode string

// Query error codes
const (
	ErrQueryFailed       ErrorCode = "QUERY_FAILED"
	ErrConnectFailed     ErrorCode = "CONNECT_FAILED"
	ErrNoTargets         ErrorCode = "NO_TARGETS"
	ErrConnectionRelease ErrorCode = "CONNECTION_RELEASED"
)

// Pool error codes
const (
	ErrPoolClosed    ErrorCode = "POOL_CLOSED"
	ErrPoolExhausted ErrorCode = "POOL_EXHAUSTED"
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Query     string    `json:"query,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("[%s] %s (SQL: %s)", e.Code, e.Message, e.Query)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithQuery attaches the SQL text that failed.
func (e *Error) WithQuery(query string) *Error {
	e.Query = query
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NewQueryFailure wraps a driver error that was not transparently recovered.
// The message is the original driver message.
func NewQueryFailure(query string, cause error) *Error {
	msg := "query failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: ErrQueryFailed, Message: msg, Query: query, Cause: cause}
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsQueryFailure reports whether err is a QueryFailure.
func IsQueryFailure(err error) bool {
	return IsErrorCode(err, ErrQueryFailed)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

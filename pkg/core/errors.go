package core

import (
	"errors"
	"fmt"
)

// Error is the error type shared by the tutoring client and the backend service.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`

	// Cause is the underlying failure. It is never serialized.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// Session lifecycle failures.
	ErrConnectionFailed ErrorType = "connection_failed"
	ErrConnectionLost   ErrorType = "connection_lost"
	ErrInvalidState     ErrorType = "invalid_state"
	ErrReportFailed     ErrorType = "report_failed"

	// Backend API failures.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrConflict       ErrorType = "conflict_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
)

// NewConnectionFailedError creates an error for a stream that could not be opened.
func NewConnectionFailedError(message string, cause error) *Error {
	return &Error{
		Type:    ErrConnectionFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewConnectionLostError creates an error for a stream that closed mid-session.
func NewConnectionLostError(message string, cause error) *Error {
	return &Error{
		Type:    ErrConnectionLost,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidStateError creates an error for a rejected transition.
func NewInvalidStateError(message string) *Error {
	return &Error{
		Type:    ErrInvalidState,
		Message: message,
	}
}

// NewReportFailedError creates an error for an outcome that could not be recorded.
func NewReportFailedError(message string, cause error) *Error {
	return &Error{
		Type:    ErrReportFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewConflictError creates a conflict error.
func NewConflictError(message string) *Error {
	return &Error{
		Type:    ErrConflict,
		Message: message,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewOverloadedError creates an overloaded error.
func NewOverloadedError(message string) *Error {
	return &Error{
		Type:    ErrOverloaded,
		Message: message,
	}
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType reports whether err wraps a *Error of type t.
func IsType(err error, t ErrorType) bool {
	var coreErr *Error
	if !errors.As(err, &coreErr) || coreErr == nil {
		return false
	}
	return coreErr.Type == t
}

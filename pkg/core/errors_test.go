package core

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidState,
		Message: "session already active",
	}

	expected := "invalid_state: session already active"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrConnectionFailed,
		Message: "dial failed",
		Code:    "handshake",
	}

	expected := "connection_failed: dial failed (code: handshake)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewConnectionFailedError_Unwraps(t *testing.T) {
	err := NewConnectionFailedError("dial failed", io.ErrUnexpectedEOF)
	if err.Type != ErrConnectionFailed {
		t.Errorf("Type = %v, want %v", err.Type, ErrConnectionFailed)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("errors.Is(err, io.ErrUnexpectedEOF) = false, want true")
	}
}

func TestNewReportFailedError(t *testing.T) {
	cause := NewAPIError("upstream down")
	err := NewReportFailedError("outcome not recorded", cause)
	if err.Type != ErrReportFailed {
		t.Errorf("Type = %v, want %v", err.Type, ErrReportFailed)
	}
	var inner *Error
	if !errors.As(err.Unwrap(), &inner) || inner.Type != ErrAPI {
		t.Errorf("Unwrap() = %v, want api_error", err.Unwrap())
	}
}

func TestNewInvalidRequestErrorWithParam(t *testing.T) {
	err := NewInvalidRequestErrorWithParam("must be >= 1", "pointsEarned")
	if err.Type != ErrInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrInvalidRequest)
	}
	if err.Param != "pointsEarned" {
		t.Errorf("Param = %q, want %q", err.Param, "pointsEarned")
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{ErrOverloaded, true},
		{ErrAPI, true},
		{ErrInvalidRequest, false},
		{ErrAuthentication, false},
		{ErrNotFound, false},
		{ErrConflict, false},
		{ErrInvalidState, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := &Error{Type: tt.errType}
			if err.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", err.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	wrapped := fmt.Errorf("start: %w", NewConnectionLostError("socket closed", nil))
	if !IsType(wrapped, ErrConnectionLost) {
		t.Fatalf("IsType(connection_lost)=false, want true")
	}
	if IsType(wrapped, ErrConnectionFailed) {
		t.Fatalf("IsType(connection_failed)=true, want false")
	}
	if IsType(io.EOF, ErrConnectionLost) {
		t.Fatalf("IsType(io.EOF)=true, want false")
	}
	if IsType(nil, ErrConnectionLost) {
		t.Fatalf("IsType(nil)=true, want false")
	}
}

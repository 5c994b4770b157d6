package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

func TestFromError_ContextCanceled_Is408Cancelled(t *testing.T) {
	ce, status := FromError(context.Canceled, "req_test")
	if status != 408 {
		t.Fatalf("status=%d", status)
	}
	if ce.Type != core.ErrAPI {
		t.Fatalf("type=%q", ce.Type)
	}
	if ce.Code != "cancelled" {
		t.Fatalf("code=%q", ce.Code)
	}
	if ce.RequestID != "req_test" {
		t.Fatalf("request_id=%q", ce.RequestID)
	}
}

func TestFromError_DeadlineIs504(t *testing.T) {
	_, status := FromError(fmt.Errorf("query: %w", context.DeadlineExceeded), "req_test")
	if status != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", status)
	}
}

func TestFromError_StatusByType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{core.NewInvalidRequestError("bad"), http.StatusBadRequest},
		{core.NewAuthenticationError("who"), http.StatusUnauthorized},
		{core.NewNotFoundError("gone"), http.StatusNotFound},
		{core.NewConflictError("dup"), http.StatusConflict},
		{core.NewOverloadedError("draining"), http.StatusServiceUnavailable},
		{fmt.Errorf("mint: %w", core.NewAPIError("vendor")), http.StatusBadGateway},
		{&types.StrictDecodeError{Param: "age", Message: "age must be between 4 and 18"}, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if _, got := FromError(tt.err, "req"); got != tt.want {
			t.Fatalf("FromError(%v) status=%d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFromError_HidesUnknownAndCause(t *testing.T) {
	t.Parallel()

	ce, _ := FromError(errors.New("password=hunter2"), "req")
	if ce.Message != "internal error" {
		t.Fatalf("message=%q", ce.Message)
	}

	wrapped := core.NewReportFailedError("report failed", errors.New("secret detail"))
	ce, _ = FromError(wrapped, "req")
	if ce.Cause != nil {
		t.Fatalf("cause leaked: %v", ce.Cause)
	}
	if wrapped.RequestID != "" {
		t.Fatalf("original error mutated")
	}
}

func TestWrite_Envelope(t *testing.T) {
	t.Parallel()

	retry := 5
	rr := httptest.NewRecorder()
	Write(rr, "req_1", &core.Error{Type: core.ErrOverloaded, Message: "draining", RetryAfter: &retry})

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("Retry-After=%q", got)
	}
	var env struct {
		Error core.Error `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error.Type != core.ErrOverloaded || env.Error.RequestID != "req_1" {
		t.Fatalf("error=%+v", env.Error)
	}
}

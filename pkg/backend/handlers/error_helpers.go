// Package handlers implements the backend's HTTP routes.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vango-go/vai-tutor/pkg/backend/apierror"
	"github.com/vango-go/vai-tutor/pkg/backend/auth"
	"github.com/vango-go/vai-tutor/pkg/backend/mw"
	"github.com/vango-go/vai-tutor/pkg/core"
)

func requestID(r *http.Request) string {
	id, _ := mw.RequestIDFrom(r.Context())
	return id
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apierror.Write(w, requestID(r), err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, core.NewInvalidRequestError("request body is required")
	}
	return io.ReadAll(r.Body)
}

// principal returns the authenticated learner or writes a 401.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, r, core.NewAuthenticationError("authentication required"))
		return nil, false
	}
	return p, true
}

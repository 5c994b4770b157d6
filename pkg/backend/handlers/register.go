package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vango-go/vai-tutor/pkg/backend/auth"
	"github.com/vango-go/vai-tutor/pkg/backend/store"
	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

type LearnerCreator interface {
	CreateLearner(ctx context.Context, in store.NewLearner) (types.Profile, error)
}

// RegisterHandler creates a learner and returns its access token once.
type RegisterHandler struct {
	Store        LearnerCreator
	DefaultVoice string
	Logger       *slog.Logger
}

func (h RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := types.UnmarshalRegisterRequestStrict(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	voice := req.SelectedVoice
	if voice == "" {
		voice = h.DefaultVoice
	}
	if voice == "" {
		voice = types.DefaultVoice
	}
	if _, ok := VoiceByID(voice); !ok {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("unknown voice "+voice, "selectedVoice"))
		return
	}

	token, err := auth.NewToken()
	if err != nil {
		writeError(w, r, err)
		return
	}
	learner, err := h.Store.CreateLearner(r.Context(), store.NewLearner{
		Name:          req.Name,
		Email:         req.Email,
		Age:           req.Age,
		SelectedVoice: voice,
		TokenHash:     auth.HashToken(token),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("learner registered", "request_id", requestID(r), "learner_id", learner.ID)
	}
	writeJSON(w, http.StatusCreated, types.Registration{Token: token, User: learner})
}

type ProfileHandler struct{}

func (h ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, types.ProfileResponse{User: p.Learner})
}

type LearnerUpdater interface {
	UpdateLearner(ctx context.Context, id string, upd types.ProfileUpdate) (types.Profile, error)
}

// UpdateProfileHandler changes the learner's name or voice. The voice must be
// in the catalog and suitable for the learner's age.
type UpdateProfileHandler struct {
	Store  LearnerUpdater
	Logger *slog.Logger
}

func (h UpdateProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	upd, err := types.UnmarshalProfileUpdateStrict(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if upd.SelectedVoice != nil {
		v, ok := VoiceByID(*upd.SelectedVoice)
		if !ok {
			writeError(w, r, core.NewInvalidRequestErrorWithParam("unknown voice "+*upd.SelectedVoice, "selectedVoice"))
			return
		}
		if !v.SuitableFor(p.Learner.Age) {
			writeError(w, r, core.NewInvalidRequestErrorWithParam(fmt.Sprintf("voice %s is not offered at age %d", v.ID, p.Learner.Age), "selectedVoice"))
			return
		}
	}

	learner, err := h.Store.UpdateLearner(r.Context(), p.Learner.ID, *upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("profile updated", "request_id", requestID(r), "learner_id", learner.ID)
	}
	writeJSON(w, http.StatusOK, types.ProfileResponse{User: learner})
}

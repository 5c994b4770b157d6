package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/vai-tutor/pkg/backend/mint"
	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
	"github.com/vango-go/vai-tutor/pkg/tutor/session"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ConversationStore is the persistence the conversation routes need.
type ConversationStore interface {
	CreateConversation(ctx context.Context, learnerID string) (types.Conversation, error)
	DeleteConversation(ctx context.Context, learnerID, id string) error
	EndConversation(ctx context.Context, learnerID, id string, req types.OutcomeRequest) (types.Conversation, bool, error)
	ListConversations(ctx context.Context, learnerID string, limit, offset int) (types.ConversationPage, error)
}

// CreateConversationHandler opens a conversation and mints its stream token.
type CreateConversationHandler struct {
	Store        ConversationStore
	Minter       mint.Minter
	DefaultVoice string
	Logger       *slog.Logger
}

func (h CreateConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	learner := p.Learner

	conv, err := h.Store.CreateConversation(r.Context(), learner.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	voice := learner.SelectedVoice
	if voice == "" {
		voice = h.DefaultVoice
	}
	token, err := h.Minter.Mint(r.Context(), mint.MintRequest{
		Voice:        voice,
		Instructions: session.Instructions(learner.Name, learner.Age, ""),
	})
	if err != nil {
		// The row must not outlive a ticket that was never issued.
		if delErr := h.Store.DeleteConversation(context.WithoutCancel(r.Context()), learner.ID, conv.ID); delErr != nil && h.Logger != nil {
			h.Logger.Warn("delete orphaned conversation", "request_id", requestID(r), "conversation_id", conv.ID, "error", delErr)
		}
		if h.Logger != nil {
			h.Logger.Error("mint stream token", "request_id", requestID(r), "error", err)
		}
		if !core.IsType(err, core.ErrAPI) {
			err = &core.Error{Type: core.ErrAPI, Message: "could not create voice session", Cause: err}
		}
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, types.SessionTicket{
		SessionID:   conv.ID,
		StreamToken: token,
		Voice:       voice,
		UserName:    learner.Name,
		UserAge:     learner.Age,
	})
}

// EndConversationHandler records a session outcome. Repeat calls return the stored record.
type EndConversationHandler struct {
	Store  ConversationStore
	Logger *slog.Logger
}

func (h EndConversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("conversation id is required", "id"))
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := types.UnmarshalOutcomeRequestStrict(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conv, credited, err := h.Store.EndConversation(r.Context(), p.Learner.ID, id, *req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("conversation ended",
			"request_id", requestID(r),
			"conversation_id", conv.ID,
			"points", conv.PointsEarned,
			"credited", credited,
		)
	}
	writeJSON(w, http.StatusOK, types.ConversationResponse{Conversation: conv})
}

type ListConversationsHandler struct {
	Store ConversationStore
}

func (h ListConversationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), defaultPageLimit)
	if err != nil || limit < 1 || limit > maxPageLimit {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("limit must be between 1 and 100", "limit"))
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, r, core.NewInvalidRequestErrorWithParam("offset must be >= 0", "offset"))
		return
	}

	page, err := h.Store.ListConversations(r.Context(), p.Learner.ID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func queryInt(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

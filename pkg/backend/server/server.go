// Package server assembles the reference backend's routes and middleware.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-go/vai-tutor/pkg/backend/handlers"
	"github.com/vango-go/vai-tutor/pkg/backend/lifecycle"
	"github.com/vango-go/vai-tutor/pkg/backend/mint"
	"github.com/vango-go/vai-tutor/pkg/backend/mw"
	"github.com/vango-go/vai-tutor/pkg/backend/store"
	"github.com/vango-go/vai-tutor/pkg/config"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

// Store is everything the routes need from persistence.
type Store interface {
	handlers.LearnerCreator
	handlers.LearnerUpdater
	handlers.ConversationStore
	mw.LearnerResolver
	Ping(ctx context.Context) error
}

var _ Store = (*store.Store)(nil)

type Server struct {
	cfg       config.Backend
	logger    *slog.Logger
	mux       *http.ServeMux
	store     Store
	minter    mint.Minter
	lifecycle *lifecycle.Lifecycle
}

func New(cfg config.Backend, st Store, minter mint.Minter, lc *lifecycle.Lifecycle, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if lc == nil {
		lc = &lifecycle.Lifecycle{}
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = types.DefaultVoice
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		store:     st,
		minter:    minter,
		lifecycle: lc,
	}
	s.routes()
	return s
}

// publicPaths skip bearer authentication.
var publicPaths = map[string]struct{}{
	"/healthz":           {},
	"/readyz":            {},
	"/api/auth/register": {},
}

// healthPaths are served while draining.
var healthPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Lifecycle: s.lifecycle, DB: s.store})

	s.mux.Handle("POST /api/auth/register", handlers.RegisterHandler{
		Store:        s.store,
		DefaultVoice: s.cfg.DefaultVoice,
		Logger:       s.logger,
	})
	s.mux.Handle("GET /api/profile", handlers.ProfileHandler{})
	s.mux.Handle("PATCH /api/profile", handlers.UpdateProfileHandler{Store: s.store, Logger: s.logger})
	s.mux.Handle("GET /api/voices", handlers.VoicesHandler{})
	s.mux.Handle("POST /api/conversation", handlers.CreateConversationHandler{
		Store:        s.store,
		Minter:       s.minter,
		DefaultVoice: s.cfg.DefaultVoice,
		Logger:       s.logger,
	})
	s.mux.Handle("PATCH /api/conversation/{id}/end", handlers.EndConversationHandler{
		Store:  s.store,
		Logger: s.logger,
	})
	s.mux.Handle("GET /api/conversations", handlers.ListConversationsHandler{Store: s.store})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Limits(s.cfg.MaxBodyBytes, s.cfg.HandlerTimeout, h)
	h = mw.Auth(s.store, publicPaths, h)
	h = mw.Drain(s.lifecycle, healthPaths, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	h = mw.Recover(s.logger, h)
	return h
}

// SetDraining fails readiness and rejects new API requests.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

// WaitInFlight waits for admitted API requests. It returns false if ctx ends first.
func (s *Server) WaitInFlight(ctx context.Context) bool {
	return s.lifecycle.Wait(ctx.Done())
}

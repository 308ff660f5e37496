// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the tenant-facing session HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/sessiond/internal/api/middleware"
	"github.com/ManuGH/sessiond/internal/domain/session/manager"
	"github.com/ManuGH/sessiond/internal/domain/session/model"
	xglog "github.com/ManuGH/sessiond/internal/log"
)

// Sessions is the lifecycle surface the API drives.
type Sessions interface {
	Start(ctx context.Context, id string) (manager.StartResult, error)
	Status(ctx context.Context, id string) (manager.Status, error)
	List(ctx context.Context) []model.Summary
	Restart(ctx context.Context, id string) error
	Terminate(ctx context.Context, id string, opts manager.TerminateOptions) error
	TerminateAll(ctx context.Context, opts manager.TerminateOptions) ([]string, error)
	TerminateInactive(ctx context.Context, maxIdle time.Duration, opts manager.TerminateOptions) ([]string, error)
}

// HealthReporter produces the aggregate session health view.
type HealthReporter interface {
	Report(ctx context.Context) manager.HealthReport
}

// Config wires the cross-cutting behaviour of the API.
type Config struct {
	// KeyPolicy is consulted on every request so key rotation applies live.
	KeyPolicy      func() middleware.KeyConfig
	RateLimitRPM   int
	TracingService string
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Sessions Sessions
	Health   HealthReporter
	// Ready serves the readiness probe; nil reports ready.
	Ready http.HandlerFunc
}

// Server holds the HTTP handlers of the session API.
type Server struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New creates the API server.
func New(cfg Config, deps Deps) *Server {
	if cfg.KeyPolicy == nil {
		cfg.KeyPolicy = func() middleware.KeyConfig { return middleware.KeyConfig{} }
	}
	return &Server{
		cfg:    cfg,
		deps:   deps,
		logger: xglog.WithComponent("api"),
	}
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		RateLimitRPM:          s.cfg.RateLimitRPM,
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	r.Get("/ping", s.handlePing)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(s.cfg.KeyPolicy))

		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Route("/session", func(r chi.Router) {
			r.Get("/start/{sessionId}", s.handleStart)
			r.Get("/status/{sessionId}", s.handleStatus)
			r.Get("/restart/{sessionId}", s.handleRestart)
			r.Get("/terminate/{sessionId}", s.handleTerminate)
			r.Get("/terminateInactive", s.handleTerminateInactive)
			r.Get("/terminateAll", s.handleTerminateAll)
			r.Get("/all", s.handleList)
			r.Get("/qr/{sessionId}", s.handleQR)
			r.Get("/qr/{sessionId}/image", s.handleQRImage)
		})
	})
	return r
}

// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/sessiond/internal/domain/session/manager"
)

// SessionCloser applies the shutdown policy to every live session.
type SessionCloser interface {
	Shutdown(ctx context.Context, policy manager.Policy) error
}

// Deps contains dependencies required by the daemon Manager.
// This allows for clean dependency injection and easier testing.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIAddr is the listen address of the tenant API
	APIAddr string

	// APIHandler is the HTTP handler for the API server
	APIHandler http.Handler

	// MetricsAddr is the listen address for metrics and probes ("" disables)
	MetricsAddr string

	// MetricsHandler serves /metrics, /healthz and /ready
	MetricsHandler http.Handler

	// Sessions is shut down after the listeners, before the hooks
	Sessions SessionCloser

	// Policy is consulted once at shutdown time
	Policy func() manager.Policy

	// SessionShutdownTimeout bounds Sessions.Shutdown
	SessionShutdownTimeout time.Duration
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	if d.SessionShutdownTimeout <= 0 {
		d.SessionShutdownTimeout = 30 * time.Second
	}
	return nil
}

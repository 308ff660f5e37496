// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "context"

// Engine launches automation-engine instances (one headless chat client per session).
// Implementations (Infrastructure) handle the "how": in-process stub, external bridge process.
type Engine interface {
	// Launch starts an engine instance for req.SessionID.
	// ctx bounds the launch only; the returned handle lives until Close.
	// Asynchronous lifecycle events are delivered on req.Events until the handle is closed.
	Launch(ctx context.Context, req LaunchRequest) (Handle, error)
}

// LaunchRequest describes one engine instance to start.
type LaunchRequest struct {
	SessionID string
	// AuthDir is the session's exclusively owned authentication artifact directory.
	AuthDir string
	// Events is owned by the caller and never closed by the engine.
	Events chan<- Event
}

// Handle is the owned reference to a running engine instance.
type Handle interface {
	// ID is a stable identifier for logs.
	ID() string

	// Probe is a lightweight liveness check. It must honour ctx.
	Probe(ctx context.Context) error

	// Close releases the instance (browser, process, memory).
	// It is idempotent and must not send on Events after it returns.
	Close(ctx context.Context) error
}

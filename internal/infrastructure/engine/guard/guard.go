// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package guard wraps an engine adapter with a launch circuit breaker.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	"github.com/ManuGH/sessiond/internal/resilience"
)

// Engine rejects launches while the wrapped engine keeps failing.
type Engine struct {
	next    ports.Engine
	breaker *resilience.CircuitBreaker
}

// Wrap returns next guarded by a breaker that opens after threshold consecutive
// launch failures and probes again after cooldown.
func Wrap(name string, next ports.Engine, threshold int, cooldown time.Duration) *Engine {
	return &Engine{
		next: next,
		breaker: resilience.NewCircuitBreaker(name, threshold, cooldown,
			resilience.WithFailureFilter(countsAsFailure)),
	}
}

// Launch implements ports.Engine. While the breaker is open the launch fails
// permanently so the controller does not spend its retry budget.
func (e *Engine) Launch(ctx context.Context, req ports.LaunchRequest) (ports.Handle, error) {
	var h ports.Handle
	err := e.breaker.Execute(func() error {
		var lerr error
		h, lerr = e.next.Launch(ctx, req)
		return lerr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %w", ports.ErrLaunchPermanent, err)
	}
	return h, err
}

// State reports the breaker state.
func (e *Engine) State() resilience.State {
	return e.breaker.State()
}

// Caller cancellation says nothing about engine health.
func countsAsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

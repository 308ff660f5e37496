// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testkit provides a step-controlled engine for lifecycle tests.
package testkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
)

// ErrUnhealthy is returned by Probe while the engine is marked unhealthy.
var ErrUnhealthy = errors.New("stepper: unhealthy")

// StepperEngine blocks every Launch until AllowLaunch is called, so tests can
// interleave operations with an in-flight launch deterministically.
type StepperEngine struct {
	launchCalled chan struct{}
	launchOnce   sync.Once
	release      chan struct{}
	releaseOnce  sync.Once

	launches   atomic.Int32
	closeCount atomic.Int32
	healthy    atomic.Bool

	mu        sync.Mutex
	failErr   error
	failN     int
	streams   map[string]chan<- ports.Event
	handles   []*StepperHandle
	ignoreCtx bool
}

func NewStepperEngine() *StepperEngine {
	e := &StepperEngine{
		launchCalled: make(chan struct{}),
		release:      make(chan struct{}),
		streams:      make(map[string]chan<- ports.Event),
	}
	e.healthy.Store(true)
	return e
}

func (e *StepperEngine) Launch(ctx context.Context, req ports.LaunchRequest) (ports.Handle, error) {
	e.launches.Add(1)
	e.launchOnce.Do(func() { close(e.launchCalled) })

	e.mu.Lock()
	ignoreCtx := e.ignoreCtx
	e.mu.Unlock()

	if ignoreCtx {
		<-e.release
	} else {
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failN > 0 {
		e.failN--
		return nil, e.failErr
	}
	h := &StepperHandle{id: fmt.Sprintf("stepper-%s-%d", req.SessionID, e.launches.Load()), engine: e}
	e.handles = append(e.handles, h)
	e.streams[req.SessionID] = req.Events
	return h, nil
}

// LaunchCalled is closed on the first Launch.
func (e *StepperEngine) LaunchCalled() <-chan struct{} { return e.launchCalled }

// AllowLaunch releases every pending and future Launch.
func (e *StepperEngine) AllowLaunch() {
	e.releaseOnce.Do(func() { close(e.release) })
}

// IgnoreContext makes Launch wait for AllowLaunch even after its ctx is cancelled,
// like an engine that cannot abort a browser start.
func (e *StepperEngine) IgnoreContext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ignoreCtx = true
}

// FailLaunches makes the next n launches return err.
func (e *StepperEngine) FailLaunches(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failN = n
	e.failErr = err
}

// Emit delivers ev to the latest instance of sessionID.
func (e *StepperEngine) Emit(sessionID string, t ports.EventType, payload string) bool {
	e.mu.Lock()
	ch := e.streams[sessionID]
	e.mu.Unlock()
	if ch == nil {
		return false
	}
	select {
	case ch <- ports.Event{Type: t, Payload: payload, At: time.Now()}:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func (e *StepperEngine) Launches() int32   { return e.launches.Load() }
func (e *StepperEngine) CloseCount() int32 { return e.closeCount.Load() }
func (e *StepperEngine) SetHealthy(h bool) { e.healthy.Store(h) }

// OpenHandles reports handles that were launched and not yet closed.
func (e *StepperEngine) OpenHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, h := range e.handles {
		if !h.closed.Load() {
			n++
		}
	}
	return n
}

// StepperHandle is an instance launched by StepperEngine.
type StepperHandle struct {
	id     string
	engine *StepperEngine
	closed atomic.Bool
}

func (h *StepperHandle) ID() string { return h.id }

func (h *StepperHandle) Probe(ctx context.Context) error {
	if h.closed.Load() {
		return ports.ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.engine.healthy.Load() {
		return ErrUnhealthy
	}
	return nil
}

func (h *StepperHandle) Close(context.Context) error {
	if h.closed.CompareAndSwap(false, true) {
		h.engine.closeCount.Add(1)
	}
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"os"
	"sync"
	"syscall"

	"github.com/ManuGH/sessiond/internal/config"
	"github.com/ManuGH/sessiond/internal/domain/session/manager"
)

// ResolvePolicy maps the configured shutdown policy and the signal that stopped
// the process to a session policy. In auto mode SIGTERM (orchestrator stop or
// redeploy) preserves sessions and SIGINT (interactive stop) destroys them.
func ResolvePolicy(configured string, sig os.Signal) manager.Policy {
	switch configured {
	case config.ShutdownPreserve:
		return manager.PolicyPreserve
	case config.ShutdownDestroy:
		return manager.PolicyDestroy
	}
	if sig == os.Interrupt || sig == syscall.SIGINT {
		return manager.PolicyDestroy
	}
	return manager.PolicyPreserve
}

// ShutdownTrigger remembers the stop signal until the shutdown policy is needed.
type ShutdownTrigger struct {
	configured func() string

	mu  sync.Mutex
	sig os.Signal
}

// NewShutdownTrigger reads the configured policy lazily so a reload applies.
func NewShutdownTrigger(configured func() string) *ShutdownTrigger {
	return &ShutdownTrigger{configured: configured}
}

// Record stores the first stop signal.
func (t *ShutdownTrigger) Record(sig os.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sig == nil {
		t.sig = sig
	}
}

// Signal returns the recorded signal, or nil.
func (t *ShutdownTrigger) Signal() os.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sig
}

// Policy resolves the session shutdown policy.
func (t *ShutdownTrigger) Policy() manager.Policy {
	configured := config.ShutdownAuto
	if t.configured != nil {
		configured = t.configured()
	}
	return ResolvePolicy(configured, t.Signal())
}

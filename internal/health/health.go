// SPDX-License-Identifier: MIT

// Package health provides liveness and readiness checks for the daemon.
// It supports Docker HEALTHCHECK and Kubernetes probes with per-component status.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/sessiond/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultCheckTimeout = 2 * time.Second

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    int64                  `json:"uptime_seconds"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version      string
	startedAt    time.Time
	checkTimeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:      version,
		startedAt:    time.Now(),
		checkTimeout: defaultCheckTimeout,
		checkers:     make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// runChecks executes every checker with its own timeout and folds the results.
func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	checks := make(map[string]CheckResult, len(checkers))
	overall := StatusHealthy
	for _, checker := range checkers {
		cctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
		result := checker.Check(cctx)
		cancel()
		checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return checks, overall
}

// Health performs a liveness check.
// The process is alive regardless of component state; verbose adds component checks.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Uptime:    int64(time.Since(m.startedAt).Seconds()),
	}
	if verbose {
		m.mu.RLock()
		n := len(m.checkers)
		m.mu.RUnlock()
		if n > 0 {
			resp.Checks, resp.Status = m.runChecks(ctx)
		}
	}
	return resp
}

// Ready performs a readiness check.
// Degraded components still serve traffic; any unhealthy component makes the daemon not ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	checks, status := m.runChecks(ctx)
	if len(checks) == 0 {
		return resp
	}
	resp.Checks = checks
	resp.Status = status
	resp.Ready = status != StatusUnhealthy
	return resp
}

// ServeHealth handles HTTP liveness requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}
}

// ServeReady handles HTTP readiness requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// FuncChecker adapts a ping-style function. Optional dependencies report
// degraded instead of unhealthy so they never block readiness.
type FuncChecker struct {
	name     string
	fn       func(ctx context.Context) error
	optional bool
}

// NewFuncChecker creates a checker that is unhealthy when fn fails.
func NewFuncChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn}
}

// NewOptionalChecker creates a checker that is degraded when fn fails.
func NewOptionalChecker(name string, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn, optional: true}
}

func (c *FuncChecker) Name() string {
	return c.name
}

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	if err := c.fn(ctx); err != nil {
		status := StatusUnhealthy
		if c.optional {
			status = StatusDegraded
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok"}
}

// CommandChecker checks that an executable resolves on PATH.
type CommandChecker struct {
	name    string
	command string
}

// NewCommandChecker creates a checker for an external executable.
func NewCommandChecker(name, command string) *CommandChecker {
	return &CommandChecker{name: name, command: command}
}

func (c *CommandChecker) Name() string {
	return c.name
}

func (c *CommandChecker) Check(_ context.Context) CheckResult {
	if c.command == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	path, err := exec.LookPath(c.command)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.command}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// SessionsChecker reports degraded while any session is unhealthy.
// Sick tenants do not make the daemon unready; the monitor restarts them.
type SessionsChecker struct {
	counts func(ctx context.Context) (total, unhealthy int)
}

// NewSessionsChecker creates a checker over the session health counts.
func NewSessionsChecker(counts func(ctx context.Context) (total, unhealthy int)) *SessionsChecker {
	return &SessionsChecker{counts: counts}
}

func (c *SessionsChecker) Name() string {
	return "sessions"
}

func (c *SessionsChecker) Check(ctx context.Context) CheckResult {
	total, unhealthy := c.counts(ctx)
	if unhealthy > 0 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d of %d sessions unhealthy", unhealthy, total),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d sessions", total)}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/events"
	xglog "github.com/ManuGH/sessiond/internal/log"
)

// MonitorConfig defines probing and escalation policy.
type MonitorConfig struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	// FailureThreshold: a session is restarted once its consecutive failures exceed it.
	FailureThreshold    int
	MaxConcurrentProbes int
	// InactiveTimeout terminates sessions idle for longer (0 disables).
	InactiveTimeout time.Duration
	// RestartBurst and RestartEvery form the restart budget shared by all sessions.
	RestartBurst int
	RestartEvery time.Duration
}

// DefaultMonitorConfig returns production defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:            30 * time.Second,
		ProbeTimeout:        5 * time.Second,
		FailureThreshold:    3,
		MaxConcurrentProbes: 16,
		RestartBurst:        5,
		RestartEvery:        10 * time.Second,
	}
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	d := DefaultMonitorConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.MaxConcurrentProbes <= 0 {
		c.MaxConcurrentProbes = d.MaxConcurrentProbes
	}
	if c.RestartBurst <= 0 {
		c.RestartBurst = d.RestartBurst
	}
	if c.RestartEvery <= 0 {
		c.RestartEvery = d.RestartEvery
	}
	return c
}

// Monitor probes engine instances and escalates unhealthy sessions to the controller.
type Monitor struct {
	ctrl   *Controller
	logger zerolog.Logger

	mu      sync.RWMutex
	conf    MonitorConfig
	limiter *rate.Limiter
}

// NewMonitor returns a monitor over ctrl.
func NewMonitor(ctrl *Controller, conf MonitorConfig) *Monitor {
	conf = conf.withDefaults()
	return &Monitor{
		ctrl:    ctrl,
		logger:  xglog.WithComponent("session.monitor"),
		conf:    conf,
		limiter: rate.NewLimiter(rate.Every(conf.RestartEvery), conf.RestartBurst),
	}
}

// SetConfig applies a new policy. The interval takes effect on the next Run.
func (m *Monitor) SetConfig(conf MonitorConfig) {
	conf = conf.withDefaults()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conf = conf
	m.limiter.SetLimit(rate.Every(conf.RestartEvery))
	m.limiter.SetBurst(conf.RestartBurst)
}

func (m *Monitor) config() MonitorConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conf
}

// Run probes on a fixed interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.config().Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", interval).Msg("health monitor started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.ProbeOnce(ctx)
		}
	}
}

type escalation struct {
	id     string
	gen    uint64
	reason string
}

// ProbeOnce performs exactly one probe pass, then escalations, then idle termination.
// It is deterministic and suitable for unit testing.
func (m *Monitor) ProbeOnce(ctx context.Context) {
	conf := m.config()

	var (
		mu       sync.Mutex
		escalate []escalation
	)
	note := func(e *escalation) {
		if e == nil {
			return
		}
		mu.Lock()
		escalate = append(escalate, *e)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(conf.MaxConcurrentProbes)
	for _, rec := range m.ctrl.store.Snapshot(ctx) {
		switch rec.State {
		case model.SessionInitializing, model.SessionStarting, model.SessionTerminated:
			continue
		}
		if rec.Handle == nil {
			// A disconnected session with nothing trying to bring it back is as good as a failed probe.
			if rec.State == model.SessionDisconnected && !m.ctrl.hasAttempt(rec.ID) {
				probesTotal.WithLabelValues("no_instance").Inc()
				note(m.apply(ctx, rec, "", errNoInstance, conf))
			}
			continue
		}

		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, conf.ProbeTimeout)
			err := rec.Handle.Probe(pctx)
			cancel()
			if err != nil {
				probesTotal.WithLabelValues("fail").Inc()
			} else {
				probesTotal.WithLabelValues("ok").Inc()
			}
			note(m.apply(ctx, rec, rec.Handle.ID(), err, conf))
			return nil
		})
	}
	_ = g.Wait()

	for _, e := range escalate {
		m.escalate(ctx, e)
	}

	if conf.InactiveTimeout > 0 {
		ids, err := m.ctrl.TerminateInactive(ctx, conf.InactiveTimeout, TerminateOptions{})
		if err != nil {
			m.logger.Warn().Err(err).Msg("idle termination failed")
		}
		if len(ids) > 0 {
			m.logger.Info().Strs("sessions", ids).Msg("terminated idle sessions")
		}
	}
}

var errNoInstance = errors.New("no engine instance attached")

// apply writes one probe result back if the record is still the one that was probed.
// It returns an escalation when the failure count exceeds the threshold.
func (m *Monitor) apply(ctx context.Context, probed *model.Record, handleID string, probeErr error, conf MonitorConfig) *escalation {
	now := m.ctrl.now()
	rec, err := m.ctrl.store.Update(ctx, probed.ID, func(r *model.Record) error {
		if r.Generation != probed.Generation || r.HandleID() != handleID {
			return model.ErrStaleOperation
		}
		r.LastProbeAt = now
		if probeErr == nil {
			r.FailureCount = 0
			r.LastActivityAt = now
			return nil
		}
		r.FailureCount++
		r.Message = "probe failed: " + probeErr.Error()
		return nil
	})
	if err != nil {
		// Terminated or restarted while probing.
		return nil
	}
	if probeErr == nil {
		return nil
	}

	m.logger.Warn().
		Err(probeErr).
		Str(xglog.FieldSessionID, rec.ID).
		Int(xglog.FieldFailureCount, rec.FailureCount).
		Msg("session probe failed")

	if rec.FailureCount <= conf.FailureThreshold {
		return nil
	}
	m.ctrl.emit(events.TypeUnhealthy, rec, map[string]string{"message": rec.Message})
	return &escalation{id: rec.ID, gen: rec.Generation, reason: rec.Message}
}

func (m *Monitor) escalate(ctx context.Context, e escalation) {
	logger := m.logger.With().Str(xglog.FieldSessionID, e.id).Uint64(xglog.FieldGeneration, e.gen).Logger()
	if !m.limiter.Allow() {
		restartBudgetExhausted.Inc()
		logger.Warn().Msg("restart budget exhausted, deferring escalation to next pass")
		return
	}
	if err := m.ctrl.restartGeneration(ctx, e.id, e.gen, "health"); err != nil {
		if errors.Is(err, model.ErrStaleOperation) || errors.Is(err, model.ErrNotFound) {
			logger.Debug().Err(err).Msg("escalation no longer applicable")
			return
		}
		logger.Error().Err(err).Msg("health restart failed")
		return
	}
	logger.Warn().Str("reason", e.reason).Msg("unhealthy session restarted")
}

// SessionHealth is one row of the health report.
type SessionHealth struct {
	SessionID    string             `json:"sessionId"`
	IsHealthy    bool               `json:"isHealthy"`
	FailureCount int                `json:"failureCount"`
	State        model.SessionState `json:"state"`
	Message      string             `json:"message,omitempty"`
}

// HealthReport aggregates session health.
type HealthReport struct {
	TotalSessions     int             `json:"totalSessions"`
	HealthySessions   int             `json:"healthySessions"`
	UnhealthySessions int             `json:"unhealthySessions"`
	SessionDetails    []SessionHealth `json:"sessionDetails"`
}

// Report builds the aggregate health view. A session is healthy when it is
// waiting for a scan or connected, with no outstanding probe failures.
func (m *Monitor) Report(ctx context.Context) HealthReport {
	recs := m.ctrl.store.Snapshot(ctx)
	rep := HealthReport{
		TotalSessions:  len(recs),
		SessionDetails: make([]SessionHealth, 0, len(recs)),
	}
	for _, r := range recs {
		healthy := r.State.IsServing() && r.FailureCount == 0
		if healthy {
			rep.HealthySessions++
		} else {
			rep.UnhealthySessions++
		}
		rep.SessionDetails = append(rep.SessionDetails, SessionHealth{
			SessionID:    r.ID,
			IsHealthy:    healthy,
			FailureCount: r.FailureCount,
			State:        r.State,
			Message:      r.Message,
		})
	}
	return rep
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sessiond_sessions_active",
		Help: "Session records currently held by the controller.",
	})

	fsmTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_session_transitions_total",
			Help: "Session state transitions.",
		},
		[]string{"state_from", "state_to"},
	)

	launchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_engine_launch_seconds",
			Help:    "Time from launch request to engine handle, including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"result"},
	)

	launchTries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_engine_launch_tries_total",
			Help: "Individual engine launch tries by result.",
		},
		[]string{"result"},
	)

	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_health_probes_total",
			Help: "Engine liveness probes by result.",
		},
		[]string{"result"},
	)

	restartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_session_restarts_total",
			Help: "Session restarts by trigger.",
		},
		[]string{"trigger"},
	)

	restartBudgetExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_session_restart_budget_exhausted_total",
		Help: "Health escalations deferred because the restart budget was empty.",
	})

	terminationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_session_terminations_total",
			Help: "Session terminations by reason.",
		},
		[]string{"reason"},
	)
)

func recordTransition(from, to model.SessionState) {
	if from == to {
		return
	}
	fsmTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func observeLaunch(result string, start time.Time) {
	launchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

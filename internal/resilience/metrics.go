// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sessiond_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"component"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_circuit_breaker_trips_total",
		Help: "Number of times a circuit breaker opened",
	}, []string{"component", "reason"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_circuit_breaker_rejected_total",
		Help: "Calls rejected while a circuit breaker was open",
	}, []string{"component"})
)

func stateValue(s State) float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	terminateSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_engine_proc_terminate_total",
		Help: "Signals sent to engine process groups, by signal and outcome",
	}, []string{"signal", "outcome"})

	waitOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_engine_proc_wait_total",
		Help: "Engine process exits observed during termination, by outcome",
	}, []string{"outcome"})
)

func recordSignal(signal string, err error) {
	switch {
	case err == nil:
		terminateSignals.WithLabelValues(signal, "sent").Inc()
	case isGone(err):
		terminateSignals.WithLabelValues(signal, "esrch").Inc()
	default:
		terminateSignals.WithLabelValues(signal, "error").Inc()
	}
}

func recordWait(forced bool, err error) {
	outcome := "exit0"
	if err != nil {
		outcome = "exit_nonzero"
	}
	if forced {
		outcome = "forced_" + outcome
	}
	waitOutcomes.WithLabelValues(outcome).Inc()
}

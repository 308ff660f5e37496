// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/sessiond/internal/config"
	"github.com/ManuGH/sessiond/internal/domain/session/manager"
)

func TestResolvePolicy(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sig        os.Signal
		want       manager.Policy
	}{
		{"auto sigterm preserves", config.ShutdownAuto, syscall.SIGTERM, manager.PolicyPreserve},
		{"auto interrupt destroys", config.ShutdownAuto, os.Interrupt, manager.PolicyDestroy},
		{"auto without signal preserves", config.ShutdownAuto, nil, manager.PolicyPreserve},
		{"preserve overrides interrupt", config.ShutdownPreserve, os.Interrupt, manager.PolicyPreserve},
		{"destroy overrides sigterm", config.ShutdownDestroy, syscall.SIGTERM, manager.PolicyDestroy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePolicy(tt.configured, tt.sig))
		})
	}
}

func TestShutdownTrigger_KeepsFirstSignal(t *testing.T) {
	configured := config.ShutdownAuto
	trig := NewShutdownTrigger(func() string { return configured })

	assert.Equal(t, manager.PolicyPreserve, trig.Policy())

	trig.Record(os.Interrupt)
	trig.Record(syscall.SIGTERM)
	assert.Equal(t, os.Interrupt, trig.Signal())
	assert.Equal(t, manager.PolicyDestroy, trig.Policy())

	configured = config.ShutdownPreserve
	assert.Equal(t, manager.PolicyPreserve, trig.Policy())
}

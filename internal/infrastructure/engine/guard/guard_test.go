// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	"github.com/ManuGH/sessiond/internal/resilience"
)

type fakeHandle struct{ id string }

func (h fakeHandle) ID() string                { return h.id }
func (fakeHandle) Probe(context.Context) error { return nil }
func (fakeHandle) Close(context.Context) error { return nil }

type flakyEngine struct {
	err   error
	calls int
}

func (f *flakyEngine) Launch(_ context.Context, req ports.LaunchRequest) (ports.Handle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return fakeHandle{id: req.SessionID}, nil
}

func TestEngine_PassesThroughLaunch(t *testing.T) {
	next := &flakyEngine{}
	g := Wrap("guard_pass", next, 2, time.Minute)

	h, err := g.Launch(context.Background(), ports.LaunchRequest{SessionID: "tenant-a"})
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", h.ID())
	assert.Equal(t, resilience.StateClosed, g.State())
}

func TestEngine_OpensAfterFailures(t *testing.T) {
	next := &flakyEngine{err: errors.New("chrome crashed")}
	g := Wrap("guard_open", next, 2, time.Minute)

	for range 2 {
		_, err := g.Launch(context.Background(), ports.LaunchRequest{SessionID: "a"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ports.ErrLaunchPermanent)
	}
	assert.Equal(t, resilience.StateOpen, g.State())

	_, err := g.Launch(context.Background(), ports.LaunchRequest{SessionID: "a"})
	require.ErrorIs(t, err, ports.ErrLaunchPermanent)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, next.calls, "open breaker does not reach the engine")
}

func TestEngine_IgnoresCancellation(t *testing.T) {
	next := &flakyEngine{err: context.Canceled}
	g := Wrap("guard_cancel", next, 1, time.Minute)

	_, err := g.Launch(context.Background(), ports.LaunchRequest{SessionID: "a"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, resilience.StateClosed, g.State())
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/sessiond/internal/domain/session/artifacts"
	"github.com/ManuGH/sessiond/internal/domain/session/manager/testkit"
	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	"github.com/ManuGH/sessiond/internal/domain/session/store"
)

func connected(t *testing.T, env *testEnv, eng *testkit.StepperEngine, id string) {
	t.Helper()
	_, err := env.ctrl.Start(context.Background(), id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		rec, err := env.store.Get(context.Background(), id)
		return err == nil && rec.Handle != nil
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, eng.Emit(id, ports.EventAuthenticated, ""))
	waitState(t, env.ctrl, id, model.SessionConnected)
}

func failureCount(t *testing.T, env *testEnv, id string) int {
	t.Helper()
	rec, err := env.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.FailureCount
}

func TestMonitor_EscalatesExactlyOnceAfterThreshold(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	env := newEnv(t, eng)
	connected(t, env, eng, "s1")

	mon := NewMonitor(env.ctrl, MonitorConfig{FailureThreshold: 2, ProbeTimeout: time.Second})
	ctx := context.Background()

	eng.SetHealthy(false)
	mon.ProbeOnce(ctx)
	assert.Equal(t, 1, failureCount(t, env, "s1"))
	mon.ProbeOnce(ctx)
	assert.Equal(t, 2, failureCount(t, env, "s1"))
	assert.Equal(t, int32(1), eng.Launches(), "threshold reached but not exceeded")

	mon.ProbeOnce(ctx)
	require.Eventually(t, func() bool { return eng.Launches() == 2 }, 2*time.Second, 5*time.Millisecond)

	rec, err := env.store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.FailureCount)
	assert.Equal(t, uint64(2), rec.Generation)
	assert.Equal(t, int32(1), eng.CloseCount())

	// The restarted session is launching; further passes neither probe nor restart it again.
	mon.ProbeOnce(ctx)
	mon.ProbeOnce(ctx)
	require.Eventually(t, func() bool { return eng.OpenHandles() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), eng.Launches())
}

func TestMonitor_SuccessResetsFailureCount(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	env := newEnv(t, eng)
	connected(t, env, eng, "s1")

	mon := NewMonitor(env.ctrl, MonitorConfig{FailureThreshold: 5})
	ctx := context.Background()

	eng.SetHealthy(false)
	mon.ProbeOnce(ctx)
	mon.ProbeOnce(ctx)
	assert.Equal(t, 2, failureCount(t, env, "s1"))

	before, err := env.store.Get(ctx, "s1")
	require.NoError(t, err)

	eng.SetHealthy(true)
	mon.ProbeOnce(ctx)
	after, err := env.store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, after.FailureCount)
	assert.False(t, after.LastActivityAt.Before(before.LastActivityAt))
	assert.False(t, after.LastProbeAt.IsZero())
}

func TestMonitor_RestartBudget(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	env := newEnv(t, eng)
	connected(t, env, eng, "s1")
	connected(t, env, eng, "s2")

	mon := NewMonitor(env.ctrl, MonitorConfig{FailureThreshold: 1, RestartBurst: 1, RestartEvery: time.Hour})
	ctx := context.Background()

	eng.SetHealthy(false)
	mon.ProbeOnce(ctx)
	mon.ProbeOnce(ctx)

	// Only one restart fits the budget; the other session keeps its failures for the next pass.
	require.Eventually(t, func() bool { return eng.Launches() == 3 }, 2*time.Second, 5*time.Millisecond)
	restarted := 0
	for _, id := range []string{"s1", "s2"} {
		rec, err := env.store.Get(ctx, id)
		require.NoError(t, err)
		if rec.Generation == 2 {
			restarted++
		}
	}
	assert.Equal(t, 1, restarted)
}

func TestMonitor_DisconnectedWithoutInstanceCountsAsFailure(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	eng.FailLaunches(1, fmt.Errorf("%w: bad binary", ports.ErrLaunchPermanent))
	env := newEnv(t, eng)

	_, err := env.ctrl.Start(context.Background(), "s1")
	require.NoError(t, err)
	waitState(t, env.ctrl, "s1", model.SessionDisconnected)
	require.Eventually(t, func() bool { return !env.ctrl.hasAttempt("s1") }, time.Second, 5*time.Millisecond)

	mon := NewMonitor(env.ctrl, MonitorConfig{FailureThreshold: 1})
	mon.ProbeOnce(context.Background())
	assert.Equal(t, 1, failureCount(t, env, "s1"))

	mon.ProbeOnce(context.Background())
	require.Eventually(t, func() bool { return eng.OpenHandles() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), eng.Launches())
}

func TestMonitor_SkipsTerminatedDuringProbe(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	env := newEnv(t, eng)
	connected(t, env, eng, "s1")

	mon := NewMonitor(env.ctrl, MonitorConfig{FailureThreshold: 1})
	snapshot, err := env.store.Get(context.Background(), "s1")
	require.NoError(t, err)

	require.NoError(t, env.ctrl.Terminate(context.Background(), "s1", TerminateOptions{}))

	// A result for a record that is gone is dropped, not resurrected.
	assert.Nil(t, mon.apply(context.Background(), snapshot, snapshot.HandleID(), testkit.ErrUnhealthy, mon.config()))
	_, err = env.store.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMonitor_InactiveTimeout(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	env := newEnv(t, eng)
	connected(t, env, eng, "s1")

	mon := NewMonitor(env.ctrl, MonitorConfig{InactiveTimeout: time.Nanosecond})
	// The successful probe refreshes activity, but by the time idle termination
	// runs a nanosecond has passed.
	time.Sleep(time.Millisecond)
	mon.ProbeOnce(context.Background())
	assert.Empty(t, env.ctrl.List(context.Background()))
}

// Sessions restored lazily exist only on disk until their first Status; the idle
// sweep must leave them alone no matter how long the daemon was down.
func TestMonitor_InactiveTimeoutKeepsRestoredSessions(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	journal := newMemJournal()
	env := newEnv(t, eng, func(_ *Config, d *Deps) { d.Journal = journal })
	ctx := context.Background()

	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.art.WriteMarker("s1", artifacts.Marker{CreatedAt: stale, AuthenticatedAt: stale}))
	require.NoError(t, journal.Upsert(ctx, store.JournalEntry{SessionID: "s1", CreatedAt: stale, LastActivityAt: stale}))

	res, err := env.ctrl.Recover(ctx, RecoverOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, res.Restored)

	rec, err := env.store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, rec.CreatedAt.Equal(stale))
	assert.WithinDuration(t, time.Now(), rec.LastActivityAt, time.Minute, "downtime does not count as inactivity")

	// Even an old activity stamp does not expire a session that has not resumed yet.
	_, err = env.store.Update(ctx, "s1", func(r *model.Record) error {
		r.LastActivityAt = stale
		return nil
	})
	require.NoError(t, err)

	NewMonitor(env.ctrl, MonitorConfig{InactiveTimeout: time.Hour}).ProbeOnce(ctx)

	st, err := env.ctrl.Status(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, st.Persisted)
	require.Eventually(t, func() bool { return eng.OpenHandles() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestMonitor_Report(t *testing.T) {
	eng := testkit.NewStepperEngine()
	eng.AllowLaunch()
	env := newEnv(t, eng)
	connected(t, env, eng, "healthy")
	connected(t, env, eng, "sick")

	_, err := env.store.Update(context.Background(), "sick", func(r *model.Record) error {
		r.FailureCount = 2
		r.Message = "probe failed: timeout"
		return nil
	})
	require.NoError(t, err)

	rep := NewMonitor(env.ctrl, MonitorConfig{}).Report(context.Background())
	assert.Equal(t, 2, rep.TotalSessions)
	assert.Equal(t, 1, rep.HealthySessions)
	assert.Equal(t, 1, rep.UnhealthySessions)
	require.Len(t, rep.SessionDetails, 2)
	assert.Equal(t, SessionHealth{SessionID: "healthy", IsHealthy: true, State: model.SessionConnected}, rep.SessionDetails[0])
	assert.Equal(t, "probe failed: timeout", rep.SessionDetails[1].Message)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	env := newEnv(t, testkit.NewStepperEngine())
	mon := NewMonitor(env.ctrl, MonitorConfig{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitor_SetConfig(t *testing.T) {
	env := newEnv(t, testkit.NewStepperEngine())
	mon := NewMonitor(env.ctrl, MonitorConfig{})
	assert.Equal(t, 3, mon.config().FailureThreshold)

	mon.SetConfig(MonitorConfig{FailureThreshold: 7})
	assert.Equal(t, 7, mon.config().FailureThreshold)
}

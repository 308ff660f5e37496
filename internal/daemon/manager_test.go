// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/sessiond/internal/config"
	"github.com/ManuGH/sessiond/internal/domain/session/manager"
	"github.com/ManuGH/sessiond/internal/log"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve listen addr: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ReadTimeout:       time.Second,
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      time.Second,
		IdleTimeout:       10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   2 * time.Second,
	}
}

// recorder captures the order of shutdown steps.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, s)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

type fakeSessions struct {
	rec    *recorder
	policy manager.Policy
	err    error
}

func (f *fakeSessions) Shutdown(_ context.Context, p manager.Policy) error {
	f.policy = p
	f.rec.add("sessions")
	return f.err
}

func TestNewManager_ValidatesDeps(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler()})
	require.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(testServerConfig(), Deps{Logger: log.WithComponent("test")})
	require.ErrorIs(t, err, ErrMissingAPIHandler)

	mgr, err := NewManager(testServerConfig(), Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestManager_Shutdown_NotStarted(t *testing.T) {
	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:     log.WithComponent("test"),
		APIAddr:    "127.0.0.1:0",
		APIHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_StartStop_ShutdownOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := &recorder{}
	sessions := &fakeSessions{rec: rec}
	apiAddr := reserveListenAddr(t)
	metricsAddr := reserveListenAddr(t)

	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:         log.WithComponent("test"),
		APIAddr:        apiAddr,
		APIHandler:     http.NotFoundHandler(),
		MetricsAddr:    metricsAddr,
		MetricsHandler: http.NotFoundHandler(),
		Sessions:       sessions,
		Policy:         func() manager.Policy { return manager.PolicyDestroy },
	})
	require.NoError(t, err)
	mgr.RegisterShutdownHook("journal", func(context.Context) error { rec.add("journal"); return nil })
	mgr.RegisterShutdownHook("events", func(context.Context) error { rec.add("events"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()

	require.NoError(t, waitForListen(apiAddr, 2*time.Second))
	require.NoError(t, waitForListen(metricsAddr, 2*time.Second))

	cancel()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	assert.Equal(t, []string{"sessions", "events", "journal"}, rec.get())
	assert.Equal(t, manager.PolicyDestroy, sessions.policy)

	_, err = net.DialTimeout("tcp", apiAddr, 100*time.Millisecond)
	assert.Error(t, err, "API listener must be closed after shutdown")
}

func TestManager_ShutdownJoinsErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := &recorder{}
	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:     log.WithComponent("test"),
		APIAddr:    "127.0.0.1:0",
		APIHandler: http.NotFoundHandler(),
		Sessions:   &fakeSessions{rec: rec, err: errors.New("engine stuck")},
	})
	require.NoError(t, err)
	mgr.RegisterShutdownHook("journal", func(context.Context) error { return errors.New("close failed") })

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine stuck")
		assert.Contains(t, err.Error(), "close failed")
		assert.Contains(t, err.Error(), string(manager.PolicyPreserve))
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestManager_Shutdown_TimesOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	requestStarted := make(chan struct{})
	releaseHandler := make(chan struct{})
	var startOnce sync.Once
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		startOnce.Do(func() { close(requestStarted) })
		select {
		case <-r.Context().Done():
		case <-releaseHandler:
		}
	})

	serverCfg := testServerConfig()
	serverCfg.ShutdownTimeout = 100 * time.Millisecond
	apiAddr := reserveListenAddr(t)

	mgr, err := NewManager(serverCfg, Deps{
		Logger:     log.WithComponent("test"),
		APIAddr:    apiAddr,
		APIHandler: handler,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	require.NoError(t, waitForListen(apiAddr, 2*time.Second))

	requestDone := make(chan struct{})
	go func() {
		defer close(requestDone)
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+apiAddr, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil {
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected in-flight request before shutdown")
	}

	cancel()

	select {
	case err := <-errChan:
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "shutdown errors"), err.Error())
	case <-time.After(3 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	close(releaseHandler)
	select {
	case <-requestDone:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked request did not terminate after shutdown")
	}
}

func TestManager_PropagatesListenErrors(t *testing.T) {
	testServer := httptest.NewServer(http.NotFoundHandler())
	defer testServer.Close()

	rec := &recorder{}
	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:     log.WithComponent("test"),
		APIAddr:    testServer.Listener.Addr().String(),
		APIHandler: http.NotFoundHandler(),
		Sessions:   &fakeSessions{rec: rec},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = mgr.Start(ctx)
	require.ErrorIs(t, err, ErrServerStartFailed)
	assert.Equal(t, []string{"sessions"}, rec.get(), "sessions are still shut down after a failed start")
}

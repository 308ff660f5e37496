// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []Checker
		wantReady bool
		want      Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Checker{
			&mockChecker{name: "a", status: StatusHealthy},
			&mockChecker{name: "b", status: StatusHealthy},
		}, true, StatusHealthy},
		{"degraded is still ready", []Checker{&mockChecker{name: "a", status: StatusDegraded}}, true, StatusDegraded},
		{"unhealthy wins over degraded", []Checker{
			&mockChecker{name: "a", status: StatusUnhealthy},
			&mockChecker{name: "b", status: StatusDegraded},
		}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checkers))
		})
	}
}

func TestManager_CheckTimeoutIsApplied(t *testing.T) {
	m := NewManager("v1")
	m.checkTimeout = 20 * time.Millisecond
	m.RegisterChecker(NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline exceeded")
}

func TestManager_ServeHealth(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "test", status: StatusUnhealthy})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	m.ServeHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "liveness is always 200")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Nil(t, resp.Checks)

	req = httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil)
	w = httptest.NewRecorder()
	m.ServeHealth(w, req)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Len(t, resp.Checks, 1)
}

func TestManager_ServeReady(t *testing.T) {
	tests := []struct {
		name           string
		status         Status
		expectedStatus int
		expectedReady  bool
	}{
		{"healthy", StatusHealthy, http.StatusOK, true},
		{"degraded", StatusDegraded, http.StatusOK, true},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0")
			m.RegisterChecker(&mockChecker{name: "test", status: tt.status})

			w := httptest.NewRecorder()
			m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedReady, resp.Ready)
		})
	}
}

func TestManager_ServeEncodingError(t *testing.T) {
	m := NewManager("v1.0.0")
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)

	// Must not panic when the client goes away mid-write.
	m.ServeHealth(&brokenWriter{header: make(http.Header)}, req)
	m.ServeReady(&brokenWriter{header: make(http.Header)}, req)
}

func TestFuncChecker(t *testing.T) {
	ok := NewFuncChecker("journal", func(context.Context) error { return nil })
	assert.Equal(t, "journal", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	failing := NewFuncChecker("journal", func(context.Context) error { return errors.New("database is locked") })
	res := failing.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "database is locked", res.Error)

	optional := NewOptionalChecker("redis", func(context.Context) error { return errors.New("connection refused") })
	assert.Equal(t, StatusDegraded, optional.Check(context.Background()).Status)
}

func TestCommandChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewCommandChecker("engine", "").Check(context.Background()).Status)
	assert.Equal(t, StatusHealthy, NewCommandChecker("engine", "sh").Check(context.Background()).Status)

	res := NewCommandChecker("engine", "definitely-not-a-real-binary-4f1c").Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestSessionsChecker(t *testing.T) {
	c := NewSessionsChecker(func(context.Context) (int, int) { return 3, 1 })
	assert.Equal(t, "sessions", c.Name())
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "1 of 3 sessions unhealthy", res.Message)

	c = NewSessionsChecker(func(context.Context) (int, int) { return 2, 0 })
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

// brokenWriter is a ResponseWriter that always fails to write
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header {
	return w.header
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func (w *brokenWriter) WriteHeader(int) {}

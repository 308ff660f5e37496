// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHolder(t *testing.T, body string) (*ConfigHolder, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SESSIOND_DATA_DIR", filepath.Join(dir, "data"))
	path := writeConfig(t, dir, body)

	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	h := NewConfigHolder(cfg, loader)
	h.debounce = 10 * time.Millisecond
	return h, path
}

func TestConfigHolder_ReloadNotifiesListeners(t *testing.T) {
	h, path := newTestHolder(t, "api:\n  key: one\n")
	assert.Equal(t, "one", h.Get().API.Key)

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("api:\n  key: two\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "two", h.Get().API.Key)
	select {
	case cfg := <-ch:
		assert.Equal(t, "two", cfg.API.Key)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestConfigHolder_InvalidReloadKeepsCurrent(t *testing.T) {
	h, path := newTestHolder(t, "health:\n  failureThreshold: 4\n")

	require.NoError(t, os.WriteFile(path, []byte("health:\n  failureThreshold: 0\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 4, h.Get().Health.FailureThreshold)
}

func TestConfigHolder_FullListenerIsSkipped(t *testing.T) {
	h, _ := newTestHolder(t, "")
	ch := make(chan AppConfig) // unbuffered, nobody reading
	h.RegisterListener(ch)

	done := make(chan error, 1)
	go func() { done <- h.Reload(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reload blocked on a listener")
	}
}

func TestConfigHolder_WatcherReloadsOnWrite(t *testing.T) {
	h, path := newTestHolder(t, "api:\n  key: one\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.StartWatcher(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("api:\n  key: watched\n"), 0o600))
	require.Eventually(t, func() bool { return h.Get().API.Key == "watched" }, 3*time.Second, 20*time.Millisecond)
}

func TestConfigHolder_WatcherDisabledWithoutFile(t *testing.T) {
	t.Setenv("SESSIOND_DATA_DIR", t.TempDir())
	loader := NewLoader("", "test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(cfg, loader)
	require.NoError(t, h.StartWatcher(context.Background()))
	h.Stop()
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSIOND_DATA_DIR", filepath.Join(dir, "data"))

	cfg, err := NewLoader("", "v1.0.0").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.0.0", cfg.Version)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, "x-api-key", cfg.API.KeyHeader)
	assert.Equal(t, RestoreEager, cfg.Sessions.RestoreMode)
	assert.Equal(t, ShutdownAuto, cfg.Shutdown.Policy)
	assert.Equal(t, EngineStub, cfg.Engine.Kind)
	assert.Equal(t, 3, cfg.Health.FailureThreshold)
	assert.Equal(t, filepath.Join(dir, "data", ".sessiond", "journal.db"), cfg.Sessions.JournalPath)
	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
logLevel: debug
api:
  listenAddr: "127.0.0.1:9000"
  key: from-file
sessions:
  dataDir: `+filepath.Join(dir, "sessions")+`
  restoreMode: lazy
health:
  interval: 10s
  failureThreshold: 5
engine:
  kind: bridge
  command: /usr/bin/engine
  args: ["--headless"]
`)

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.API.ListenAddr)
	assert.Equal(t, "from-file", cfg.API.Key)
	assert.Equal(t, RestoreLazy, cfg.Sessions.RestoreMode)
	assert.Equal(t, 10*time.Second, cfg.Health.Interval)
	assert.Equal(t, 5, cfg.Health.FailureThreshold)
	assert.Equal(t, 5*time.Second, cfg.Health.ProbeTimeout, "absent keys keep defaults")
	assert.Equal(t, EngineBridge, cfg.Engine.Kind)
	assert.Equal(t, []string{"--headless"}, cfg.Engine.Args)
}

func TestLoad_EngineSection(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
sessions:
  dataDir: `+filepath.Join(dir, "sessions")+`
engine:
  kind: bridge
  command: /opt/engine/run
  closeGrace: 2s
  breaker:
    threshold: 3
`)
	t.Setenv("SESSIOND_ENGINE_BREAKER_COOLDOWN", "1m")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	want := EngineConfig{
		Kind:       EngineBridge,
		Command:    "/opt/engine/run",
		CloseGrace: 2 * time.Second,
		Stub:       Defaults().Engine.Stub,
		Breaker:    BreakerConfig{Threshold: 3, Cooldown: time.Minute},
	}
	if diff := cmp.Diff(want, cfg.Engine); diff != "" {
		t.Errorf("engine config mismatch (-want +got):\n%s", diff)
	}
}

func TestENVOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
api:
  key: from-file
sessions:
  dataDir: `+filepath.Join(dir, "sessions")+`
`)
	t.Setenv("SESSIOND_API_KEY", "from-env")
	t.Setenv("SESSIOND_HEALTH_FAILURE_THRESHOLD", "9")
	t.Setenv("SESSIOND_ENGINE_ARGS", "a, b,,c")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.API.Key)
	assert.Equal(t, 9, cfg.Health.FailureThreshold)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Engine.Args)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
api:
  listenAddr: ":8080"
  bogus: true
`)
	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsNonYAMLAndMultipleDocuments(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o600))
	_, err := NewLoader(jsonPath, "test").Load()
	assert.ErrorContains(t, err, "only YAML supported")

	path := writeConfig(t, dir, "logLevel: info\n---\nlogLevel: debug\n")
	_, err = NewLoader(path, "test").Load()
	assert.ErrorContains(t, err, "multiple documents")
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SESSIOND_DATA_DIR", filepath.Join(dir, "data"))
	path := writeConfig(t, dir, "")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
}

func TestLoad_ConsumedEnvKeys(t *testing.T) {
	t.Setenv("SESSIOND_DATA_DIR", t.TempDir())
	l := NewLoader("", "test")
	_, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, l.ConsumedEnvKeys, "SESSIOND_API_KEY")
	assert.Contains(t, l.ConsumedEnvKeys, "SESSIOND_SHUTDOWN_POLICY")
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) AppConfig {
		cfg := Defaults()
		cfg.Sessions.DataDir = t.TempDir()
		cfg.Sessions.JournalPath = DefaultJournalPath(cfg.Sessions.DataDir)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"bad log level", func(c *AppConfig) { c.LogLevel = "loud" }, "LogLevel"},
		{"bad listen addr", func(c *AppConfig) { c.API.ListenAddr = "nope" }, "API.ListenAddr"},
		{"metrics on api port", func(c *AppConfig) { c.Metrics.ListenAddr = c.API.ListenAddr }, "Metrics.ListenAddr"},
		{"restore mode", func(c *AppConfig) { c.Sessions.RestoreMode = "sometimes" }, "Sessions.RestoreMode"},
		{"probe longer than interval", func(c *AppConfig) { c.Health.ProbeTimeout = c.Health.Interval }, "Health.ProbeTimeout"},
		{"zero threshold", func(c *AppConfig) { c.Health.FailureThreshold = 0 }, "Health.FailureThreshold"},
		{"shutdown policy", func(c *AppConfig) { c.Shutdown.Policy = "maybe" }, "Shutdown.Policy"},
		{"bridge without command", func(c *AppConfig) { c.Engine.Kind = EngineBridge }, "Engine.Command"},
		{"engine kind", func(c *AppConfig) { c.Engine.Kind = "chrome" }, "Engine.Kind"},
		{"breaker cooldown", func(c *AppConfig) { c.Engine.Breaker.Cooldown = 0 }, "Engine.Breaker.Cooldown"},
		{"breaker threshold", func(c *AppConfig) { c.Engine.Breaker.Threshold = -1 }, "Engine.Breaker.Threshold"},
		{"sampling rate", func(c *AppConfig) {
			c.Telemetry.Enabled = true
			c.Telemetry.SamplingRate = 2
		}, "Telemetry.SamplingRate"},
	}

	require.NoError(t, Validate(base(t)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.API.Key = "super-secret"
	cfg.Events.RedisPassword = "hunter2"

	s := cfg.String()
	assert.NotContains(t, s, "super-secret")
	assert.NotContains(t, s, "hunter2")
	assert.Equal(t, "super-secret", cfg.API.Key, "original is untouched")
}

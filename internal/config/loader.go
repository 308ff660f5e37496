// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the loader looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// ConfigPath returns the file the loader reads, or "" for ENV-only configuration.
func (l *Loader) ConfigPath() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return parseCommaSeparated(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// The order is strict: defaults, file (unknown keys rejected), env, derived paths, validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.Sessions.DataDir); err == nil {
		cfg.Sessions.DataDir = abs
	}
	if cfg.Sessions.JournalPath == "" {
		cfg.Sessions.JournalPath = DefaultJournalPath(cfg.Sessions.DataDir)
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultJournalPath places the journal in a dot directory the artifact scan ignores.
func DefaultJournalPath(dataDir string) string {
	return filepath.Join(dataDir, ".sessiond", "journal.db")
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields are fatal to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig overrides cfg with every SESSIOND_* variable that is set.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)

	cfg.API.ListenAddr = l.envString(EnvPrefix+"API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.Key = l.envString(EnvPrefix+"API_KEY", cfg.API.Key)
	cfg.API.KeyHeader = l.envString(EnvPrefix+"API_KEY_HEADER", cfg.API.KeyHeader)
	cfg.API.AllowAnonymous = l.envBool(EnvPrefix+"API_ALLOW_ANONYMOUS", cfg.API.AllowAnonymous)
	cfg.API.RateLimitRPM = l.envInt(EnvPrefix+"API_RATE_LIMIT_RPM", cfg.API.RateLimitRPM)

	cfg.Server.ReadTimeout = l.envDuration(EnvPrefix+"SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = l.envDuration(EnvPrefix+"SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = l.envDuration(EnvPrefix+"SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration(EnvPrefix+"SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Metrics.ListenAddr = l.envString(EnvPrefix+"METRICS_LISTEN_ADDR", cfg.Metrics.ListenAddr)

	cfg.Sessions.DataDir = l.envString(EnvPrefix+"DATA_DIR", cfg.Sessions.DataDir)
	cfg.Sessions.JournalPath = l.envString(EnvPrefix+"JOURNAL_PATH", cfg.Sessions.JournalPath)
	cfg.Sessions.MaxConcurrentLaunches = l.envInt(EnvPrefix+"MAX_CONCURRENT_LAUNCHES", cfg.Sessions.MaxConcurrentLaunches)
	cfg.Sessions.LaunchTimeout = l.envDuration(EnvPrefix+"LAUNCH_TIMEOUT", cfg.Sessions.LaunchTimeout)
	cfg.Sessions.LaunchRetries = l.envInt(EnvPrefix+"LAUNCH_RETRIES", cfg.Sessions.LaunchRetries)
	cfg.Sessions.CloseTimeout = l.envDuration(EnvPrefix+"CLOSE_TIMEOUT", cfg.Sessions.CloseTimeout)
	cfg.Sessions.RestoreMode = l.envString(EnvPrefix+"RESTORE_MODE", cfg.Sessions.RestoreMode)

	cfg.Health.Interval = l.envDuration(EnvPrefix+"HEALTH_INTERVAL", cfg.Health.Interval)
	cfg.Health.ProbeTimeout = l.envDuration(EnvPrefix+"HEALTH_PROBE_TIMEOUT", cfg.Health.ProbeTimeout)
	cfg.Health.FailureThreshold = l.envInt(EnvPrefix+"HEALTH_FAILURE_THRESHOLD", cfg.Health.FailureThreshold)
	cfg.Health.MaxConcurrentProbes = l.envInt(EnvPrefix+"HEALTH_MAX_CONCURRENT_PROBES", cfg.Health.MaxConcurrentProbes)
	cfg.Health.InactiveTimeout = l.envDuration(EnvPrefix+"INACTIVE_TIMEOUT", cfg.Health.InactiveTimeout)
	cfg.Health.RestartBurst = l.envInt(EnvPrefix+"RESTART_BURST", cfg.Health.RestartBurst)
	cfg.Health.RestartEvery = l.envDuration(EnvPrefix+"RESTART_EVERY", cfg.Health.RestartEvery)

	cfg.Shutdown.Policy = l.envString(EnvPrefix+"SHUTDOWN_POLICY", cfg.Shutdown.Policy)
	cfg.Shutdown.Timeout = l.envDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.Shutdown.Timeout)

	cfg.Engine.Kind = l.envString(EnvPrefix+"ENGINE_KIND", cfg.Engine.Kind)
	cfg.Engine.Command = l.envString(EnvPrefix+"ENGINE_COMMAND", cfg.Engine.Command)
	cfg.Engine.Args = l.envList(EnvPrefix+"ENGINE_ARGS", cfg.Engine.Args)
	cfg.Engine.CloseGrace = l.envDuration(EnvPrefix+"ENGINE_CLOSE_GRACE", cfg.Engine.CloseGrace)
	cfg.Engine.Stub.ScanAfter = l.envDuration(EnvPrefix+"STUB_SCAN_AFTER", cfg.Engine.Stub.ScanAfter)
	cfg.Engine.Breaker.Threshold = l.envInt(EnvPrefix+"ENGINE_BREAKER_THRESHOLD", cfg.Engine.Breaker.Threshold)
	cfg.Engine.Breaker.Cooldown = l.envDuration(EnvPrefix+"ENGINE_BREAKER_COOLDOWN", cfg.Engine.Breaker.Cooldown)

	cfg.Events.Buffer = l.envInt(EnvPrefix+"EVENTS_BUFFER", cfg.Events.Buffer)
	cfg.Events.RedisAddr = l.envString(EnvPrefix+"REDIS_ADDR", cfg.Events.RedisAddr)
	cfg.Events.RedisPassword = l.envString(EnvPrefix+"REDIS_PASSWORD", cfg.Events.RedisPassword)
	cfg.Events.RedisDB = l.envInt(EnvPrefix+"REDIS_DB", cfg.Events.RedisDB)
	cfg.Events.Channel = l.envString(EnvPrefix+"EVENTS_CHANNEL", cfg.Events.Channel)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString(EnvPrefix+"ENVIRONMENT", cfg.Telemetry.Environment)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads, validates and hot-reloads the daemon configuration.
package config

import "time"

// AppConfig is the effective configuration after defaults, file and environment are merged.
// The YAML file decodes directly onto it, so absent keys keep their defaults.
type AppConfig struct {
	Version  string `yaml:"-"`
	LogLevel string `yaml:"logLevel"`

	API       APIConfig       `yaml:"api"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Health    HealthConfig    `yaml:"health"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
	Engine    EngineConfig    `yaml:"engine"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// APIConfig controls the tenant-facing HTTP API.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// Key is the shared API key. Empty refuses every request unless AllowAnonymous is set.
	Key            string `yaml:"key"`
	KeyHeader      string `yaml:"keyHeader"`
	AllowAnonymous bool   `yaml:"allowAnonymous"`
	// RateLimitRPM is the per-IP request budget per minute (0 disables).
	RateLimitRPM int `yaml:"rateLimitRPM"`
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	MaxHeaderBytes    int           `yaml:"maxHeaderBytes"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// MetricsConfig controls the Prometheus listener. An empty address disables it.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// SessionsConfig controls session storage and engine launches.
type SessionsConfig struct {
	// DataDir is the artifact root; every session owns DataDir/<sessionId>.
	DataDir string `yaml:"dataDir"`
	// JournalPath is the sqlite journal. Empty resolves to DataDir/.sessiond/journal.db.
	JournalPath           string        `yaml:"journalPath"`
	MaxConcurrentLaunches int           `yaml:"maxConcurrentLaunches"`
	LaunchTimeout         time.Duration `yaml:"launchTimeout"`
	LaunchRetries         int           `yaml:"launchRetries"`
	CloseTimeout          time.Duration `yaml:"closeTimeout"`
	// RestoreMode is "eager" (launch at boot) or "lazy" (launch on first access).
	RestoreMode string `yaml:"restoreMode"`
}

// HealthConfig controls the health monitor.
type HealthConfig struct {
	Interval            time.Duration `yaml:"interval"`
	ProbeTimeout        time.Duration `yaml:"probeTimeout"`
	FailureThreshold    int           `yaml:"failureThreshold"`
	MaxConcurrentProbes int           `yaml:"maxConcurrentProbes"`
	// InactiveTimeout terminates idle sessions (0 disables).
	InactiveTimeout time.Duration `yaml:"inactiveTimeout"`
	RestartBurst    int           `yaml:"restartBurst"`
	RestartEvery    time.Duration `yaml:"restartEvery"`
}

// ShutdownConfig controls what happens to sessions on exit.
type ShutdownConfig struct {
	// Policy is "auto" (derive from the signal), "preserve" or "destroy".
	Policy  string        `yaml:"policy"`
	Timeout time.Duration `yaml:"timeout"`
}

// EngineConfig selects and configures the engine adapter.
type EngineConfig struct {
	// Kind is "stub" or "bridge".
	Kind       string           `yaml:"kind"`
	Command    string           `yaml:"command"`
	Args       []string         `yaml:"args"`
	CloseGrace time.Duration    `yaml:"closeGrace"`
	Stub       StubEngineConfig `yaml:"stub"`
	// Breaker stops launches after repeated engine failures. Threshold 0 disables it.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the engine launch circuit breaker.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// StubEngineConfig tunes the simulated engine.
type StubEngineConfig struct {
	LaunchDelay time.Duration `yaml:"launchDelay"`
	QRRefresh   time.Duration `yaml:"qrRefresh"`
	ScanAfter   time.Duration `yaml:"scanAfter"`
}

// EventsConfig controls session event delivery.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
	// RedisAddr enables Redis Pub/Sub publishing when set.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	Channel       string `yaml:"channel"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

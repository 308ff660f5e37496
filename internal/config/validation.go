// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/sessiond/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package.
// The data directory is created when missing.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("LogLevel", "must be one of debug, info, warn, error", cfg.LogLevel)
	}

	v.ListenAddr("API.ListenAddr", cfg.API.ListenAddr)
	v.NotEmpty("API.KeyHeader", cfg.API.KeyHeader)
	v.NonNegative("API.RateLimitRPM", cfg.API.RateLimitRPM)
	if cfg.Metrics.ListenAddr != "" {
		v.ListenAddr("Metrics.ListenAddr", cfg.Metrics.ListenAddr)
		if cfg.Metrics.ListenAddr == cfg.API.ListenAddr {
			v.AddError("Metrics.ListenAddr", "must differ from API.ListenAddr", cfg.Metrics.ListenAddr)
		}
	}

	v.Directory("Sessions.DataDir", cfg.Sessions.DataDir, false)
	v.NotEmpty("Sessions.JournalPath", cfg.Sessions.JournalPath)
	v.Range("Sessions.MaxConcurrentLaunches", cfg.Sessions.MaxConcurrentLaunches, 1, 256)
	v.Range("Sessions.LaunchRetries", cfg.Sessions.LaunchRetries, 0, 10)
	v.MinDuration("Sessions.LaunchTimeout", cfg.Sessions.LaunchTimeout, time.Second)
	v.MinDuration("Sessions.CloseTimeout", cfg.Sessions.CloseTimeout, 100*time.Millisecond)
	v.OneOf("Sessions.RestoreMode", cfg.Sessions.RestoreMode, []string{RestoreEager, RestoreLazy})

	v.MinDuration("Health.Interval", cfg.Health.Interval, 100*time.Millisecond)
	v.MinDuration("Health.ProbeTimeout", cfg.Health.ProbeTimeout, 10*time.Millisecond)
	if cfg.Health.ProbeTimeout >= cfg.Health.Interval {
		v.AddError("Health.ProbeTimeout", "must be shorter than Health.Interval", cfg.Health.ProbeTimeout)
	}
	v.Positive("Health.FailureThreshold", cfg.Health.FailureThreshold)
	v.Range("Health.MaxConcurrentProbes", cfg.Health.MaxConcurrentProbes, 1, 1024)
	if cfg.Health.InactiveTimeout < 0 {
		v.AddError("Health.InactiveTimeout", "cannot be negative", cfg.Health.InactiveTimeout)
	}
	v.Positive("Health.RestartBurst", cfg.Health.RestartBurst)
	v.MinDuration("Health.RestartEvery", cfg.Health.RestartEvery, time.Millisecond)

	v.OneOf("Shutdown.Policy", cfg.Shutdown.Policy, []string{ShutdownAuto, ShutdownPreserve, ShutdownDestroy})
	v.MinDuration("Shutdown.Timeout", cfg.Shutdown.Timeout, time.Second)

	v.OneOf("Engine.Kind", cfg.Engine.Kind, []string{EngineStub, EngineBridge})
	if cfg.Engine.Kind == EngineBridge {
		v.NotEmpty("Engine.Command", cfg.Engine.Command)
	}
	v.MinDuration("Engine.CloseGrace", cfg.Engine.CloseGrace, 10*time.Millisecond)
	v.NonNegative("Engine.Breaker.Threshold", cfg.Engine.Breaker.Threshold)
	if cfg.Engine.Breaker.Threshold > 0 {
		v.MinDuration("Engine.Breaker.Cooldown", cfg.Engine.Breaker.Cooldown, time.Second)
	}

	v.Positive("Events.Buffer", cfg.Events.Buffer)
	if cfg.Events.RedisAddr != "" {
		v.NotEmpty("Events.Channel", cfg.Events.Channel)
		v.Range("Events.RedisDB", cfg.Events.RedisDB, 0, 15)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}

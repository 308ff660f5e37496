// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"time"
)

// Restore modes.
const (
	RestoreEager = "eager"
	RestoreLazy  = "lazy"
)

// Shutdown policies accepted in configuration.
const (
	ShutdownAuto     = "auto"
	ShutdownPreserve = "preserve"
	ShutdownDestroy  = "destroy"
)

// Engine kinds.
const (
	EngineStub   = "stub"
	EngineBridge = "bridge"
)

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		API: APIConfig{
			ListenAddr:   ":8080",
			KeyHeader:    "x-api-key",
			RateLimitRPM: 600,
		},
		Server: ServerConfig{
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
			ShutdownTimeout:   10 * time.Second,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		Sessions: SessionsConfig{
			DataDir:               "data/sessions",
			MaxConcurrentLaunches: 4,
			LaunchTimeout:         60 * time.Second,
			LaunchRetries:         2,
			CloseTimeout:          10 * time.Second,
			RestoreMode:           RestoreEager,
		},
		Health: HealthConfig{
			Interval:            30 * time.Second,
			ProbeTimeout:        5 * time.Second,
			FailureThreshold:    3,
			MaxConcurrentProbes: 16,
			RestartBurst:        5,
			RestartEvery:        10 * time.Second,
		},
		Shutdown: ShutdownConfig{
			Policy:  ShutdownAuto,
			Timeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			Kind:       EngineStub,
			CloseGrace: 5 * time.Second,
			Stub: StubEngineConfig{
				QRRefresh: 20 * time.Second,
				ScanAfter: 5 * time.Second,
			},
			Breaker: BreakerConfig{
				Threshold: 5,
				Cooldown:  30 * time.Second,
			},
		},
		Events: EventsConfig{
			Buffer:  256,
			Channel: "sessiond.events",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

const redacted = "***"

// Redacted returns a copy with secrets masked, suitable for logging.
func (c AppConfig) Redacted() AppConfig {
	if c.API.Key != "" {
		c.API.Key = redacted
	}
	if c.Events.RedisPassword != "" {
		c.Events.RedisPassword = redacted
	}
	c.Engine.Args = append([]string(nil), c.Engine.Args...)
	return c
}

// String implements fmt.Stringer without leaking secrets.
func (c AppConfig) String() string {
	r := c.Redacted()
	return fmt.Sprintf("AppConfig{API:%+v Sessions:%+v Health:%+v Shutdown:%+v Engine:%+v Events:%+v}",
		r.API, r.Sessions, r.Health, r.Shutdown, r.Engine, r.Events)
}

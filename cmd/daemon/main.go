// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command daemon runs the multi-tenant session manager.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ManuGH/sessiond/internal/config"
	"github.com/ManuGH/sessiond/internal/daemon"
	"github.com/ManuGH/sessiond/internal/health"
	xglog "github.com/ManuGH/sessiond/internal/log"
	"github.com/ManuGH/sessiond/internal/telemetry"
	"github.com/ManuGH/sessiond/internal/version"
)

// maskRedisAddr removes credentials from a redis address for safe logging.
func maskRedisAddr(addr string) string {
	if !strings.Contains(addr, "://") {
		return addr
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return "invalid-addr-redacted"
	}
	parsed.User = nil
	return parsed.String()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", ""))
	}

	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger := xglog.WithComponent("daemon")
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: daemon.ServiceName,
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	source := "env+defaults"
	if effectiveConfigPath != "" {
		source = "file"
	}
	logger.Info().
		Str("event", "config.loaded").
		Str("source", source).
		Str("path", effectiveConfigPath).
		Msg("configuration loaded")

	ctx := context.Background()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	var tp *telemetry.Provider
	if cfg.Telemetry.Enabled {
		tp, err = telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    daemon.ServiceName,
			ServiceVersion: version.Version,
			Environment:    cfg.Telemetry.Environment,
			ExporterType:   cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			SamplingRate:   cfg.Telemetry.SamplingRate,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
			tp = nil
		}
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting sessiond")
	logger.Info().Msgf("→ Engine: %s", cfg.Engine.Kind)
	logger.Info().Msgf("→ Data dir: %s (restore: %s)", cfg.Sessions.DataDir, cfg.Sessions.RestoreMode)
	logger.Info().Msgf("→ Shutdown policy: %s", cfg.Shutdown.Policy)
	if cfg.Events.RedisAddr != "" {
		logger.Info().Msgf("→ Events: redis %s channel %s", maskRedisAddr(cfg.Events.RedisAddr), cfg.Events.Channel)
	}
	if cfg.API.Key == "" {
		logger.Warn().
			Str("security", "weak").
			Bool("allow_anonymous", cfg.API.AllowAnonymous).
			Msg("→ API key: NOT configured. Set SESSIOND_API_KEY.")
	}

	cfgHolder := config.NewConfigHolder(cfg, loader)

	rt, err := daemon.Build(ctx, cfgHolder)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "bootstrap.failed").
			Msg("failed to build session runtime")
	}

	trigger := daemon.NewShutdownTrigger(func() string { return cfgHolder.Get().Shutdown.Policy })

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:                 logger,
		APIAddr:                cfg.API.ListenAddr,
		APIHandler:             rt.APIHandler,
		MetricsAddr:            cfg.Metrics.ListenAddr,
		MetricsHandler:         rt.MetricsHandler,
		Sessions:               rt.Controller,
		Policy:                 trigger.Policy,
		SessionShutdownTimeout: cfg.Shutdown.Timeout,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation.failed").
			Msg("failed to create daemon manager")
	}
	if tp != nil {
		mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	}
	rt.RegisterHooks(mgr)

	app := daemon.NewApp(logger, mgr, cfgHolder, rt.Monitor, trigger)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}

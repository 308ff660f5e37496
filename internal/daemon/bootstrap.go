// SPDX-License-Identifier: MIT

// Package daemon provides the core daemon bootstrapping and lifecycle management.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/sessiond/internal/api"
	"github.com/ManuGH/sessiond/internal/api/middleware"
	"github.com/ManuGH/sessiond/internal/config"
	"github.com/ManuGH/sessiond/internal/domain/session/artifacts"
	"github.com/ManuGH/sessiond/internal/domain/session/manager"
	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	"github.com/ManuGH/sessiond/internal/domain/session/store"
	"github.com/ManuGH/sessiond/internal/events"
	"github.com/ManuGH/sessiond/internal/health"
	"github.com/ManuGH/sessiond/internal/infrastructure/engine/bridge"
	"github.com/ManuGH/sessiond/internal/infrastructure/engine/guard"
	"github.com/ManuGH/sessiond/internal/infrastructure/engine/stub"
	"github.com/ManuGH/sessiond/internal/log"
)

// ServiceName labels traces and the API tracing middleware.
const ServiceName = "sessiond"

// Runtime is the wired session service: controller, monitor, probes and HTTP handlers.
type Runtime struct {
	Controller *manager.Controller
	Monitor    *manager.Monitor
	Health     *health.Manager

	APIHandler     http.Handler
	MetricsHandler http.Handler

	// Recovered is the result of boot reconciliation.
	Recovered manager.RecoverResult

	closers []namedCloser
	logger  zerolog.Logger
}

type namedCloser struct {
	name  string
	close func() error
}

// Build wires every component from the current configuration and reconciles
// on-disk sessions. A failed reconciliation is fatal: the daemon must not serve
// traffic over an unknown session set.
func Build(ctx context.Context, holder *config.ConfigHolder) (rt *Runtime, err error) {
	cfg := holder.Get()
	rt = &Runtime{logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			if cerr := rt.Close(); cerr != nil {
				rt.logger.Warn().Err(cerr).Msg("cleanup after failed bootstrap reported errors")
			}
		}
	}()

	engine, err := newEngine(cfg.Engine)
	if err != nil {
		return rt, err
	}

	art, err := artifacts.New(cfg.Sessions.DataDir)
	if err != nil {
		return rt, fmt.Errorf("artifact store: %w", err)
	}

	journal, err := store.NewSqliteJournal(cfg.Sessions.JournalPath)
	if err != nil {
		return rt, fmt.Errorf("session journal: %w", err)
	}
	rt.addCloser("journal", journal.Close)

	sink, redisSink := buildEvents(cfg.Events)
	async := events.NewAsync(sink, cfg.Events.Buffer, log.WithComponent("events"))
	rt.addCloser("events", async.Close)

	ctrl, err := manager.NewController(manager.Deps{
		Store:     store.NewMemoryStore(),
		Engine:    engine,
		Artifacts: art,
		Journal:   journal,
		Events:    async,
	}, ControllerConfig(cfg.Sessions))
	if err != nil {
		return rt, fmt.Errorf("session controller: %w", err)
	}
	rt.Controller = ctrl

	rt.Recovered, err = ctrl.Recover(ctx, manager.RecoverOptions{Eager: cfg.Sessions.RestoreMode == config.RestoreEager})
	if err != nil {
		return rt, fmt.Errorf("session recovery: %w", err)
	}
	rt.logger.Info().
		Int("restored", len(rt.Recovered.Restored)).
		Int("pruned", len(rt.Recovered.Pruned)).
		Str("mode", cfg.Sessions.RestoreMode).
		Msg("sessions reconciled from disk")

	rt.Monitor = manager.NewMonitor(ctrl, MonitorConfig(cfg.Health))

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewFuncChecker("artifacts", func(context.Context) error { return art.Writable() }))
	hm.RegisterChecker(health.NewFuncChecker("journal", journal.Ping))
	if redisSink != nil {
		hm.RegisterChecker(health.NewOptionalChecker("events_redis", redisSink.Ping))
	}
	if cfg.Engine.Kind == config.EngineBridge {
		hm.RegisterChecker(health.NewCommandChecker("engine_command", cfg.Engine.Command))
	}
	mon := rt.Monitor
	hm.RegisterChecker(health.NewSessionsChecker(func(ctx context.Context) (int, int) {
		rep := mon.Report(ctx)
		return rep.TotalSessions, rep.UnhealthySessions
	}))
	rt.Health = hm

	srv := api.New(api.Config{
		KeyPolicy: func() middleware.KeyConfig {
			c := holder.Get()
			return middleware.KeyConfig{
				Key:            c.API.Key,
				Header:         c.API.KeyHeader,
				AllowAnonymous: c.API.AllowAnonymous,
			}
		},
		RateLimitRPM:   cfg.API.RateLimitRPM,
		TracingService: ServiceName,
	}, api.Deps{
		Sessions: ctrl,
		Health:   mon,
		Ready:    hm.ServeReady,
	})
	rt.APIHandler = srv.Handler()
	rt.MetricsHandler = metricsRouter(hm)
	return rt, nil
}

// RegisterHooks hands the runtime's resources to the daemon manager so they
// are released after the sessions have been shut down.
func (rt *Runtime) RegisterHooks(mgr Manager) {
	for _, c := range rt.closers {
		mgr.RegisterShutdownHook(c.name, func(context.Context) error { return c.close() })
	}
	rt.closers = nil
}

// Close releases resources not yet handed to a manager, newest first.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.closers[i].name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) addCloser(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

func newEngine(cfg config.EngineConfig) (ports.Engine, error) {
	var engine ports.Engine
	switch cfg.Kind {
	case config.EngineStub:
		engine = stub.NewAdapter(stub.Config{
			LaunchDelay: cfg.Stub.LaunchDelay,
			QRRefresh:   cfg.Stub.QRRefresh,
			ScanAfter:   cfg.Stub.ScanAfter,
		})
	case config.EngineBridge:
		engine = bridge.NewAdapter(bridge.Config{
			Command:    cfg.Command,
			Args:       cfg.Args,
			CloseGrace: cfg.CloseGrace,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Kind)
	}
	if cfg.Breaker.Threshold > 0 {
		engine = guard.Wrap("engine_"+cfg.Kind, engine, cfg.Breaker.Threshold, cfg.Breaker.Cooldown)
	}
	return engine, nil
}

// buildEvents always logs events; Redis publishing is added when configured
// and reachable. An unreachable Redis degrades to log-only delivery.
func buildEvents(cfg config.EventsConfig) (events.Sink, *events.RedisSink) {
	logger := log.WithComponent("events")
	sinks := events.Fanout{events.NewLogSink(logger)}
	if cfg.RedisAddr == "" {
		return sinks, nil
	}
	rs, err := events.NewRedisSink(events.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.Channel,
	}, logger)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("addr", cfg.RedisAddr).
			Str("event", "events.redis_unavailable").
			Msg("redis event sink disabled")
		return sinks, nil
	}
	return append(sinks, rs), rs
}

func metricsRouter(hm *health.Manager) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", hm.ServeHealth)
	r.Get("/ready", hm.ServeReady)
	return r
}

// ControllerConfig maps the sessions section onto the controller.
func ControllerConfig(c config.SessionsConfig) manager.Config {
	conf := manager.DefaultConfig()
	conf.LaunchTimeout = c.LaunchTimeout
	conf.LaunchRetries = uint(max(c.LaunchRetries, 0))
	conf.CloseTimeout = c.CloseTimeout
	conf.MaxConcurrentLaunches = int64(c.MaxConcurrentLaunches)
	return conf
}

// MonitorConfig maps the health section onto the monitor. It is reapplied on reload.
func MonitorConfig(c config.HealthConfig) manager.MonitorConfig {
	return manager.MonitorConfig{
		Interval:            c.Interval,
		ProbeTimeout:        c.ProbeTimeout,
		FailureThreshold:    c.FailureThreshold,
		MaxConcurrentProbes: c.MaxConcurrentProbes,
		InactiveTimeout:     c.InactiveTimeout,
		RestartBurst:        c.RestartBurst,
		RestartEvery:        c.RestartEvery,
	}
}

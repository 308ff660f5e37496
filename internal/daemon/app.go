// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/sessiond/internal/config"
	"github.com/ManuGH/sessiond/internal/domain/session/manager"
	"github.com/ManuGH/sessiond/internal/log"
)

// App owns the long-lived runtime lifecycle (signals, config reload, the health
// monitor) and delegates server and session shutdown to Manager.
type App struct {
	logger    zerolog.Logger
	manager   Manager
	cfgHolder *config.ConfigHolder
	monitor   *manager.Monitor
	trigger   *ShutdownTrigger

	reloadSignal os.Signal
	stopSignals  []os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, mgr Manager, cfgHolder *config.ConfigHolder, monitor *manager.Monitor, trigger *ShutdownTrigger) *App {
	return &App{
		logger:       logger,
		manager:      mgr,
		cfgHolder:    cfgHolder,
		monitor:      monitor,
		trigger:      trigger,
		reloadSignal: syscall.SIGHUP,
		stopSignals:  []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// Run starts all owned background subsystems and blocks until a stop signal,
// ctx cancellation or a fatal server error, and until shutdown has finished.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if len(a.stopSignals) > 0 {
		stopChan := make(chan os.Signal, 1)
		signal.Notify(stopChan, a.stopSignals...)
		g.Go(func() error {
			defer signal.Stop(stopChan)
			select {
			case <-ctx.Done():
			case sig := <-stopChan:
				if a.trigger != nil {
					a.trigger.Record(sig)
				}
				a.logger.Info().
					Str("event", "daemon.stop_signal").
					Str("signal", sig.String()).
					Msg("stop signal received")
				cancel()
			}
			return nil
		})
	}

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.cfgHolder.Stop()

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		hupChan := make(chan os.Signal, 1)
		signal.Notify(hupChan, a.reloadSignal)
		g.Go(func() error {
			defer signal.Stop(hupChan)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str("event", "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str("event", "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	if a.monitor != nil {
		g.Go(func() error {
			return a.monitor.Run(ctx)
		})
	}

	g.Go(func() error {
		// Whatever ends the servers ends the rest of the group.
		defer cancel()
		return a.manager.Start(ctx)
	})

	return g.Wait()
}

// apply pushes the live-reloadable settings into running components.
// The API key is read per request and needs no push.
func (a *App) apply(cfg config.AppConfig) {
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.LogLevel).Msg("ignoring invalid log level")
	}
	if a.monitor != nil {
		a.monitor.SetConfig(MonitorConfig(cfg.Health))
	}
	a.logger.Info().Str("event", "config.applied").Msg("reloaded configuration applied")
}

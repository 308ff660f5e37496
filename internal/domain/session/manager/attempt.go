// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/sessiond/internal/domain/session/artifacts"
	"github.com/ManuGH/sessiond/internal/domain/session/lifecycle"
	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	"github.com/ManuGH/sessiond/internal/events"
	xglog "github.com/ManuGH/sessiond/internal/log"
	"github.com/ManuGH/sessiond/internal/telemetry"
)

const attemptEventBuffer = 16

// runAttempt launches the engine for (id, gen) and then pumps its events until ctx is cancelled.
// Cancellation means someone else (restart, terminate, shutdown) now owns the record;
// the attempt then only cleans up what it alone holds.
func (c *Controller) runAttempt(ctx context.Context, id string, gen uint64) {
	logger := c.logger.With().Str(xglog.FieldSessionID, id).Uint64(xglog.FieldGeneration, gen).Logger()

	rec, err := c.applyIfCurrent(ctx, id, gen, lifecycle.Event{Kind: lifecycle.EvLaunchRequested})
	if err != nil {
		logger.Debug().Err(err).Msg("launch superseded before it started")
		return
	}
	c.emit(events.TypeStateChanged, rec, nil)

	dir, err := c.artifacts.Ensure(id)
	if err != nil {
		c.failLaunch(ctx, id, gen, fmt.Errorf("prepare auth dir: %w", err))
		return
	}

	if err := c.launchSem.Acquire(ctx, 1); err != nil {
		return
	}
	evCh := make(chan ports.Event, attemptEventBuffer)
	start := time.Now()
	h, err := c.launch(ctx, id, dir, evCh)
	c.launchSem.Release(1)

	if err != nil {
		if ctx.Err() != nil {
			observeLaunch("cancelled", start)
			return
		}
		observeLaunch("error", start)
		c.failLaunch(ctx, id, gen, err)
		return
	}
	observeLaunch("ok", start)

	// Commit the handle only if the record is still ours.
	_, err = c.store.Update(ctx, id, func(r *model.Record) error {
		if ctx.Err() != nil || r.Generation != gen || r.State.IsTerminal() {
			return model.ErrStaleOperation
		}
		r.Handle = h
		return nil
	})
	if err != nil {
		logger.Info().Str(xglog.FieldHandle, h.ID()).Msg("launch finished after being superseded, releasing instance")
		c.closeHandle(id, h)
		return
	}
	logger.Info().Str(xglog.FieldHandle, h.ID()).Dur("took", time.Since(start)).Msg("engine instance attached")

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-evCh:
			c.handleEngineEvent(ctx, id, gen, ev)
		}
	}
}

// launch calls the engine with a per-try timeout and retries transient failures.
func (c *Controller) launch(ctx context.Context, id, dir string, evCh chan ports.Event) (ports.Handle, error) {
	ctx, span := c.tracer.Start(ctx, "session.launch", trace.WithAttributes(telemetry.SessionAttributes(id, "launch", "", 0)...))
	defer span.End()

	try := 0
	op := func() (ports.Handle, error) {
		try++
		span.AddEvent("launch.try", trace.WithAttributes(telemetry.EngineAttributes("", try)...))

		lctx, cancel := context.WithTimeout(ctx, c.conf.LaunchTimeout)
		defer cancel()

		h, err := c.engine.Launch(lctx, ports.LaunchRequest{SessionID: id, AuthDir: dir, Events: evCh})
		switch {
		case err == nil:
			launchTries.WithLabelValues("ok").Inc()
			return h, nil
		case ctx.Err() != nil:
			return nil, backoff.Permanent(ctx.Err())
		case errors.Is(err, ports.ErrLaunchPermanent):
			launchTries.WithLabelValues("permanent").Inc()
			return nil, backoff.Permanent(fmt.Errorf("%w: %w", model.ErrEngineFailure, err))
		case lctx.Err() != nil:
			launchTries.WithLabelValues("timeout").Inc()
			err = fmt.Errorf("%w: engine launch exceeded %s", model.ErrTimeout, c.conf.LaunchTimeout)
		default:
			launchTries.WithLabelValues("error").Inc()
			err = fmt.Errorf("%w: %w", model.ErrEngineFailure, err)
		}
		c.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Int("try", try).Msg("engine launch failed")
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.conf.RetryInitialInterval
	b.MaxInterval = 30 * time.Second

	h, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.conf.LaunchRetries+1),
	)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(telemetry.EngineAttributes(h.ID(), try)...)
	return h, nil
}

// failLaunch moves a still-current record to DISCONNECTED with the launch error as message.
func (c *Controller) failLaunch(ctx context.Context, id string, gen uint64, cause error) {
	rec, err := c.applyIfCurrent(ctx, id, gen, lifecycle.Event{Kind: lifecycle.EvLaunchFailed, Detail: cause.Error()})
	if err != nil {
		return
	}
	c.logger.Warn().Err(cause).Str(xglog.FieldSessionID, id).Msg("session launch failed")
	c.emit(events.TypeStateChanged, rec, map[string]string{"error": cause.Error()})
}

// applyIfCurrent applies ev to id if the record is still at gen.
func (c *Controller) applyIfCurrent(ctx context.Context, id string, gen uint64, ev lifecycle.Event) (*model.Record, error) {
	var from model.SessionState
	rec, err := c.store.Update(ctx, id, func(r *model.Record) error {
		if r.Generation != gen {
			return model.ErrStaleOperation
		}
		from = r.State
		_, err := lifecycle.Apply(r, ev, c.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	recordTransition(from, rec.State)
	return rec, nil
}

// handleEngineEvent folds one engine notification into the record. The pump of the
// current attempt is the only caller, so State and QRStatus have a single writer.
func (c *Controller) handleEngineEvent(ctx context.Context, id string, gen uint64, ev ports.Event) {
	lev, ok := lifecycle.FromEngine(ev)
	if !ok {
		c.logger.Debug().Str(xglog.FieldSessionID, id).Str(xglog.FieldEvent, string(ev.Type)).Msg("ignoring unknown engine event")
		return
	}

	var from model.SessionState
	rec, err := c.store.Update(ctx, id, func(r *model.Record) error {
		if r.Generation != gen {
			return model.ErrStaleOperation
		}
		from = r.State
		if _, err := lifecycle.Apply(r, lev, c.now()); err != nil {
			return err
		}
		r.LastActivityAt = c.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrIllegalTransition) {
			c.logger.Debug().Err(err).Str(xglog.FieldSessionID, id).Msg("engine event not applicable")
		}
		return
	}
	recordTransition(from, rec.State)

	logger := c.logger.With().Str(xglog.FieldSessionID, id).Logger()
	switch lev.Kind {
	case lifecycle.EvQRReceived:
		logger.Info().Str(xglog.FieldQRStatus, string(rec.QRStatus)).Msg("qr code ready for scan")
		c.emit(events.TypeQR, rec, map[string]string{"qrStatus": string(rec.QRStatus), "qr": ev.Payload})
	case lifecycle.EvAuthenticated:
		c.markAuthenticated(ctx, rec)
		logger.Info().Str(xglog.FieldOldState, string(from)).Msg("session connected")
	case lifecycle.EvDisconnected, lifecycle.EvAuthFailure:
		logger.Warn().Str(xglog.FieldOldState, string(from)).Str("reason", rec.Message).Msg("session disconnected")
	}
	if from != rec.State {
		c.emit(events.TypeStateChanged, rec, map[string]string{"from": string(from)})
	}
}

func (c *Controller) markAuthenticated(ctx context.Context, rec *model.Record) {
	marker := artifacts.Marker{SessionID: rec.ID, CreatedAt: rec.CreatedAt, AuthenticatedAt: c.now().UTC()}
	if err := c.artifacts.WriteMarker(rec.ID, marker); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldSessionID, rec.ID).Msg("failed to write session marker")
	}
	c.upsertJournal(ctx, rec)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager owns the session lifecycle: the Controller creates, restarts
// and terminates per-tenant engine instances, and the Monitor probes them and
// escalates unhealthy ones back to the Controller.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/sessiond/internal/domain/session/artifacts"
	"github.com/ManuGH/sessiond/internal/domain/session/lifecycle"
	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	"github.com/ManuGH/sessiond/internal/domain/session/store"
	"github.com/ManuGH/sessiond/internal/events"
	xglog "github.com/ManuGH/sessiond/internal/log"
	"github.com/ManuGH/sessiond/internal/telemetry"
)

// Config tunes the controller.
type Config struct {
	// LaunchTimeout bounds a single engine launch try.
	LaunchTimeout time.Duration
	// LaunchRetries is the number of extra tries after a transient launch failure.
	LaunchRetries uint
	// RetryInitialInterval is the first backoff delay between launch tries.
	RetryInitialInterval time.Duration
	// CloseTimeout bounds handle release and waiting for a cancelled attempt.
	CloseTimeout time.Duration
	// MaxConcurrentLaunches bounds engine launches across all sessions.
	MaxConcurrentLaunches int64
	// TerminateConcurrency bounds the fan-out of TerminateAll and TerminateInactive.
	TerminateConcurrency int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LaunchTimeout:         60 * time.Second,
		LaunchRetries:         2,
		RetryInitialInterval:  time.Second,
		CloseTimeout:          10 * time.Second,
		MaxConcurrentLaunches: 4,
		TerminateConcurrency:  8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = d.LaunchTimeout
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = d.RetryInitialInterval
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.MaxConcurrentLaunches <= 0 {
		c.MaxConcurrentLaunches = d.MaxConcurrentLaunches
	}
	if c.TerminateConcurrency <= 0 {
		c.TerminateConcurrency = d.TerminateConcurrency
	}
	return c
}

// Deps are the collaborators of the controller.
type Deps struct {
	Store     store.Store
	Engine    ports.Engine
	Artifacts *artifacts.Store
	Journal   store.Journal
	Events    events.Sink
	// Now overrides the clock (tests).
	Now func() time.Time
}

// StartResult is returned by Start.
type StartResult struct {
	State model.SessionState
	// Created is true when this call created the record.
	Created bool
}

// Status is the read projection of one session.
type Status struct {
	SessionID    string
	State        model.SessionState
	QRStatus     model.QRStatus
	QR           string
	Message      string
	FailureCount int
	Persisted    bool
	LastActivity time.Time
}

// TerminateOptions controls Terminate.
type TerminateOptions struct {
	// EraseDisk removes the session's authentication artifacts (logout).
	EraseDisk bool
}

// attempt is one launch plus the event pump that follows it.
type attempt struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller is the single writer of session lifecycle state.
type Controller struct {
	store     store.Store
	engine    ports.Engine
	artifacts *artifacts.Store
	journal   store.Journal
	events    events.Sink
	conf      Config
	now       func() time.Time

	locks     keyedMutex
	launchSem *semaphore.Weighted
	registry  sessionRegistry

	mu       sync.Mutex
	attempts map[string]*attempt

	shuttingDown atomic.Bool

	logger zerolog.Logger
	tracer trace.Tracer
}

// NewController validates deps and returns a ready controller.
func NewController(deps Deps, conf Config) (*Controller, error) {
	if deps.Store == nil {
		return nil, errors.New("manager: store is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("manager: engine is required")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("manager: artifact store is required")
	}
	if deps.Journal == nil {
		deps.Journal = store.NopJournal{}
	}
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	conf = conf.withDefaults()

	return &Controller{
		store:     deps.Store,
		engine:    deps.Engine,
		artifacts: deps.Artifacts,
		journal:   deps.Journal,
		events:    deps.Events,
		conf:      conf,
		now:       deps.Now,
		launchSem: semaphore.NewWeighted(conf.MaxConcurrentLaunches),
		attempts:  make(map[string]*attempt),
		logger:    xglog.WithComponent("session.controller"),
		tracer:    telemetry.Tracer("sessiond/session"),
	}, nil
}

func (c *Controller) startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "session."+op, trace.WithAttributes(telemetry.SessionAttributes(id, op, "", 0)...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Start creates the session and launches its engine asynchronously.
// It is idempotent: an existing session reports its current state, and a
// recovered session that was never launched is resumed.
func (c *Controller) Start(ctx context.Context, id string) (res StartResult, err error) {
	if err := model.ValidateSessionID(id); err != nil {
		return StartResult{}, err
	}
	ctx, span := c.startSpan(ctx, "start", id)
	defer func() { endSpan(span, err) }()

	if c.shuttingDown.Load() {
		return StartResult{}, ErrShuttingDown
	}

	unlock := c.locks.Lock(id)
	defer unlock()

	existing, err := c.store.Get(ctx, id)
	switch {
	case err == nil && !existing.State.IsTerminal():
		c.resumeLocked(existing)
		return StartResult{State: existing.State}, nil
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return StartResult{}, err
	}

	now := c.now()
	rec := model.NewRecord(id, now)
	rec.Persisted = c.artifacts.HasAuthState(id)
	if err := c.store.Put(ctx, rec, store.PutOptions{Strict: true}); err != nil {
		return StartResult{}, err
	}
	sessionsActive.Set(float64(c.store.Len()))
	c.upsertJournal(ctx, rec)
	c.emit(events.TypeCreated, rec, nil)

	c.logger.Info().Str(xglog.FieldSessionID, id).Bool("persisted", rec.Persisted).Msg("session created")

	if !c.spawnLocked(id, rec.Generation) {
		return StartResult{}, ErrShuttingDown
	}
	return StartResult{State: rec.State, Created: true}, nil
}

// Status returns the session's state and, while a challenge is open, its QR payload.
func (c *Controller) Status(ctx context.Context, id string) (Status, error) {
	if err := model.ValidateSessionID(id); err != nil {
		return Status{}, err
	}
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return Status{}, err
	}
	if rec.State == model.SessionInitializing && !c.hasAttempt(id) && !c.shuttingDown.Load() {
		unlock := c.locks.Lock(id)
		if cur, gerr := c.store.Get(ctx, id); gerr == nil {
			c.resumeLocked(cur)
		}
		unlock()
		if cur, gerr := c.store.Get(ctx, id); gerr == nil {
			rec = cur
		}
	}
	return statusOf(rec), nil
}

func statusOf(rec *model.Record) Status {
	st := Status{
		SessionID:    rec.ID,
		State:        rec.State,
		QRStatus:     rec.QRStatus,
		Message:      rec.Message,
		FailureCount: rec.FailureCount,
		Persisted:    rec.Persisted,
		LastActivity: rec.LastActivityAt,
	}
	if rec.QRStatus == model.QRReadyForScan {
		st.QR = rec.QRPayload
	}
	return st
}

// List returns an ID-ordered snapshot of every session.
func (c *Controller) List(ctx context.Context) []model.Summary {
	return c.store.List(ctx)
}

// Restart cancels any in-flight launch, releases the engine instance and launches again
// under a new generation.
func (c *Controller) Restart(ctx context.Context, id string) (err error) {
	if err := model.ValidateSessionID(id); err != nil {
		return err
	}
	ctx, span := c.startSpan(ctx, "restart", id)
	defer func() { endSpan(span, err) }()

	if c.shuttingDown.Load() {
		return ErrShuttingDown
	}

	unlock := c.locks.Lock(id)
	defer unlock()

	if _, err := c.store.Get(ctx, id); err != nil {
		return err
	}
	if err := c.restartLocked(ctx, id, "api"); err != nil {
		return err
	}
	restartsTotal.WithLabelValues("api").Inc()
	return nil
}

// restartGeneration restarts id only if it is still at gen. Used by health escalation
// so a restart decided on stale data never supersedes a newer one.
func (c *Controller) restartGeneration(ctx context.Context, id string, gen uint64, reason string) error {
	if c.shuttingDown.Load() {
		return ErrShuttingDown
	}
	unlock := c.locks.Lock(id)
	defer unlock()

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Generation != gen {
		return fmt.Errorf("%w: %s generation %d, have %d", model.ErrStaleOperation, id, gen, rec.Generation)
	}
	if err := c.restartLocked(ctx, id, reason); err != nil {
		return err
	}
	restartsTotal.WithLabelValues("health").Inc()
	return nil
}

func (c *Controller) restartLocked(ctx context.Context, id, reason string) error {
	if err := c.stopAttempt(ctx, id); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("previous launch did not stop in time, relaunch waits for it")
	}

	var (
		h    ports.Handle
		from model.SessionState
	)
	rec, err := c.store.Update(ctx, id, func(r *model.Record) error {
		from = r.State
		h = r.Handle
		r.Handle = nil
		_, err := lifecycle.Apply(r, lifecycle.Event{Kind: lifecycle.EvRestartRequested, Detail: "restart: " + reason}, c.now())
		return err
	})
	if err != nil {
		return err
	}
	recordTransition(from, rec.State)
	c.closeHandle(id, h)

	c.logger.Info().
		Str(xglog.FieldSessionID, id).
		Uint64(xglog.FieldGeneration, rec.Generation).
		Str("reason", reason).
		Msg("session restarting")
	c.emit(events.TypeRestarted, rec, map[string]string{"reason": reason})

	if !c.spawnLocked(id, rec.Generation) {
		return ErrShuttingDown
	}
	return nil
}

// Terminate stops the session, releases its engine instance and deletes the record.
// It is idempotent; terminating an unknown id succeeds.
func (c *Controller) Terminate(ctx context.Context, id string, opts TerminateOptions) (err error) {
	if err := model.ValidateSessionID(id); err != nil {
		return err
	}
	ctx, span := c.startSpan(ctx, "terminate", id)
	defer func() { endSpan(span, err) }()

	unlock := c.locks.Lock(id)
	defer unlock()

	_, err = c.terminateLocked(ctx, id, opts, "api")
	return err
}

// terminateLocked reports whether a record existed.
func (c *Controller) terminateLocked(ctx context.Context, id string, opts TerminateOptions, reason string) (bool, error) {
	if err := c.stopAttempt(ctx, id); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("launch did not stop in time, terminating anyway")
	}

	var (
		h    ports.Handle
		from model.SessionState
	)
	rec, err := c.store.Update(ctx, id, func(r *model.Record) error {
		from = r.State
		h = r.Handle
		r.Handle = nil
		_, err := lifecycle.Apply(r, lifecycle.Event{Kind: lifecycle.EvTerminateRequested}, c.now())
		return err
	})
	existed := true
	switch {
	case errors.Is(err, model.ErrNotFound):
		existed = false
	case err != nil:
		return true, err
	default:
		recordTransition(from, rec.State)
	}

	c.closeHandle(id, h)

	if opts.EraseDisk {
		if err := c.artifacts.Erase(id); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("failed to erase session artifacts")
		}
		if err := c.journal.Remove(context.WithoutCancel(ctx), id); err != nil {
			c.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("failed to remove journal entry")
		}
	}

	if !existed {
		return false, nil
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return true, err
	}
	sessionsActive.Set(float64(c.store.Len()))
	terminationsTotal.WithLabelValues(reason).Inc()

	c.logger.Info().
		Str(xglog.FieldSessionID, id).
		Bool("erase_disk", opts.EraseDisk).
		Str("reason", reason).
		Msg("session terminated")
	c.emit(events.TypeTerminated, rec, map[string]string{"reason": reason})
	return true, nil
}

// TerminateAll terminates every session. A failing session never stops the others;
// the returned error joins every failure for reporting.
func (c *Controller) TerminateAll(ctx context.Context, opts TerminateOptions) ([]string, error) {
	summaries := c.store.List(ctx)
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.SessionID)
	}
	return c.terminateMany(ctx, ids, opts, "terminate_all")
}

// TerminateInactive terminates sessions idle for longer than maxIdle.
// Restored sessions that have not been resumed yet are skipped: they exist only on
// disk and must resume on their next Status instead of reporting not found.
func (c *Controller) TerminateInactive(ctx context.Context, maxIdle time.Duration, opts TerminateOptions) ([]string, error) {
	if maxIdle <= 0 {
		return nil, fmt.Errorf("maxIdle must be > 0, got %v", maxIdle)
	}
	now := c.now()
	var ids []string
	for _, rec := range c.store.Snapshot(ctx) {
		if c.dormant(rec) {
			continue
		}
		if now.Sub(rec.LastActivityAt) > maxIdle {
			ids = append(ids, rec.ID)
		}
	}
	return c.terminateMany(ctx, ids, opts, "inactive")
}

func (c *Controller) terminateMany(ctx context.Context, ids []string, opts TerminateOptions, reason string) ([]string, error) {
	var (
		mu         sync.Mutex
		terminated []string
		errs       []error
	)

	var g errgroup.Group
	g.SetLimit(c.conf.TerminateConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			unlock := c.locks.Lock(id)
			existed, err := c.terminateLocked(ctx, id, opts, reason)
			unlock()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("terminate %s: %w", id, err))
				return nil
			}
			if existed {
				terminated = append(terminated, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(terminated)
	return terminated, errors.Join(errs...)
}

// resumeLocked launches a recovered record that has not been launched yet.
func (c *Controller) resumeLocked(rec *model.Record) {
	if rec.State != model.SessionInitializing || c.hasAttempt(rec.ID) {
		return
	}
	c.logger.Info().Str(xglog.FieldSessionID, rec.ID).Msg("resuming recovered session")
	c.spawnLocked(rec.ID, rec.Generation)
}

// dormant reports a recovered record that is waiting for its lazy resume.
func (c *Controller) dormant(rec *model.Record) bool {
	return rec.Persisted && rec.State == model.SessionInitializing && !c.hasAttempt(rec.ID)
}

func (c *Controller) hasAttempt(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.attempts[id]
	return ok
}

// spawnLocked starts a tracked attempt for id at gen. The caller holds id's lock.
// If an earlier attempt outlived its stop deadline, the new one launches only after
// it has finished, so two launches never share the auth directory.
func (c *Controller) spawnLocked(id string, gen uint64) bool {
	ctx, cancel := context.WithCancel(context.Background())
	a := &attempt{gen: gen, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	prev := c.attempts[id]
	c.attempts[id] = a
	c.mu.Unlock()

	ok := c.registry.Go(func() {
		defer close(a.done)
		defer c.clearAttempt(id, a)
		defer cancel()
		if prev != nil {
			select {
			case <-prev.done:
			case <-ctx.Done():
				return
			}
		}
		c.runAttempt(ctx, id, gen)
	})
	if !ok {
		cancel()
		c.clearAttempt(id, a)
		close(a.done)
	}
	return ok
}

func (c *Controller) clearAttempt(id string, a *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts[id] == a {
		delete(c.attempts, id)
	}
}

// stopAttempt cancels id's attempt and waits for it, bounded by CloseTimeout.
func (c *Controller) stopAttempt(ctx context.Context, id string) error {
	c.mu.Lock()
	a := c.attempts[id]
	c.mu.Unlock()
	if a == nil {
		return nil
	}

	a.cancel()
	t := time.NewTimer(c.conf.CloseTimeout)
	defer t.Stop()
	select {
	case <-a.done:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: attempt for %s still running after %s", model.ErrTimeout, id, c.conf.CloseTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeHandle releases h with its own deadline. Errors are logged, never returned:
// a session must always be able to leave.
func (c *Controller) closeHandle(id string, h ports.Handle) {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.conf.CloseTimeout)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		c.logger.Warn().Err(err).
			Str(xglog.FieldSessionID, id).
			Str(xglog.FieldHandle, h.ID()).
			Msg("engine close failed")
	}
}

func (c *Controller) upsertJournal(ctx context.Context, rec *model.Record) {
	if err := c.journal.Upsert(context.WithoutCancel(ctx), store.EntryFromRecord(rec)); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldSessionID, rec.ID).Msg("journal upsert failed")
	}
}

func (c *Controller) emit(t events.Type, rec *model.Record, data map[string]string) {
	if err := c.events.Publish(context.Background(), events.New(t, rec.ID, string(rec.State), data)); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldSessionID, rec.ID).Str(xglog.FieldEvent, string(t)).Msg("event publish failed")
	}
}

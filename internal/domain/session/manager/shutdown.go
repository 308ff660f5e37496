// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	xglog "github.com/ManuGH/sessiond/internal/log"
)

// Policy selects what happens to sessions when the process stops.
type Policy string

const (
	// PolicyPreserve releases engine instances but keeps records and on-disk state,
	// so the next boot restores every session without a new scan.
	PolicyPreserve Policy = "preserve"
	// PolicyDestroy terminates every session. Disk artifacts are kept.
	PolicyDestroy Policy = "destroy"
)

// ParsePolicy accepts "preserve" and "destroy".
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyPreserve, PolicyDestroy:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown shutdown policy %q", s)
}

// Shutdown stops accepting starts, applies policy and drains controller goroutines.
// ctx bounds the whole operation.
func (c *Controller) Shutdown(ctx context.Context, policy Policy) error {
	c.shuttingDown.Store(true)
	logger := c.logger.With().Str(xglog.FieldPolicy, string(policy)).Logger()
	logger.Info().Int("sessions", c.store.Len()).Msg("session shutdown started")

	var err error
	switch policy {
	case PolicyDestroy:
		_, err = c.TerminateAll(ctx, TerminateOptions{EraseDisk: false})
	default:
		err = c.preserveAll(ctx)
	}

	if derr := c.registry.CloseAndWait(ctx); derr != nil {
		err = errors.Join(err, derr)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("session shutdown finished with errors")
		return err
	}
	logger.Info().Msg("session shutdown complete")
	return nil
}

func (c *Controller) preserveAll(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(c.conf.TerminateConcurrency)
	for _, rec := range c.store.Snapshot(ctx) {
		g.Go(func() error {
			return c.preserveOne(ctx, rec.ID)
		})
	}
	return g.Wait()
}

func (c *Controller) preserveOne(ctx context.Context, id string) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	if err := c.stopAttempt(ctx, id); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("launch did not stop in time during shutdown")
	}

	var h ports.Handle
	rec, err := c.store.Update(ctx, id, func(r *model.Record) error {
		h = r.Handle
		r.Handle = nil
		r.Persisted = r.Persisted || c.artifacts.HasAuthState(id)
		r.UpdatedAt = c.now()
		return nil
	})
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("preserve %s: %w", id, err)
	}
	c.closeHandle(id, h)
	c.upsertJournal(ctx, rec)
	return nil
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/domain/session/store"
	"github.com/ManuGH/sessiond/internal/events"
	xglog "github.com/ManuGH/sessiond/internal/log"
)

// RecoverOptions controls boot reconciliation.
type RecoverOptions struct {
	// Eager launches every restored session immediately. Otherwise a restored
	// session launches on its first Start or Status.
	Eager bool
}

// RecoverResult lists what reconciliation did.
type RecoverResult struct {
	Restored []string
	// Pruned are journal rows without authentication state on disk.
	Pruned []string
	// Skipped are directories left by launches that never authenticated.
	Skipped []string
}

// Recover rebuilds records for every artifact directory that holds authentication
// state. An unreadable artifact root is fatal; the caller must not serve traffic.
func (c *Controller) Recover(ctx context.Context, opts RecoverOptions) (RecoverResult, error) {
	logger := xglog.WithComponent("session.recovery")

	ids, err := c.artifacts.List()
	if err != nil {
		return RecoverResult{}, fmt.Errorf("recover: %w", err)
	}
	entries, err := c.journal.Load(ctx)
	if err != nil {
		return RecoverResult{}, fmt.Errorf("recover: load journal: %w", err)
	}

	var res RecoverResult
	authed := make([]string, 0, len(ids))
	onDisk := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if !c.artifacts.HasAuthState(id) {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		authed = append(authed, id)
		onDisk[id] = struct{}{}
	}
	for id := range entries {
		if _, ok := onDisk[id]; ok {
			continue
		}
		if err := c.journal.Remove(ctx, id); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("failed to prune journal entry")
			continue
		}
		res.Pruned = append(res.Pruned, id)
	}

	for _, id := range authed {
		restored, err := c.restoreOne(ctx, id, entries, opts)
		if err != nil {
			logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("failed to restore session")
			continue
		}
		if restored {
			res.Restored = append(res.Restored, id)
		}
	}

	logger.Info().
		Int("restored", len(res.Restored)).
		Int("pruned", len(res.Pruned)).
		Int("skipped", len(res.Skipped)).
		Bool("eager", opts.Eager).
		Msg("session recovery complete")
	return res, nil
}

func (c *Controller) restoreOne(ctx context.Context, id string, entries map[string]store.JournalEntry, opts RecoverOptions) (bool, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	if _, err := c.store.Get(ctx, id); err == nil {
		return false, nil
	}

	// Downtime is not tenant inactivity: LastActivityAt restarts at boot.
	rec := model.NewRecord(id, c.now())
	rec.Persisted = true
	if e, ok := entries[id]; ok && !e.CreatedAt.IsZero() {
		rec.CreatedAt = e.CreatedAt
	}
	if err := c.store.Put(ctx, rec, store.PutOptions{Strict: true}); err != nil {
		return false, err
	}
	sessionsActive.Set(float64(c.store.Len()))
	c.upsertJournal(ctx, rec)
	c.emit(events.TypeRecovered, rec, nil)

	if opts.Eager {
		c.spawnLocked(id, rec.Generation)
	}
	return true, nil
}

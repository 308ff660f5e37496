// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"time"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
)

// JournalEntry is the durable metadata kept for a session across restarts.
type JournalEntry struct {
	SessionID      string
	State          model.SessionState
	Persisted      bool
	CreatedAt      time.Time
	LastActivityAt time.Time
	UpdatedAt      time.Time
}

// EntryFromRecord projects rec onto a journal row.
func EntryFromRecord(rec *model.Record) JournalEntry {
	return JournalEntry{
		SessionID:      rec.ID,
		State:          rec.State,
		Persisted:      rec.Persisted,
		CreatedAt:      rec.CreatedAt,
		LastActivityAt: rec.LastActivityAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

// Journal durably records session metadata. It never holds engine state.
type Journal interface {
	Upsert(ctx context.Context, e JournalEntry) error
	Remove(ctx context.Context, id string) error
	Load(ctx context.Context) (map[string]JournalEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// NopJournal is used when no journal path is configured.
type NopJournal struct{}

func (NopJournal) Upsert(context.Context, JournalEntry) error { return nil }
func (NopJournal) Remove(context.Context, string) error       { return nil }
func (NopJournal) Load(context.Context) (map[string]JournalEntry, error) {
	return map[string]JournalEntry{}, nil
}
func (NopJournal) Ping(context.Context) error { return nil }
func (NopJournal) Close() error               { return nil }

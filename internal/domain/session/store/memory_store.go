// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
)

// entry guards one record. rec is nil once the entry has been deleted.
type entry struct {
	mu  sync.Mutex
	rec *model.Record
}

// MemoryStore implements Store in memory.
//
// Lock order: MemoryStore.mu before entry.mu. Update never takes MemoryStore.mu
// while holding an entry lock.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) lookup(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Record, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return e.rec.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, rec *model.Record, opts PutOptions) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: empty record", model.ErrInvalidID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[rec.ID]
	if !ok {
		s.entries[rec.ID] = &entry{rec: rec.Clone()}
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if opts.Strict && e.rec != nil && !e.rec.State.IsTerminal() {
		return fmt.Errorf("%w: %s", model.ErrAlreadyExists, rec.ID)
	}
	e.rec = rec.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*model.Record) error) (*model.Record, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}

	// Work on a copy so a failing fn leaves the record untouched.
	work := e.rec.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	e.rec = work
	return work.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	s.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.rec = nil
		e.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context) []model.Summary {
	recs := s.Snapshot(ctx)
	out := make([]model.Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Summary())
	}
	return out
}

// Snapshot copies the entry set under the read lock, then clones each record
// under its own lock, so slow readers never stall writers of other IDs.
func (s *MemoryStore) Snapshot(_ context.Context) []*model.Record {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.rec != nil {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

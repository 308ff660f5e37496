// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store holds the single source of truth for "what sessions exist".
package store

import (
	"context"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
)

// PutOptions controls Put semantics.
type PutOptions struct {
	// Strict fails with model.ErrAlreadyExists when a non-terminated record is present.
	Strict bool
}

// Store is a concurrency-safe mapping from session ID to record.
//
// Mutations of one ID are linearized; different IDs never block each other
// beyond the map lookup itself.
type Store interface {
	// Get returns a copy of the record or model.ErrNotFound.
	Get(ctx context.Context, id string) (*model.Record, error)

	// Put inserts or replaces rec.
	Put(ctx context.Context, rec *model.Record, opts PutOptions) error

	// Update applies fn to the live record under the record's lock and returns a copy of the result.
	// fn must not call back into the Store. If fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(*model.Record) error) (*model.Record, error)

	// Delete removes id. Absent IDs are not an error.
	Delete(ctx context.Context, id string) error

	// List returns an ID-ordered snapshot of summaries.
	List(ctx context.Context) []model.Summary

	// Snapshot returns ID-ordered copies of every record.
	Snapshot(ctx context.Context) []*model.Record

	// Len returns the number of records.
	Len() int
}

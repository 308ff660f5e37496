// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events emits session lifecycle notifications to interested sinks.
// Delivery is best-effort: a failing sink is logged and never blocks the caller's lifecycle.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle notification.
type Type string

const (
	TypeCreated      Type = "session.created"
	TypeStateChanged Type = "session.state_changed"
	TypeQR           Type = "session.qr"
	TypeRestarted    Type = "session.restarted"
	TypeTerminated   Type = "session.terminated"
	TypeUnhealthy    Type = "session.unhealthy"
	TypeRecovered    Type = "session.recovered"
)

// Event is one lifecycle notification.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	SessionID string            `json:"sessionId"`
	State     string            `json:"state,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	At        time.Time         `json:"at"`
}

// New stamps an event with an ID and the current time.
func New(t Type, sessionID, state string, data map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		State:     state,
		Data:      data,
		At:        time.Now().UTC(),
	}
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Fanout publishes to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
func (Discard) Close() error                         { return nil }

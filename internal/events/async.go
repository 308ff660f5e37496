// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/sessiond/internal/log"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_events_published_total",
		Help: "Session events handed to sinks, by type and result",
	}, []string{"type", "result"})
)

// Async decouples publishers from slow sinks. Events are delivered in order by a
// single goroutine; when the queue is full new events are dropped and counted.
type Async struct {
	next   Sink
	logger zerolog.Logger
	queue  chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. Close drains the queue and closes next.
func NewAsync(next Sink, size int, logger zerolog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan Event, size),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.queue {
		if err := a.next.Publish(context.Background(), ev); err != nil {
			eventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, string(ev.Type)).Str(xglog.FieldSessionID, ev.SessionID).Msg("event sink failed")
			continue
		}
		eventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()
	}
}

// Publish enqueues ev. It never blocks.
func (a *Async) Publish(_ context.Context, ev Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		eventsPublished.WithLabelValues(string(ev.Type), "closed").Inc()
		return nil
	}
	select {
	case a.queue <- ev:
	default:
		eventsPublished.WithLabelValues(string(ev.Type), "dropped").Inc()
	}
	return nil
}

// Close stops accepting events, delivers what is queued and closes the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

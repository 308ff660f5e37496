// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/sessiond/internal/log"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	e := s.logger.Info().
		Str(xglog.FieldEvent, string(ev.Type)).
		Str(xglog.FieldSessionID, ev.SessionID).
		Str("event_id", ev.ID)
	if ev.State != "" {
		e = e.Str("state", ev.State)
	}
	for k, v := range ev.Data {
		if k == "qr" {
			// QR payloads are credentials-equivalent; never log them.
			continue
		}
		e = e.Str(k, v)
	}
	e.Msg("session event")
	return nil
}

func (s *LogSink) Close() error { return nil }

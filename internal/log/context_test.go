// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			requestID: "test-id-123",
			want:      "test-id-123",
		},
		{
			name:      "background context",
			ctx:       context.Background(),
			requestID: "req-456",
			want:      "req-456",
		},
		{
			name:      "empty request ID",
			ctx:       context.Background(),
			requestID: "",
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			got := RequestIDFromContext(ctx)
			if got != tt.want {
				t.Errorf("RequestIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContextWithSessionID(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "tenant-a")
	if got := SessionIDFromContext(ctx); got != "tenant-a" {
		t.Errorf("SessionIDFromContext() = %q, want %q", got, "tenant-a")
	}
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("SessionIDFromContext() on empty context = %q, want empty", got)
	}
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	ctx = ContextWithSessionID(ctx, "s1")

	l := WithContext(ctx, base)
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if entry[FieldRequestID] != "req-1" {
		t.Errorf("request_id = %v", entry[FieldRequestID])
	}
	if entry[FieldCorrelationID] != "corr-1" {
		t.Errorf("correlation_id = %v", entry[FieldCorrelationID])
	}
	if entry[FieldSessionID] != "s1" {
		t.Errorf("session_id = %v", entry[FieldSessionID])
	}
}

func TestWithContext_NoFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	l := WithContext(context.Background(), base)
	l.Info().Msg("plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if _, ok := entry[FieldRequestID]; ok {
		t.Error("unexpected request_id on plain context")
	}
}

func TestFromContext_PrefersAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	attached := zerolog.New(&buf).With().Str("marker", "attached").Logger()
	ctx := attached.WithContext(context.Background())

	FromContext(ctx).Info().Msg("x")

	if !bytes.Contains(buf.Bytes(), []byte(`"marker":"attached"`)) {
		t.Errorf("expected attached logger to be used, got %s", buf.String())
	}
}

func TestFromContext_NilFallsBackToBase(t *testing.T) {
	if l := FromContext(nil); l == nil { //nolint:staticcheck // nil context is part of the contract
		t.Fatal("FromContext(nil) returned nil logger")
	}
}

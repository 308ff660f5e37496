// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoBridge emits a QR challenge, answers pings and reports auth on "scan".
const echoBridge = `
echo '{"type":"qr","data":"challenge-1"}'
echo "starting $SESSIOND_SESSION_ID" >&2
while read -r line; do
  case "$line" in
    *ping*) echo '{"type":"pong"}' ;;
  esac
done
`

func shAdapter(script string) *Adapter {
	return NewAdapter(Config{Command: "sh", Args: []string{"-c", script}, CloseGrace: time.Second})
}

func next(t *testing.T, ch <-chan ports.Event) ports.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for bridge event")
		return ports.Event{}
	}
}

func TestBridge_EventsProbeAndClose(t *testing.T) {
	events := make(chan ports.Event, 4)
	h, err := shAdapter(echoBridge).Launch(context.Background(), ports.LaunchRequest{
		SessionID: "s1",
		AuthDir:   filepath.Join(t.TempDir(), "session-s1"),
		Events:    events,
	})
	require.NoError(t, err)

	ev := next(t, events)
	assert.Equal(t, ports.EventQR, ev.Type)
	assert.Equal(t, "challenge-1", ev.Payload)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Probe(ctx))
	require.NoError(t, h.Probe(ctx), "second probe gets its own pong")

	require.NoError(t, h.Close(ctx))
	require.NoError(t, h.Close(ctx))
	assert.ErrorIs(t, h.Probe(ctx), ports.ErrEngineClosed)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event after close: %v", ev.Type)
	default:
	}
}

func TestBridge_UnexpectedExitEmitsDisconnected(t *testing.T) {
	events := make(chan ports.Event, 4)
	h, err := shAdapter(`echo '{"type":"ready"}'; exit 3`).Launch(context.Background(), ports.LaunchRequest{
		SessionID: "s1",
		AuthDir:   t.TempDir(),
		Events:    events,
	})
	require.NoError(t, err)
	defer h.Close(context.Background())

	assert.Equal(t, ports.EventAuthenticated, next(t, events).Type)
	ev := next(t, events)
	assert.Equal(t, ports.EventDisconnected, ev.Type)
	assert.Contains(t, ev.Payload, "exit status 3")

	assert.ErrorIs(t, h.Probe(context.Background()), ports.ErrEngineClosed)
}

func TestBridge_IgnoresMalformedLines(t *testing.T) {
	events := make(chan ports.Event, 4)
	script := `echo 'not json'; echo '{"type":"bogus"}'; echo '{"type":"auth_failure","data":"bad creds"}'; read -r _`
	h, err := shAdapter(script).Launch(context.Background(), ports.LaunchRequest{
		SessionID: "s1",
		AuthDir:   t.TempDir(),
		Events:    events,
	})
	require.NoError(t, err)
	defer h.Close(context.Background())

	ev := next(t, events)
	assert.Equal(t, ports.EventAuthFailure, ev.Type)
	assert.Equal(t, "bad creds", ev.Payload)
}

func TestBridge_ProbeTimeout(t *testing.T) {
	h, err := shAdapter(`while read -r _; do :; done`).Launch(context.Background(), ports.LaunchRequest{
		SessionID: "s1",
		AuthDir:   t.TempDir(),
	})
	require.NoError(t, err)
	defer h.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Probe(ctx), context.DeadlineExceeded)
}

func TestBridge_PermanentLaunchErrors(t *testing.T) {
	_, err := NewAdapter(Config{}).Launch(context.Background(), ports.LaunchRequest{SessionID: "s1", AuthDir: t.TempDir()})
	assert.True(t, errors.Is(err, ports.ErrLaunchPermanent))

	_, err = NewAdapter(Config{Command: "/nonexistent/bridge-binary"}).Launch(context.Background(), ports.LaunchRequest{SessionID: "s1", AuthDir: t.TempDir()})
	assert.True(t, errors.Is(err, ports.ErrLaunchPermanent), "got %v", err)
}

func TestDecodeLine(t *testing.T) {
	l, err := decodeLine([]byte(`{"type":"qr","data":"x"}`))
	require.NoError(t, err)
	typ, ok := eventFor(l)
	assert.True(t, ok)
	assert.Equal(t, ports.EventQR, typ)

	_, err = decodeLine([]byte(`{}`))
	assert.Error(t, err)

	_, ok = eventFor(Line{Type: linePong})
	assert.False(t, ok)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bridge runs one external automation process per session.
// The process owns the headless browser; sessiond talks to it over
// newline-delimited JSON on stdin and stdout.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
	xglog "github.com/ManuGH/sessiond/internal/log"
	"github.com/ManuGH/sessiond/internal/procgroup"
)

const maxLineBytes = 1 << 20

// Config describes the bridge executable.
type Config struct {
	Command string
	Args    []string
	// Env is appended to the daemon's environment.
	Env []string
	// CloseGrace bounds SIGTERM before SIGKILL, and SIGKILL before giving up.
	CloseGrace time.Duration
}

type Adapter struct {
	cfg    Config
	logger zerolog.Logger
}

func NewAdapter(cfg Config) *Adapter {
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = 5 * time.Second
	}
	return &Adapter{cfg: cfg, logger: xglog.WithComponent("engine.bridge")}
}

var _ ports.Engine = (*Adapter)(nil)

// Launch starts the bridge process. The process gets the session id and auth
// directory through SESSIOND_SESSION_ID and SESSIOND_AUTH_DIR.
func (a *Adapter) Launch(ctx context.Context, req ports.LaunchRequest) (ports.Handle, error) {
	if a.cfg.Command == "" {
		return nil, fmt.Errorf("%w: bridge command not configured", ports.ErrLaunchPermanent)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(req.AuthDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: auth dir: %v", ports.ErrLaunchPermanent, err)
	}

	// The launch ctx must not kill the process once Launch returns, so no CommandContext.
	cmd := exec.Command(a.cfg.Command, a.cfg.Args...) // #nosec G204 -- operator-configured binary
	cmd.Dir = req.AuthDir
	cmd.Env = append(os.Environ(), a.cfg.Env...)
	cmd.Env = append(cmd.Env,
		"SESSIOND_SESSION_ID="+req.SessionID,
		"SESSIOND_AUTH_DIR="+req.AuthDir,
	)
	procgroup.Set(cmd)

	logger := a.logger.With().Str(xglog.FieldSessionID, req.SessionID).Logger()
	cmd.Stderr = stderrLogger{logger: logger}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("bridge stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ports.ErrLaunchPermanent, err)
		}
		return nil, fmt.Errorf("start bridge: %w", err)
	}

	h := &handle{
		id:      "bridge-" + uuid.NewString(),
		cmd:     cmd,
		stdin:   stdin,
		events:  req.Events,
		logger:  logger.With().Int(xglog.FieldPID, cmd.Process.Pid).Logger(),
		grace:   a.cfg.CloseGrace,
		pong:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		reaped:  make(chan struct{}),
		exited:  make(chan struct{}),
		waitCh:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	h.logger.Info().Str(xglog.FieldHandle, h.id).Msg("bridge process started")

	go h.readLoop(stdout)
	return h, nil
}

type handle struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan<- ports.Event
	logger zerolog.Logger
	grace  time.Duration

	probeMu sync.Mutex
	writeMu sync.Mutex
	pong    chan struct{}

	closeOnce sync.Once
	closeErr  error
	closing   chan struct{}
	reaped    chan struct{}

	exited chan struct{}
	waitCh chan error
	done   chan struct{}
}

func (h *handle) ID() string { return h.id }

// Probe sends a ping and waits for the matching pong. Probes are serialized so
// a pong always answers the ping that is waiting for it.
func (h *handle) Probe(ctx context.Context) error {
	h.probeMu.Lock()
	defer h.probeMu.Unlock()

	if h.isExited() || h.isClosing() {
		return ports.ErrEngineClosed
	}

	// Drop a late pong from a probe that already timed out.
	select {
	case <-h.pong:
	default:
	}

	if err := h.write(pingLine); err != nil {
		return fmt.Errorf("bridge ping: %w", err)
	}

	select {
	case <-h.pong:
		return nil
	case <-h.exited:
		return ports.ErrEngineClosed
	case <-h.closing:
		return ports.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes stdin, terminates the process group and waits for the reader.
// ctx bounds how long Close waits; the reap itself is bounded by the grace period.
func (h *handle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		close(h.closing)
		h.writeMu.Lock()
		_ = h.stdin.Close()
		h.writeMu.Unlock()

		go func() {
			err := procgroup.Terminate(h.cmd, h.waitCh, h.grace)
			if errors.Is(err, procgroup.ErrKillFailed) {
				h.closeErr = err
				h.logger.Error().Err(err).Msg("bridge process group did not exit")
			}
			<-h.done
			close(h.reaped)
		}()
	})

	select {
	case <-h.reaped:
		return h.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *handle) write(b []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err := h.stdin.Write(b)
	return err
}

func (h *handle) isExited() bool {
	select {
	case <-h.exited:
		return true
	default:
		return false
	}
}

func (h *handle) isClosing() bool {
	select {
	case <-h.closing:
		return true
	default:
		return false
	}
}

func (h *handle) emit(t ports.EventType, payload string) {
	if h.events == nil {
		return
	}
	select {
	case h.events <- ports.Event{Type: t, Payload: payload, At: time.Now()}:
	case <-h.closing:
	}
}

// readLoop owns stdout and cmd.Wait. It is the only sender on events.
func (h *handle) readLoop(stdout io.Reader) {
	defer close(h.done)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line, err := decodeLine(sc.Bytes())
		if err != nil {
			h.logger.Warn().Err(err).Msg("ignoring malformed bridge line")
			continue
		}
		if line.Type == linePong {
			select {
			case h.pong <- struct{}{}:
			default:
			}
			continue
		}
		t, ok := eventFor(line)
		if !ok {
			h.logger.Debug().Str("type", line.Type).Msg("ignoring unknown bridge line")
			continue
		}
		h.emit(t, line.Data)
	}
	if err := sc.Err(); err != nil && !h.isClosing() {
		h.logger.Warn().Err(err).Msg("bridge stdout read failed")
	}

	werr := h.cmd.Wait()
	close(h.exited)
	h.waitCh <- werr

	if !h.isClosing() {
		h.logger.Warn().Err(werr).Msg("bridge process exited unexpectedly")
		msg := "engine process exited"
		if werr != nil {
			msg += ": " + werr.Error()
		}
		h.emit(ports.EventDisconnected, msg)
	}
}

type stderrLogger struct {
	logger zerolog.Logger
}

func (s stderrLogger) Write(p []byte) (int, error) {
	for _, txt := range strings.Split(string(p), "\n") {
		if txt = strings.TrimSpace(txt); txt != "" {
			s.logger.Debug().Str("stream", "stderr").Msg(txt)
		}
	}
	return len(p), nil
}

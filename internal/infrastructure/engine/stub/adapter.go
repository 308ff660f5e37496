// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stub is an in-process engine for development and tests.
// It issues QR challenges, scans itself after a delay and persists credentials
// in the session's auth directory so a later launch restores without a scan.
package stub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
)

// CredsFile is the credential file the stub writes on a successful scan.
const CredsFile = "creds.json"

var errUnhealthy = errors.New("stub engine marked unhealthy")

// Config controls stub timings. Zero ScanAfter disables the automatic scan.
type Config struct {
	LaunchDelay time.Duration
	QRRefresh   time.Duration
	ScanAfter   time.Duration
}

// DefaultConfig returns timings suitable for local development.
func DefaultConfig() Config {
	return Config{
		QRRefresh: 20 * time.Second,
		ScanAfter: 5 * time.Second,
	}
}

type Adapter struct {
	cfg Config

	mu        sync.Mutex
	instances map[string]*instance // by session id
	unhealthy map[string]bool
	failNext  map[string]error
	launches  map[string]int
}

func NewAdapter(cfg Config) *Adapter {
	return &Adapter{
		cfg:       cfg,
		instances: make(map[string]*instance),
		unhealthy: make(map[string]bool),
		failNext:  make(map[string]error),
		launches:  make(map[string]int),
	}
}

var _ ports.Engine = (*Adapter)(nil)

func (a *Adapter) Launch(ctx context.Context, req ports.LaunchRequest) (ports.Handle, error) {
	a.mu.Lock()
	a.launches[req.SessionID]++
	if err, ok := a.failNext[req.SessionID]; ok {
		delete(a.failNext, req.SessionID)
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Unlock()

	if a.cfg.LaunchDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.cfg.LaunchDelay):
		}
	}

	if err := os.MkdirAll(req.AuthDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: auth dir: %v", ports.ErrLaunchPermanent, err)
	}

	in := &instance{
		id:      "stub-" + uuid.NewString(),
		owner:   a,
		session: req.SessionID,
		dir:     req.AuthDir,
		events:  req.Events,
		scan:    make(chan struct{}, 1),
		drop:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	a.mu.Lock()
	a.instances[req.SessionID] = in
	a.mu.Unlock()

	go in.run(a.cfg)
	return in, nil
}

// SetHealthy controls the outcome of Probe for sessionID.
func (a *Adapter) SetHealthy(sessionID string, healthy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if healthy {
		delete(a.unhealthy, sessionID)
	} else {
		a.unhealthy[sessionID] = true
	}
}

// FailNextLaunch makes the next Launch for sessionID return err.
func (a *Adapter) FailNextLaunch(sessionID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext[sessionID] = err
}

// Scan simulates the user scanning the current QR code.
func (a *Adapter) Scan(sessionID string) bool {
	in := a.instance(sessionID)
	if in == nil {
		return false
	}
	select {
	case in.scan <- struct{}{}:
	default:
	}
	return true
}

// Disconnect simulates transport loss for sessionID.
func (a *Adapter) Disconnect(sessionID string) bool {
	in := a.instance(sessionID)
	if in == nil {
		return false
	}
	select {
	case in.drop <- struct{}{}:
	default:
	}
	return true
}

// Launches reports how many times Launch was called for sessionID.
func (a *Adapter) Launches(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.launches[sessionID]
}

// Running reports the number of instances not yet closed.
func (a *Adapter) Running() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.instances)
}

func (a *Adapter) instance(sessionID string) *instance {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instances[sessionID]
}

func (a *Adapter) healthy(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.unhealthy[sessionID]
}

func (a *Adapter) forget(in *instance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.instances[in.session] == in {
		delete(a.instances, in.session)
	}
}

type instance struct {
	id      string
	owner   *Adapter
	session string
	dir     string
	events  chan<- ports.Event

	scan chan struct{}
	drop chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (in *instance) ID() string { return in.id }

func (in *instance) Probe(ctx context.Context) error {
	select {
	case <-in.stop:
		return ports.ErrEngineClosed
	case <-in.done:
		return ports.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if !in.owner.healthy(in.session) {
		return errUnhealthy
	}
	return nil
}

// Close stops the instance and waits for its loop, so no event is sent after it returns.
func (in *instance) Close(ctx context.Context) error {
	in.stopOnce.Do(func() { close(in.stop) })
	select {
	case <-in.done:
		in.owner.forget(in)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *instance) emit(t ports.EventType, payload string) bool {
	if in.events == nil {
		return true
	}
	select {
	case in.events <- ports.Event{Type: t, Payload: payload, At: time.Now()}:
		return true
	case <-in.stop:
		return false
	}
}

func (in *instance) credsPath() string {
	return filepath.Join(in.dir, CredsFile)
}

func (in *instance) run(cfg Config) {
	defer close(in.done)

	if _, err := os.Stat(in.credsPath()); err == nil {
		if !in.emit(ports.EventAuthenticated, "restored") {
			return
		}
		in.waitConnected()
		return
	}

	if !in.emit(ports.EventQR, in.challenge()) {
		return
	}

	var scanTimer <-chan time.Time
	if cfg.ScanAfter > 0 {
		t := time.NewTimer(cfg.ScanAfter)
		defer t.Stop()
		scanTimer = t.C
	}
	var refresh <-chan time.Time
	if cfg.QRRefresh > 0 {
		tk := time.NewTicker(cfg.QRRefresh)
		defer tk.Stop()
		refresh = tk.C
	}

	for {
		select {
		case <-in.stop:
			return
		case <-refresh:
			if !in.emit(ports.EventQRExpired, "") || !in.emit(ports.EventQR, in.challenge()) {
				return
			}
		case <-in.drop:
			in.emit(ports.EventDisconnected, "simulated transport loss")
			return
		case <-scanTimer:
			in.authenticate()
			return
		case <-in.scan:
			in.authenticate()
			return
		}
	}
}

func (in *instance) authenticate() {
	creds := fmt.Sprintf(`{"session":%q,"issued":%q}`, in.session, time.Now().UTC().Format(time.RFC3339))
	if err := renameio.WriteFile(in.credsPath(), []byte(creds), 0o600); err != nil {
		in.emit(ports.EventAuthFailure, "persist credentials: "+err.Error())
		return
	}
	if in.emit(ports.EventAuthenticated, "scanned") {
		in.waitConnected()
	}
}

func (in *instance) waitConnected() {
	select {
	case <-in.stop:
	case <-in.drop:
		in.emit(ports.EventDisconnected, "simulated transport loss")
	}
}

func (in *instance) challenge() string {
	return fmt.Sprintf("stub-qr:%s:%s", in.session, uuid.NewString())
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package artifacts manages the per-session authentication directories on disk.
// Each session ID owns exactly one directory under the root; the engine keeps its
// credentials there and it survives process restarts.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
)

const (
	dirPrefix  = "session-"
	markerName = "session.json"
)

// Marker is the small metadata file written atomically into every artifact directory.
type Marker struct {
	SessionID       string    `json:"sessionId"`
	CreatedAt       time.Time `json:"createdAt"`
	AuthenticatedAt time.Time `json:"authenticatedAt,omitempty"`
}

// Store resolves and mutates artifact directories below Root.
type Store struct {
	root string
}

// New creates root if needed.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("artifacts: root directory is required")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("artifacts: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string { return s.root }

// Path returns the directory for id without touching the disk.
func (s *Store) Path(id string) (string, error) {
	if err := model.ValidateSessionID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, dirPrefix+id), nil
}

// Exists reports whether the directory for id exists.
func (s *Store) Exists(id string) bool {
	p, err := s.Path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// Ensure creates the directory for id and returns its path.
func (s *Store) Ensure(id string) (string, error) {
	p, err := s.Path(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", fmt.Errorf("artifacts: create %s: %w", id, err)
	}
	return p, nil
}

// List returns the session IDs that own a directory, sorted.
// Entries that are not valid session directories are skipped.
// An unreadable root is returned as an error; callers treat it as fatal.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("artifacts: read root %s: %w", s.root, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		id := strings.TrimPrefix(e.Name(), dirPrefix)
		if !model.IsSafeSessionID(id) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Erase removes the directory for id. Missing directories are not an error.
func (s *Store) Erase(id string) error {
	p, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("artifacts: erase %s: %w", id, err)
	}
	return nil
}

// WriteMarker atomically replaces the marker file for id.
func (s *Store) WriteMarker(id string, m Marker) error {
	dir, err := s.Ensure(id)
	if err != nil {
		return err
	}
	m.SessionID = id
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("artifacts: encode marker: %w", err)
	}

	// renameio handles temp file creation, fsync and atomic rename.
	pending, err := renameio.NewPendingFile(filepath.Join(dir, markerName), renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("artifacts: create pending marker: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("artifacts: write marker: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("artifacts: replace marker: %w", err)
	}
	return nil
}

// ReadMarker reads the marker for id. A missing marker yields os.ErrNotExist.
func (s *Store) ReadMarker(id string) (Marker, error) {
	p, err := s.Path(id)
	if err != nil {
		return Marker{}, err
	}
	data, err := os.ReadFile(filepath.Join(p, markerName))
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("artifacts: decode marker %s: %w", id, err)
	}
	return m, nil
}

// HasAuthState reports whether id's directory holds a marker written after a
// successful authentication. A bare directory left by an unauthenticated launch does not count.
func (s *Store) HasAuthState(id string) bool {
	m, err := s.ReadMarker(id)
	return err == nil && !m.AuthenticatedAt.IsZero()
}

// Writable probes that new artifact directories can be created under the root.
func (s *Store) Writable() error {
	f, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("artifacts: root not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ManuGH/sessiond/internal/domain/session/model"
	"github.com/ManuGH/sessiond/internal/persistence/sqlite"
)

const journalSchemaVersion = 1

// ErrJournalCorrupt is returned when the integrity check fails at open. It aborts startup.
var ErrJournalCorrupt = errors.New("session journal is corrupt")

// SqliteJournal implements Journal using SQLite.
type SqliteJournal struct {
	DB *sql.DB
}

// NewSqliteJournal opens (and migrates) the journal at dbPath.
// An existing file is integrity-checked first.
func NewSqliteJournal(dbPath string) (*SqliteJournal, error) {
	if _, err := os.Stat(dbPath); err == nil {
		problems, err := sqlite.VerifyIntegrity(dbPath, "quick")
		if err != nil {
			return nil, fmt.Errorf("session journal: verify: %w", err)
		}
		if len(problems) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrJournalCorrupt, strings.Join(problems, "; "))
		}
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	j := &SqliteJournal{DB: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session journal: migration failed: %w", err)
	}
	return j, nil
}

func (j *SqliteJournal) Close() error {
	return j.DB.Close()
}

func (j *SqliteJournal) Ping(ctx context.Context) error {
	return j.DB.PingContext(ctx)
}

func (j *SqliteJournal) migrate() error {
	var currentVersion int
	if err := j.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= journalSchemaVersion {
		return nil
	}

	tx, err := j.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		persisted INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		last_activity_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_ms);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", journalSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (j *SqliteJournal) Upsert(ctx context.Context, e JournalEntry) error {
	query := `
	INSERT INTO sessions (session_id, state, persisted, created_at_ms, last_activity_ms, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		state = excluded.state,
		persisted = excluded.persisted,
		last_activity_ms = excluded.last_activity_ms,
		updated_at_ms = excluded.updated_at_ms
	`
	_, err := j.DB.ExecContext(ctx, query,
		e.SessionID, string(e.State), boolToInt(e.Persisted),
		t2ms(e.CreatedAt), t2ms(e.LastActivityAt), t2ms(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("session journal: upsert %s: %w", e.SessionID, err)
	}
	return nil
}

func (j *SqliteJournal) Remove(ctx context.Context, id string) error {
	if _, err := j.DB.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("session journal: remove %s: %w", id, err)
	}
	return nil
}

func (j *SqliteJournal) Load(ctx context.Context) (map[string]JournalEntry, error) {
	rows, err := j.DB.QueryContext(ctx,
		"SELECT session_id, state, persisted, created_at_ms, last_activity_ms, updated_at_ms FROM sessions")
	if err != nil {
		return nil, fmt.Errorf("session journal: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]JournalEntry)
	for rows.Next() {
		var (
			e                               JournalEntry
			state                           string
			persisted                       int
			createdMs, activityMs, updateMs int64
		)
		if err := rows.Scan(&e.SessionID, &state, &persisted, &createdMs, &activityMs, &updateMs); err != nil {
			return nil, fmt.Errorf("session journal: scan: %w", err)
		}
		e.State = model.SessionState(state)
		e.Persisted = persisted != 0
		e.CreatedAt = ms2t(createdMs)
		e.LastActivityAt = ms2t(activityMs)
		e.UpdatedAt = ms2t(updateMs)
		out[e.SessionID] = e
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func t2ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func ms2t(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

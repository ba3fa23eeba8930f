// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pgstore implements [mcp.SessionStore] and [mcp.EventStore] on top
// of PostgreSQL, for deployments that run more than one StreamableHTTPHandler
// process behind a load balancer and need session and stream state shared
// across them. It is grounded in the teacher SDK's examples/postgres
// package, which opens its *sql.DB the same way via database/sql and
// github.com/lib/pq, though that example queries a user's own data rather
// than SDK-owned tables.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/corerpc/mcp/mcp"
)

// Schema is the DDL pgstore requires. Callers are expected to run it once
// (via a migration tool or psql) before constructing a [SessionStore] or
// [EventStore]; pgstore does not run migrations itself, the way the
// teacher's examples/postgres package expects its schema to already exist.
const Schema = `
CREATE TABLE IF NOT EXISTS mcp_sessions (
	session_id       TEXT PRIMARY KEY,
	initialized      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL,
	last_activity    TIMESTAMPTZ NOT NULL,
	protocol_version TEXT NOT NULL DEFAULT '',
	metadata         JSONB
);

CREATE TABLE IF NOT EXISTS mcp_stream_events (
	stream_id  TEXT NOT NULL,
	event_id   BIGINT NOT NULL,
	data       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (stream_id, event_id)
);
`

// Open opens a PostgreSQL connection pool at databaseURL, the way
// NewPostgresServer does in the teacher's examples/postgres package, and
// verifies connectivity with a Ping before returning.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgstore: pinging database: %w", err)
	}
	return db, nil
}

// SessionStore is a PostgreSQL-backed [mcp.SessionStore].
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSessionStore returns a [SessionStore] using db. If ttl is positive, a
// session not refreshed via UpdateSessionActivity within ttl is treated as
// expired by GetSession and SessionExists, matching
// [mcp.MemorySessionStore]'s TTL semantics.
func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	return &SessionStore{db: db, ttl: ttl}
}

var _ mcp.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) StoreSession(ctx context.Context, rec *mcp.SessionRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("pgstore: marshaling session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_sessions (session_id, initialized, created_at, last_activity, protocol_version, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			initialized = EXCLUDED.initialized,
			last_activity = EXCLUDED.last_activity,
			protocol_version = EXCLUDED.protocol_version,
			metadata = EXCLUDED.metadata
	`, rec.SessionID, rec.Initialized, rec.CreatedAt, rec.LastActivity, rec.ProtocolVersion, meta)
	if err != nil {
		return fmt.Errorf("pgstore: storing session %q: %w", rec.SessionID, err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*mcp.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, initialized, created_at, last_activity, protocol_version, metadata
		FROM mcp_sessions WHERE session_id = $1
	`, id)

	rec := &mcp.SessionRecord{}
	var meta []byte
	if err := row.Scan(&rec.SessionID, &rec.Initialized, &rec.CreatedAt, &rec.LastActivity, &rec.ProtocolVersion, &meta); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("pgstore: getting session %q: %w", id, err)
	}
	if s.expired(rec.LastActivity) {
		return nil, nil
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("pgstore: decoding metadata for session %q: %w", id, err)
		}
	}
	return rec, nil
}

func (s *SessionStore) UpdateSessionActivity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE mcp_sessions SET last_activity = $2 WHERE session_id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("pgstore: updating activity for session %q: %w", id, err)
	}
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_sessions WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: deleting session %q: %w", id, err)
	}
	return nil
}

func (s *SessionStore) SessionExists(ctx context.Context, id string) (bool, error) {
	var lastActivity time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_activity FROM mcp_sessions WHERE session_id = $1`, id).Scan(&lastActivity)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pgstore: checking session %q: %w", id, err)
	}
	return !s.expired(lastActivity), nil
}

func (s *SessionStore) expired(lastActivity time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	return time.Since(lastActivity) > s.ttl
}

// EventStore is a PostgreSQL-backed [mcp.EventStore]. Event IDs are
// assigned from a per-stream sequence maintained in Go under a row lock,
// rather than a BIGSERIAL column, so that Append can report the assigned
// ID back to the caller atomically with the insert.
type EventStore struct {
	db *sql.DB
}

// NewEventStore returns an [EventStore] using db.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

var _ mcp.EventStore = (*EventStore)(nil)

func (s *EventStore) Append(ctx context.Context, streamID string, data []byte) (eventID int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("pgstore: beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(event_id) FROM mcp_stream_events WHERE stream_id = $1 FOR UPDATE
	`, streamID).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("pgstore: computing next event id for stream %q: %w", streamID, err)
	}
	next := maxID.Int64 + 1

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO mcp_stream_events (stream_id, event_id, data) VALUES ($1, $2, $3)
	`, streamID, next, data); err != nil {
		return 0, fmt.Errorf("pgstore: appending event to stream %q: %w", streamID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("pgstore: committing append to stream %q: %w", streamID, err)
	}
	return next, nil
}

func (s *EventStore) Replay(ctx context.Context, streamID string, afterEventID int64, sink func(mcp.Event) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, data FROM mcp_stream_events
		WHERE stream_id = $1 AND event_id > $2
		ORDER BY event_id ASC
	`, streamID, afterEventID)
	if err != nil {
		return fmt.Errorf("pgstore: replaying stream %q: %w", streamID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e mcp.Event
		if err := rows.Scan(&e.ID, &e.Data); err != nil {
			return fmt.Errorf("pgstore: scanning event for stream %q: %w", streamID, err)
		}
		if err := sink(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *EventStore) Trim(ctx context.Context, streamID string, upTo int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM mcp_stream_events WHERE stream_id = $1 AND event_id <= $2
	`, streamID, upTo)
	if err != nil {
		return fmt.Errorf("pgstore: trimming stream %q: %w", streamID, err)
	}
	return nil
}

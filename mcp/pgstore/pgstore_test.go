// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pgstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/corerpc/mcp/mcp"
)

// newMockSessionStore mirrors createMockPostgresServer from the teacher
// SDK's examples/postgres package: a sqlmock-backed *sql.DB wrapped in the
// type under test, with a cleanup func for the caller to defer.
func newMockSessionStore(t *testing.T) (*SessionStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewSessionStore(db, 0), mock, func() { db.Close() }
}

func newMockEventStore(t *testing.T) (*EventStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewEventStore(db), mock, func() { db.Close() }
}

func TestSessionStore_StoreAndGet(t *testing.T) {
	store, mock, cleanup := newMockSessionStore(t)
	defer cleanup()

	rec := &mcp.SessionRecord{
		SessionID:       "sess-1",
		Initialized:     true,
		CreatedAt:       time.Now(),
		LastActivity:    time.Now(),
		ProtocolVersion: "2025-06-18",
		Metadata:        map[string]any{"client": "test"},
	}

	mock.ExpectExec("INSERT INTO mcp_sessions").
		WithArgs(rec.SessionID, rec.Initialized, rec.CreatedAt, rec.LastActivity, rec.ProtocolVersion, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.StoreSession(context.Background(), rec))

	rows := sqlmock.NewRows([]string{"session_id", "initialized", "created_at", "last_activity", "protocol_version", "metadata"}).
		AddRow(rec.SessionID, rec.Initialized, rec.CreatedAt, rec.LastActivity, rec.ProtocolVersion, []byte(`{"client":"test"}`))
	mock.ExpectQuery("SELECT session_id, initialized, created_at, last_activity, protocol_version, metadata").
		WithArgs(rec.SessionID).
		WillReturnRows(rows)

	got, err := store.GetSession(context.Background(), rec.SessionID)
	require.NoError(t, err)
	require.Equal(t, rec.SessionID, got.SessionID)
	require.Equal(t, "test", got.Metadata["client"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_GetSessionMissing(t *testing.T) {
	store, mock, cleanup := newMockSessionStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT session_id, initialized, created_at, last_activity, protocol_version, metadata").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	got, err := store.GetSession(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSessionStore_ExpiredSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewSessionStore(db, time.Minute)

	stale := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"session_id", "initialized", "created_at", "last_activity", "protocol_version", "metadata"}).
		AddRow("sess-2", true, stale, stale, "2025-06-18", nil)
	mock.ExpectQuery("SELECT session_id, initialized, created_at, last_activity, protocol_version, metadata").
		WithArgs("sess-2").
		WillReturnRows(rows)

	got, err := store.GetSession(context.Background(), "sess-2")
	require.NoError(t, err)
	require.Nil(t, got, "expired session must read back as missing")
}

func TestEventStore_AppendAssignsIncreasingIDs(t *testing.T) {
	store, mock, cleanup := newMockEventStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT MAX\\(event_id\\) FROM mcp_stream_events").
		WithArgs("stream-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectExec("INSERT INTO mcp_stream_events").
		WithArgs("stream-1", int64(1), []byte("hello")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := store.Append(context.Background(), "stream-1", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_Replay(t *testing.T) {
	store, mock, cleanup := newMockEventStore(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"event_id", "data"}).
		AddRow(int64(2), []byte("b")).
		AddRow(int64(3), []byte("c"))
	mock.ExpectQuery("SELECT event_id, data FROM mcp_stream_events").
		WithArgs("stream-1", int64(1)).
		WillReturnRows(rows)

	var got []mcp.Event
	err := store.Replay(context.Background(), "stream-1", 1, func(e mcp.Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].ID)
	require.Equal(t, int64(3), got[1].ID)
}

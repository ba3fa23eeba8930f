// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"sync"
	"time"
)

// SessionRecord is the persisted state of one streamable-HTTP session, per
// the data model's Session record: `{ sessionId, initialized, createdAt,
// lastActivity, protocolVersion?, metadata? }`.
type SessionRecord struct {
	SessionID       string
	Initialized     bool
	CreatedAt       time.Time
	LastActivity    time.Time
	ProtocolVersion string
	Metadata        map[string]any
}

// expired reports whether the record's TTL, measured from LastActivity,
// has elapsed as of now.
func (r *SessionRecord) expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(r.LastActivity) > ttl
}

// SessionStore persists [SessionRecord] values for the streamable HTTP
// transport, as described in §4.4. Implementations must be safe for
// concurrent use. Expired sessions must never be returned by GetSession or
// SessionExists.
type SessionStore interface {
	// StoreSession upserts a session record with the store's configured
	// TTL.
	StoreSession(ctx context.Context, rec *SessionRecord) error
	// GetSession fetches a session record, or returns (nil, nil) if it is
	// missing or expired.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	// UpdateSessionActivity refreshes LastActivity (and therefore the
	// TTL). It is a no-op, returning no error, if the session is missing.
	UpdateSessionActivity(ctx context.Context, id string) error
	// DeleteSession removes a session record. It is idempotent.
	DeleteSession(ctx context.Context, id string) error
	// SessionExists is a cheap existence check equivalent to
	// GetSession(id) != nil, but implementations may special-case it to
	// avoid deserializing the full record.
	SessionExists(ctx context.Context, id string) (bool, error)
}

// MemorySessionStore is an in-memory [SessionStore], the default used by
// [StreamableHTTPHandler] when no store is configured. It is suitable for
// a single-process deployment; see mcp/pgstore for a durable alternative.
type MemorySessionStore struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*SessionRecord
}

// NewMemorySessionStore returns a MemorySessionStore whose entries expire
// ttl after their last activity. A non-positive ttl disables expiry.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, sessions: make(map[string]*SessionRecord)}
}

func (s *MemorySessionStore) StoreSession(ctx context.Context, rec *SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *rec
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.SessionID] = &cp
	return nil
}

func (s *MemorySessionStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if rec.expired(time.Now(), s.ttl) {
		delete(s.sessions, id)
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemorySessionStore) UpdateSessionActivity(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil
	}
	rec.LastActivity = time.Now()
	return nil
}

func (s *MemorySessionStore) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) SessionExists(ctx context.Context, id string) (bool, error) {
	rec, err := s.GetSession(ctx, id)
	return rec != nil, err
}

// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ClientStore persists dynamically registered and pre-registered OAuth
// clients. The default, [NewMemoryClientStore], is an in-memory map;
// production deployments may back this with a database.
type ClientStore interface {
	// Register creates and persists a new client record from metadata,
	// returning the resolved record (with a freshly minted ClientID and,
	// for confidential clients, ClientSecret in plaintext — it is never
	// retrievable again).
	Register(ctx context.Context, authMethod string, redirectURIs []string, scope, clientName string) (record *ClientRecord, plaintextSecret string, err error)
	// Get returns the client registered under id, or (nil, false).
	Get(ctx context.Context, id string) (*ClientRecord, bool, error)
	// VerifySecret reports whether secret is the correct client_secret for
	// id. It always runs the bcrypt comparison, even for unknown clients
	// (against a fixed dummy hash), to avoid timing side channels that
	// reveal client existence.
	VerifySecret(ctx context.Context, id, secret string) bool
}

// dummyHash is compared against when the client is unknown, so that
// [memoryClientStore.VerifySecret] takes the same time whether or not id
// exists.
var dummyHash = mustHash("not-a-real-secret")

func mustHash(s string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

type memoryClientStore struct {
	mu      sync.Mutex
	clients map[string]*ClientRecord
}

// NewMemoryClientStore returns a [ClientStore] backed by an in-memory map.
func NewMemoryClientStore() ClientStore {
	return &memoryClientStore{clients: make(map[string]*ClientRecord)}
}

func (s *memoryClientStore) Register(ctx context.Context, authMethod string, redirectURIs []string, scope, clientName string) (*ClientRecord, string, error) {
	rec := &ClientRecord{
		ClientID:                uuid.NewString(),
		RedirectURIs:            redirectURIs,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		Scope:                   scope,
		ClientName:              clientName,
		CreatedAt:                time.Now(),
	}

	var plaintext string
	switch authMethod {
	case "none":
		// Public client: no secret.
	case "private_key_jwt":
		var err error
		plaintext, err = randomSecret()
		if err != nil {
			return nil, "", err
		}
		// Kept in recoverable form: it doubles as the HMAC key for
		// HS*-signed client_assertion JWTs.
		rec.HMACSecret = plaintext
	default: // client_secret_basic, client_secret_post
		var err error
		plaintext, err = randomSecret()
		if err != nil {
			return nil, "", err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", err
		}
		rec.SecretHash = string(hash)
	}

	s.mu.Lock()
	s.clients[rec.ClientID] = rec
	s.mu.Unlock()
	return rec, plaintext, nil
}

func (s *memoryClientStore) Get(ctx context.Context, id string) (*ClientRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[id]
	return rec, ok, nil
}

func (s *memoryClientStore) VerifySecret(ctx context.Context, id, secret string) bool {
	s.mu.Lock()
	rec, ok := s.clients[id]
	s.mu.Unlock()
	hash := dummyHash
	if ok && rec.SecretHash != "" {
		hash = rec.SecretHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return ok && rec.SecretHash != "" && err == nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating client secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// codeStore holds one-time authorization codes. It is always in-memory:
// codes are short-lived (minutes) by design, so durability across restarts
// is not required the way session/event history is.
type codeStore struct {
	mu    sync.Mutex
	codes map[string]*authCode
}

func newCodeStore() *codeStore {
	return &codeStore{codes: make(map[string]*authCode)}
}

func (s *codeStore) put(c *authCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.Code] = c
}

// take returns and deletes the code if present, unexpired, and unused,
// enforcing the data model's "one-time use" invariant.
func (s *codeStore) take(code string) (*authCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, false
	}
	delete(s.codes, code)
	if c.used || time.Now().After(c.ExpiresAt) {
		return nil, false
	}
	c.used = true
	return c, true
}

type refreshTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*refreshToken
}

func newRefreshTokenStore() *refreshTokenStore {
	return &refreshTokenStore{tokens: make(map[string]*refreshToken)}
}

func (s *refreshTokenStore) put(t *refreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
}

func (s *refreshTokenStore) get(token string) (*refreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok || time.Now().After(t.ExpiresAt) {
		return nil, false
	}
	return t, true
}

func (s *refreshTokenStore) delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

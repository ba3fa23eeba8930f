// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package oauthserver implements an OAuth 2.1 authorization server's HTTP
// handlers: metadata discovery, dynamic client registration (RFC 7591),
// the authorize and token endpoints with PKCE (RFC 7636) and resource
// indicators (RFC 8707), and best-effort token revocation (RFC 7009).
//
// The package is grounded in internal/testing/fake_auth_server.go's PKCE
// verification shape and JWT issuance, expanded from a single-file test
// fixture into the full RFC surface, with pluggable client storage and
// rate limiting.
package oauthserver

import (
	"time"
)

// ClientRecord is a registered OAuth client, per RFC 7591.
type ClientRecord struct {
	ClientID                string
	SecretHash              string // bcrypt hash; empty for public clients
	SecretExpiresAt         time.Time
	RedirectURIs            []string
	TokenEndpointAuthMethod string // client_secret_basic, client_secret_post, none, private_key_jwt
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	JWKSURI                 string
	JWKS                    []byte
	ClientName              string
	CreatedAt               time.Time

	// HMACSecret is the plaintext symmetric key for private_key_jwt
	// clients authenticating with an HS*-signed assertion. Unlike
	// SecretHash, it must be kept in recoverable form to serve as an HMAC
	// key, so it is only populated for TokenEndpointAuthMethod ==
	// "private_key_jwt" and never for client_secret_basic/post clients.
	HMACSecret string
}

// authCode is a one-time authorization code bound to a PKCE challenge, per
// the data model's "OAuth authorization code record".
type authCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Scopes              []string
	Resource            string
	UserID              string
	ExpiresAt           time.Time
	used                bool
}

// refreshToken is an opaque, long-lived credential exchangeable for a fresh
// access token.
type refreshToken struct {
	Token     string
	ClientID  string
	Scopes    []string
	Resource  string
	UserID    string
	ExpiresAt time.Time
}

// OAuthError is the RFC 6749 ยง5.2 error body shape used by every
// error response this package produces.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *OAuthError) Error() string { return e.Code + ": " + e.Description }

func newOAuthError(code, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description}
}

// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements RFC 6750 bearer-token validation as server-side
// middleware: checking an incoming Authorization header, enforcing token
// expiry and required scopes, and building the WWW-Authenticate challenge
// that lets a client bootstrap OAuth discovery.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"
)

// ErrInvalidToken is returned by a [TokenVerifier] when the token itself is
// malformed or unrecognized (as opposed to expired or out of scope).
var ErrInvalidToken = errors.New("invalid token")

// ErrOAuth is returned by a [TokenVerifier] to indicate an upstream OAuth
// protocol error (e.g. an introspection call failed); it is reported to the
// client as a 400 rather than a 401, since it is not a claim about the
// token's validity.
var ErrOAuth = errors.New("oauth error")

// TokenInfo is the verified claims of a bearer token, as returned by a
// [TokenVerifier].
type TokenInfo struct {
	// Scopes granted to the token.
	Scopes []string
	// Expiration is when the token expires. It MUST be set; tokens without
	// an expiration are rejected.
	Expiration time.Time
	// UserID identifies the subject the token was issued to, if known.
	UserID string
	// ClientID identifies the OAuth client the token was issued to, if known.
	ClientID string
	// Resource is the RFC 8707 resource indicator the token was bound to,
	// if any.
	Resource string
}

// TokenVerifier verifies a bearer token extracted from an incoming request
// and returns its claims. Implementations may verify offline (e.g. a JWT
// signature) or via an introspection round trip to the authorization
// server. req is provided so a verifier can incorporate request details
// (e.g. the target resource) into its decision.
type TokenVerifier func(ctx context.Context, token string, req *http.Request) (*TokenInfo, error)

// RequireBearerTokenOptions configures [RequireBearerToken].
type RequireBearerTokenOptions struct {
	// Scopes lists the scopes required of every accepted token. All listed
	// scopes must be present (logical AND).
	Scopes []string
	// ResourceMetadataURL is the URL of this resource's RFC 9728 protected
	// resource metadata document, advertised in the WWW-Authenticate
	// challenge so clients can discover how to authorize.
	ResourceMetadataURL string
}

type authInfoKey struct{}

// TokenInfoFromContext returns the [TokenInfo] attached to ctx by
// [RequireBearerToken], or nil if there is none.
func TokenInfoFromContext(ctx context.Context) *TokenInfo {
	info, _ := ctx.Value(authInfoKey{}).(*TokenInfo)
	return info
}

// RequireBearerToken returns a middleware that validates an
// "Authorization: Bearer <token>" header on every request using verifier,
// rejecting requests with no token, an invalid or expired token, or
// insufficient scope.
func RequireBearerToken(verifier TokenVerifier, opts *RequireBearerTokenOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, errCode, msg, code := verify(r, verifier, opts)
			if code != 0 {
				writeAuthError(w, opts, errCode, msg, code)
				return
			}
			ctx := context.WithValue(r.Context(), authInfoKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// verify extracts and validates the bearer token from r. It returns the
// validated [TokenInfo] and a zero code on success, or an RFC 6750 error
// code (e.g. "invalid_token", "insufficient_scope"), a human-readable
// message, and an HTTP status code on failure.
func verify(r *http.Request, verifier TokenVerifier, opts *RequireBearerTokenOptions) (*TokenInfo, string, string, int) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, "invalid_token", "no bearer token", http.StatusUnauthorized
	}

	info, err := verifier(r.Context(), token, r)
	if err != nil {
		if errors.Is(err, ErrOAuth) {
			return nil, "", "oauth error", http.StatusBadRequest
		}
		return nil, "invalid_token", "invalid token", http.StatusUnauthorized
	}

	if info.Expiration.IsZero() {
		return nil, "invalid_token", "token missing expiration", http.StatusUnauthorized
	}
	if !info.Expiration.After(time.Now()) {
		return nil, "invalid_token", "token expired", http.StatusUnauthorized
	}

	if opts != nil {
		for _, want := range opts.Scopes {
			if !slices.Contains(info.Scopes, want) {
				return nil, "insufficient_scope", "insufficient scope", http.StatusForbidden
			}
		}
	}

	return info, "", "", 0
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return h[len(prefix):], true
}

// writeAuthError builds the RFC 6750 WWW-Authenticate challenge — carrying
// error, error_description, scope, and resource_metadata as applicable —
// and writes the HTTP error response.
func writeAuthError(w http.ResponseWriter, opts *RequireBearerTokenOptions, errCode, msg string, code int) {
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		var parts []string
		if errCode != "" {
			parts = append(parts, `error="`+errCode+`"`)
		}
		if msg != "" {
			parts = append(parts, `error_description="`+msg+`"`)
		}
		if opts != nil && len(opts.Scopes) > 0 {
			parts = append(parts, `scope="`+strings.Join(opts.Scopes, " ")+`"`)
		}
		if opts != nil && opts.ResourceMetadataURL != "" {
			parts = append(parts, `resource_metadata="`+opts.ResourceMetadataURL+`"`)
		}
		if len(parts) > 0 {
			w.Header().Set("WWW-Authenticate", "Bearer "+strings.Join(parts, ", "))
		}
	}
	http.Error(w, msg, code)
}

// ProtectedResourceMetadataHandler returns an [http.Handler] that serves
// metadata as the RFC 9728 protected resource metadata document, with
// appropriate caching and CORS headers for discovery by browser-based
// clients.
func ProtectedResourceMetadataHandler(metadata any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metadata)
	})
}

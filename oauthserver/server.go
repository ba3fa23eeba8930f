// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/corerpc/mcp/auth"
)

// Config configures a [Server]. Issuer is the only required field; every
// other field has a production-sane default applied by [NewServer].
type Config struct {
	// Issuer is this server's base URL, e.g. "https://auth.example.com". It
	// is used verbatim as the "iss" claim, the RFC 8414 metadata issuer, and
	// the prefix for every endpoint this server exposes.
	Issuer string

	// Scopes lists the scopes this server knows how to grant. It is
	// advertised in authorization-server metadata but not otherwise
	// enforced here — scope enforcement against a specific resource is
	// [auth.RequireBearerToken]'s job, downstream at the resource server.
	Scopes []string

	// SigningKey is the HMAC key used to sign and verify access tokens. If
	// nil, NewServer generates a random one, which means tokens do not
	// survive a process restart — set this explicitly for a deployment with
	// more than one resource server instance, or more than one
	// authorization server replica.
	SigningKey []byte

	AccessTokenTTL  time.Duration // default 1 hour
	AuthCodeTTL     time.Duration // default 60 seconds
	RefreshTokenTTL time.Duration // default 30 days

	// ClientStore persists registered clients. Defaults to
	// [NewMemoryClientStore].
	ClientStore ClientStore

	// RegisterRateLimiter and TokenRateLimiter bound request volume to
	// /register and /token respectively, keyed by caller IP. Defaults are
	// 20/hour and 50/15min, chosen to allow normal client bootstrap and
	// token refresh traffic while blunting credential-stuffing and
	// registration-spam attempts.
	RegisterRateLimiter RateLimiter
	TokenRateLimiter    RateLimiter

	// RequireResourceIndicator, when true, rejects authorization requests
	// that omit the RFC 8707 "resource" parameter. Off by default so a
	// single-resource deployment need not set it.
	RequireResourceIndicator bool

	// Authenticate resolves the end user making an authorization request,
	// returning a stable user identifier. The default accepts every
	// request as a fixed anonymous subject: this package does not ship a
	// login UI; embedders that front this server with a login page should
	// set Authenticate to read their own session cookie instead.
	Authenticate func(r *http.Request) (userID string, err error)
}

// Server is an OAuth 2.1 authorization server implementing metadata
// discovery, dynamic client registration, authorize, token, and revoke.
type Server struct {
	cfg           Config
	codes         *codeStore
	refreshTokens *refreshTokenStore
	issuer        *jwtIssuer
}

func anonymousAuthenticate(*http.Request) (string, error) {
	return "anonymous", nil
}

// NewServer returns a [Server] configured per cfg, applying defaults for
// every field cfg leaves zero. cfg.Issuer must be set.
func NewServer(cfg Config) *Server {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	if cfg.AuthCodeTTL == 0 {
		cfg.AuthCodeTTL = 60 * time.Second
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if cfg.ClientStore == nil {
		cfg.ClientStore = NewMemoryClientStore()
	}
	if cfg.RegisterRateLimiter == nil {
		cfg.RegisterRateLimiter = NewWindowedRateLimiter(20, time.Hour)
	}
	if cfg.TokenRateLimiter == nil {
		cfg.TokenRateLimiter = NewWindowedRateLimiter(50, 15*time.Minute)
	}
	if cfg.Authenticate == nil {
		cfg.Authenticate = anonymousAuthenticate
	}
	key := cfg.SigningKey
	if len(key) == 0 {
		key = mustRandomKey(32)
	}

	return &Server{
		cfg:           cfg,
		codes:         newCodeStore(),
		refreshTokens: newRefreshTokenStore(),
		issuer:        newJWTIssuer(cfg.Issuer, key, cfg.AccessTokenTTL),
	}
}

func mustRandomKey(n int) []byte {
	s, err := randomSecret()
	if err != nil {
		panic(err)
	}
	return []byte(s)[:n]
}

// Verifier returns an [auth.TokenVerifier] that validates access tokens
// minted by s, suitable for passing to [auth.RequireBearerToken] when this
// server is also the resource server (or trusted directly by one).
func (s *Server) Verifier() auth.TokenVerifier {
	return s.issuer.Verifier()
}

// Handler returns an [http.Handler] serving every endpoint this server
// exposes, routed with [gorilla/mux] the way the teacher SDK's streamable
// transport routes its own endpoints.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata).Methods(http.MethodGet)
	r.HandleFunc("/.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/authorize", s.handleAuthorize).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)
	r.HandleFunc("/revoke", s.handleRevoke).Methods(http.MethodPost)
	return r
}

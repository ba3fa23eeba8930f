// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/corerpc/mcp/oauthex"
)

// handleRegister serves POST /register, RFC 7591 dynamic client
// registration.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if allowed, retryAfter := s.cfg.RegisterRateLimiter.Consume(clientKey(r)); !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	var meta oauthex.ClientRegistrationMetadata
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&meta); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "malformed JSON body")
		return
	}

	if err := validateRegistration(&meta); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", err.Error())
		return
	}

	authMethod := meta.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "client_secret_basic"
	}

	rec, plaintextSecret, err := s.cfg.ClientStore.Register(r.Context(), authMethod, meta.RedirectURIs, meta.Scope, meta.ClientName)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to register client")
		return
	}

	resp := &oauthex.ClientRegistrationResponse{
		ClientID:                rec.ClientID,
		ClientSecret:            plaintextSecret,
		ClientIDIssuedAt:        rec.CreatedAt.Unix(),
		RedirectURIs:            rec.RedirectURIs,
		TokenEndpointAuthMethod: rec.TokenEndpointAuthMethod,
		GrantTypes:              rec.GrantTypes,
		ResponseTypes:           rec.ResponseTypes,
		ClientName:              rec.ClientName,
		Scope:                   rec.Scope,
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func validateRegistration(meta *oauthex.ClientRegistrationMetadata) error {
	if len(meta.RedirectURIs) == 0 {
		return fmt.Errorf("redirect_uris is required")
	}
	for _, u := range meta.RedirectURIs {
		pu, err := url.Parse(u)
		if err != nil || pu.Scheme == "" || pu.Host == "" {
			return fmt.Errorf("invalid redirect_uri %q", u)
		}
	}
	switch meta.TokenEndpointAuthMethod {
	case "", "client_secret_basic", "client_secret_post", "none", "private_key_jwt":
	default:
		return fmt.Errorf("unsupported token_endpoint_auth_method %q", meta.TokenEndpointAuthMethod)
	}
	return nil
}

// clientKey returns the rate-limiting key for r: the client's remote
// address, stripped of its port.
func clientKey(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds()+0.5)))
	}
	writeOAuthError(w, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
}

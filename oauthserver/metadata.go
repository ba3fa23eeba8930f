// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"encoding/json"
	"net/http"

	"github.com/corerpc/mcp/oauthex"
)

func (s *Server) metadata() *oauthex.AuthServerMeta {
	return &oauthex.AuthServerMeta{
		Issuer:                             s.cfg.Issuer,
		AuthorizationEndpoint:              s.cfg.Issuer + "/authorize",
		TokenEndpoint:                      s.cfg.Issuer + "/token",
		RegistrationEndpoint:               s.cfg.Issuer + "/register",
		RevocationEndpoint:                 s.cfg.Issuer + "/revoke",
		ScopesSupported:                    s.cfg.Scopes,
		ResponseTypesSupported:             []string{"code"},
		GrantTypesSupported:                []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported:  []string{"client_secret_basic", "client_secret_post", "none", "private_key_jwt"},
		CodeChallengeMethodsSupported:      []string{"S256"},
	}
}

// handleMetadata serves GET /.well-known/oauth-authorization-server, per
// RFC 8414.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeCacheableJSON(w, s.metadata())
}

// handleProtectedResourceMetadata serves GET
// /.well-known/oauth-protected-resource, per RFC 9728. It describes this
// server acting as its own protected resource — deployments with a
// separate MCP resource server instead serve their own document using
// [auth.ProtectedResourceMetadataHandler].
func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	prm := &oauthex.ProtectedResourceMetadata{
		Resource:              s.cfg.Issuer,
		AuthorizationServers:  []string{s.cfg.Issuer},
		ScopesSupported:       s.cfg.Scopes,
		BearerMethodsSupported: []string{"header"},
	}
	writeCacheableJSON(w, prm)
}

func writeCacheableJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(newOAuthError(code, description))
}

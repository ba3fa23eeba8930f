// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import "net/http"

// handleRevoke serves POST /revoke, RFC 7009 best-effort token revocation.
// Per the RFC, the endpoint responds 200 regardless of whether the token
// was found, so a client cannot probe for token validity this way.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}
	if _, err := s.authenticateClient(r); err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", err.Error())
		return
	}

	token := r.Form.Get("token")
	s.refreshTokens.delete(token)
	// Access tokens are stateless JWTs in this implementation and cannot be
	// revoked individually short of maintaining a denylist; best-effort here
	// means we revoke what we can track (refresh tokens) and otherwise
	// succeed silently, matching RFC 7009's guidance that an unsupported
	// token_type_hint is not an error.

	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

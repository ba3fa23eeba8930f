// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// handleAuthorize serves GET/POST /authorize, using two-phase
// validation: phase 1 (client_id, redirect_uri) fails as a direct 400
// response since there is nowhere safe to redirect to; phase 2 (everything
// else) fails by redirecting back to redirect_uri with an error.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid_request: malformed query", http.StatusBadRequest)
		return
	}
	q := r.Form

	// Phase 1: validate client_id and redirect_uri directly.
	clientID := q.Get("client_id")
	if clientID == "" {
		http.Error(w, "invalid_request: missing client_id", http.StatusBadRequest)
		return
	}
	client, ok, err := s.cfg.ClientStore.Get(r.Context(), clientID)
	if err != nil || !ok {
		http.Error(w, "invalid_request: unknown client_id", http.StatusBadRequest)
		return
	}
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || !slices.Contains(client.RedirectURIs, redirectURI) {
		http.Error(w, "invalid_request: redirect_uri not registered for this client", http.StatusBadRequest)
		return
	}

	// Phase 2: every remaining failure is reported by redirecting back to
	// redirect_uri with error/error_description/state.
	state := q.Get("state")
	fail := func(code, description string) {
		redirectError(w, r, redirectURI, state, code, description)
	}

	if rt := q.Get("response_type"); rt != "code" {
		fail("unsupported_response_type", "only response_type=code is supported")
		return
	}
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")
	if codeChallenge == "" {
		fail("invalid_request", "code_challenge is required")
		return
	}
	if codeChallengeMethod != "S256" {
		fail("invalid_request", "only code_challenge_method=S256 is supported")
		return
	}

	resource := q.Get("resource")
	if resource != "" {
		if u, err := url.Parse(resource); err != nil || u.Scheme == "" {
			fail("invalid_target", "resource must be an absolute URI")
			return
		}
	} else if s.cfg.RequireResourceIndicator {
		fail("invalid_target", "resource is required")
		return
	}

	var scopes []string
	if sc := q.Get("scope"); sc != "" {
		scopes = strings.Fields(sc)
	}

	userID, err := s.cfg.Authenticate(r)
	if err != nil {
		fail("access_denied", "authentication failed")
		return
	}

	code := &authCode{
		Code:                uuid.NewString(),
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
		Scopes:              scopes,
		Resource:            resource,
		UserID:              userID,
		ExpiresAt:           time.Now().Add(s.cfg.AuthCodeTTL),
	}
	s.codes.put(code)

	dest, _ := url.Parse(redirectURI)
	qs := dest.Query()
	qs.Set("code", code.Code)
	if state != "" {
		qs.Set("state", state)
	}
	dest.RawQuery = qs.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state, code, description string) {
	dest, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid_request: %s", description), http.StatusBadRequest)
		return
	}
	qs := dest.Query()
	qs.Set("error", code)
	qs.Set("error_description", description)
	if state != "" {
		qs.Set("state", state)
	}
	dest.RawQuery = qs.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

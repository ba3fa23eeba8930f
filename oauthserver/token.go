// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// handleToken serves POST /token, supporting the authorization_code and
// refresh_token grants with client_secret_basic, client_secret_post,
// none, and private_key_jwt client authentication.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if allowed, retryAfter := s.cfg.TokenRateLimiter.Consume(clientKey(r)); !allowed {
		writeRateLimited(w, retryAfter)
		return
	}

	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	clientID, clientErr := s.authenticateClient(r)
	if clientErr != nil {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", clientErr.Error())
		return
	}

	switch r.Form.Get("grant_type") {
	case "authorization_code":
		s.handleAuthorizationCodeGrant(w, r, clientID)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r, clientID)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) handleAuthorizationCodeGrant(w http.ResponseWriter, r *http.Request, clientID string) {
	codeParam := r.Form.Get("code")
	if codeParam == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}
	code, ok := s.codes.take(codeParam)
	if !ok {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid, expired, or already used")
		return
	}
	if code.ClientID != clientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "authorization code was not issued to this client")
		return
	}
	if code.RedirectURI != r.Form.Get("redirect_uri") {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the authorization request")
		return
	}
	if !verifyPKCE(code.CodeChallenge, r.Form.Get("code_verifier")) {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match the challenge")
		return
	}
	if reqResource := r.Form.Get("resource"); reqResource != "" && reqResource != code.Resource {
		writeOAuthError(w, http.StatusBadRequest, "invalid_target", "resource does not match the authorization request")
		return
	}

	s.issueTokens(w, clientID, code.UserID, code.Scopes, code.Resource)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request, clientID string) {
	tokenParam := r.Form.Get("refresh_token")
	if tokenParam == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	rt, ok := s.refreshTokens.get(tokenParam)
	if !ok || rt.ClientID != clientID {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid, expired, or revoked")
		return
	}
	s.refreshTokens.delete(tokenParam) // rotate: refresh tokens are single-use

	scopes := rt.Scopes
	if requested := r.Form.Get("scope"); requested != "" {
		reqScopes := strings.Fields(requested)
		for _, sc := range reqScopes {
			if !slices.Contains(rt.Scopes, sc) {
				writeOAuthError(w, http.StatusBadRequest, "invalid_scope", "requested scope exceeds originally granted scope")
				return
			}
		}
		scopes = reqScopes
	}

	s.issueTokens(w, clientID, rt.UserID, scopes, rt.Resource)
}

func (s *Server) issueTokens(w http.ResponseWriter, clientID, userID string, scopes []string, resource string) {
	access, exp, err := s.issuer.issue(clientID, userID, scopes, resource)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "failed to issue access token")
		return
	}
	newRefresh := &refreshToken{
		Token:     uuid.NewString(),
		ClientID:  clientID,
		Scopes:    scopes,
		Resource:  resource,
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
	}
	s.refreshTokens.put(newRefresh)

	resp := &tokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
		RefreshToken: newRefresh.Token,
	}
	if len(scopes) > 0 {
		resp.Scope = strings.Join(scopes, " ")
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// verifyPKCE reports whether verifier hashes (S256) to challenge.
func verifyPKCE(challenge, verifier string) bool {
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return computed == challenge
}

// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeJSON(resp *http.Response, v any) error {
	return json.NewDecoder(resp.Body).Decode(v)
}

// newTestServer mirrors internal/testing/fake_auth_server.go's shape (an
// httptest-backed authorization server a client can drive end to end),
// generalized from that single-file fixture to this package's full
// register/authorize/token/refresh surface.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(nil)
	s := NewServer(Config{Issuer: srv.URL})
	srv.Config.Handler = s.Handler()
	t.Cleanup(srv.Close)
	return s, srv
}

func registerClient(t *testing.T, s *Server, redirectURI string) *ClientRecord {
	t.Helper()
	rec, _, err := s.cfg.ClientStore.Register(t.Context(), "none", []string{redirectURI}, "read write", "test-client")
	require.NoError(t, err)
	return rec
}

func TestAuthorizationCodeAndRefreshFlow(t *testing.T) {
	s, srv := newTestServer(t)
	const redirectURI = "https://client.example.com/callback"
	client := registerClient(t, s, redirectURI)

	verifier := "a-sufficiently-long-pkce-code-verifier-string"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	// /authorize: expect a redirect carrying a fresh authorization code.
	authorizeURL := srv.URL + "/authorize?" + url.Values{
		"client_id":             {client.ClientID},
		"redirect_uri":          {redirectURI},
		"response_type":         {"code"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"state":                 {"xyz"},
	}.Encode()

	httpClient := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := httpClient.Get(authorizeURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	// /token: exchange the code for an access + refresh token pair.
	tokenResp, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {client.ClientID},
		"code_verifier": {verifier},
	})
	require.NoError(t, err)
	defer tokenResp.Body.Close()
	require.Equal(t, http.StatusOK, tokenResp.StatusCode)

	var tok tokenResponse
	require.NoError(t, decodeJSON(tokenResp, &tok))
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "bearer", tok.TokenType)

	// The access token verifies offline against the issuer's key.
	info, err := s.Verifier()(t.Context(), tok.AccessToken, nil)
	require.NoError(t, err)
	require.Equal(t, client.ClientID, info.ClientID)

	// The authorization code is single-use: replaying it must fail.
	replay, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {client.ClientID},
		"code_verifier": {verifier},
	})
	require.NoError(t, err)
	defer replay.Body.Close()
	require.Equal(t, http.StatusBadRequest, replay.StatusCode)

	// The refresh token rotates: using it once succeeds and invalidates it.
	refreshResp, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {client.ClientID},
	})
	require.NoError(t, err)
	defer refreshResp.Body.Close()
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)

	var tok2 tokenResponse
	require.NoError(t, decodeJSON(refreshResp, &tok2))
	require.NotEqual(t, tok.RefreshToken, tok2.RefreshToken)

	reuseResp, err := http.PostForm(srv.URL+"/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {client.ClientID},
	})
	require.NoError(t, err)
	defer reuseResp.Body.Close()
	require.Equal(t, http.StatusBadRequest, reuseResp.StatusCode, "a rotated refresh token must not be reusable")
}

func TestAuthorizeRejectsUnregisteredRedirectURI(t *testing.T) {
	s, srv := newTestServer(t)
	client := registerClient(t, s, "https://client.example.com/callback")

	resp, err := http.Get(srv.URL + "/authorize?" + url.Values{
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://evil.example.com/callback"},
		"response_type": {"code"},
	}.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetadataEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// This file implements Authorization Server Metadata (RFC 8414) discovery
// and Dynamic Client Registration (RFC 7591) requests, and the Protected
// Resource Metadata (RFC 9728) document shape served by resource servers.

//go:build mcp_go_client_oauth

package oauthex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/corerpc/mcp/internal/util"
)

// metadataGroup coalesces concurrent GetAuthServerMeta calls for the same
// issuer into a single fetch, the way a client connecting many sessions to
// the same server at once would otherwise stampede its well-known endpoint.
var metadataGroup singleflight.Group

// ProtectedResourceMetadata is the RFC 9728 protected-resource metadata
// document served at /.well-known/oauth-protected-resource.
type ProtectedResourceMetadata struct {
	Resource                            string   `json:"resource"`
	AuthorizationServers                []string `json:"authorization_servers,omitempty"`
	JWKSURI                              string   `json:"jwks_uri,omitempty"`
	ScopesSupported                      []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported               []string `json:"bearer_methods_supported,omitempty"`
	ResourceSigningAlgValuesSupported    []string `json:"resource_signing_alg_values_supported,omitempty"`
	ResourceName                         string   `json:"resource_name,omitempty"`
	ResourceDocumentation                string   `json:"resource_documentation,omitempty"`
}

// AuthServerMeta is the RFC 8414 authorization-server metadata document
// served at /.well-known/oauth-authorization-server.
type AuthServerMeta struct {
	Issuer                              string   `json:"issuer"`
	AuthorizationEndpoint               string   `json:"authorization_endpoint"`
	TokenEndpoint                       string   `json:"token_endpoint"`
	RegistrationEndpoint                string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                  string   `json:"revocation_endpoint,omitempty"`
	JWKSURI                             string   `json:"jwks_uri,omitempty"`
	ScopesSupported                     []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported              []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported                 []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported   []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported       []string `json:"code_challenge_methods_supported,omitempty"`

	// ClientIDMetadataDocumentSupported is a non-standard extension flag,
	// used by [AuthorizationCodeOAuthHandler] to decide whether to attempt
	// Client ID Metadata Document based registration (SEP-991) before
	// falling back to dynamic or pre-registered clients.
	ClientIDMetadataDocumentSupported bool `json:"client_id_metadata_document_supported,omitempty"`
}

// ClientRegistrationMetadata is the RFC 7591 client metadata sent in a
// dynamic client registration request.
type ClientRegistrationMetadata struct {
	RedirectURIs            []string `json:"redirect_uris"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	ClientURI               string   `json:"client_uri,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
	JWKSURI                 string   `json:"jwks_uri,omitempty"`
	JWKS                    json.RawMessage `json:"jwks,omitempty"`
}

// ClientRegistrationResponse is the RFC 7591 response to a successful
// dynamic client registration.
type ClientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	ClientName              string   `json:"client_name,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// GetAuthServerMeta fetches and parses authorization server metadata from
// issuer's well-known endpoint (RFC 8414 ยง3). If the server does not
// publish metadata (404), it returns (nil, nil) so callers can fall back to
// the pre-2025-06-18 predefined-endpoint convention.
func GetAuthServerMeta(ctx context.Context, issuer string, c *http.Client) (_ *AuthServerMeta, err error) {
	defer util.Wrapf(&err, "GetAuthServerMeta(%q)", issuer)

	v, err, _ := metadataGroup.Do(issuer, func() (any, error) {
		u, err := url.Parse(issuer)
		if err != nil {
			return nil, err
		}
		u.Path = strings.TrimSuffix(u.Path, "/") + "/.well-known/oauth-authorization-server"

		meta, err := getJSON[AuthServerMeta](ctx, c, u.String(), 1<<20)
		if err != nil {
			if isNotFound(err) {
				return (*AuthServerMeta)(nil), nil
			}
			return nil, err
		}
		if meta.Issuer != issuer {
			return nil, fmt.Errorf("issuer mismatch: metadata issuer %q, want %q", meta.Issuer, issuer)
		}
		return meta, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*AuthServerMeta), nil
}

// RegisterClient performs RFC 7591 dynamic client registration against
// registrationEndpoint.
func RegisterClient(ctx context.Context, registrationEndpoint string, metadata *ClientRegistrationMetadata, c *http.Client) (_ *ClientRegistrationResponse, err error) {
	defer util.Wrapf(&err, "RegisterClient(%q)", registrationEndpoint)
	if c == nil {
		c = http.DefaultClient
	}

	body, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registration failed with status %d: %s", resp.StatusCode, data)
	}
	var out ClientRegistrationResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding registration response: %w", err)
	}
	return &out, nil
}

type notFoundError struct{ status int }

func (e *notFoundError) Error() string { return fmt.Sprintf("http status %d", e.status) }

func isNotFound(err error) bool {
	e, ok := err.(*notFoundError)
	return ok && e.status == http.StatusNotFound
}

// getJSON issues a GET request to url and decodes the JSON response body
// into a value of type T, limiting the response to maxBytes.
func getJSON[T any](ctx context.Context, c *http.Client, url string, maxBytes int64) (*T, error) {
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &notFoundError{status: resp.StatusCode}
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", url, err)
	}
	return &v, nil
}

// checkURLScheme rejects URLs that are not HTTP(S), preventing schemes
// like "javascript:" from being followed by naive clients (see
// modelcontextprotocol/go-sdk#526).
func checkURLScheme(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q has disallowed scheme %q", rawURL, u.Scheme)
	}
	return nil
}

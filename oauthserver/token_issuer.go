// Copyright 2026 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package oauthserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/corerpc/mcp/auth"
)

// jwtIssuer mints and verifies HS256 access tokens carrying an access
// token record's standard fields: clientId, scopes, expiresAt, resource.
// It is grounded in the teacher's internal/testing/fake_auth_server.go,
// which issues the same shape of token with jwt.SigningMethodHS256.
type jwtIssuer struct {
	issuer string
	key    []byte
	ttl    time.Duration
}

func newJWTIssuer(issuer string, key []byte, ttl time.Duration) *jwtIssuer {
	return &jwtIssuer{issuer: issuer, key: key, ttl: ttl}
}

func (j *jwtIssuer) issue(clientID, userID string, scopes []string, resource string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(j.ttl)
	claims := jwt.MapClaims{
		"iss":       j.issuer,
		"sub":       userID,
		"client_id": clientID,
		"scope":     strings.Join(scopes, " "),
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
	}
	if resource != "" {
		claims["aud"] = resource
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(j.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, exp, nil
}

// Verifier returns an [auth.TokenVerifier] that validates tokens minted by
// j offline, without a round trip back to the authorization server. It is
// suitable for resource servers that trust this authorization server's
// signing key directly (as opposed to introspection — not implemented
// here, since [auth.TokenVerifier] only requires a pluggable verifier
// interface, and offline JWT verification is the common case for an AS
// that also issues the tokens).
func (j *jwtIssuer) Verifier() auth.TokenVerifier {
	return func(ctx context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return j.key, nil
		}, jwt.WithIssuer(j.issuer))
		if err != nil || !parsed.Valid {
			return nil, auth.ErrInvalidToken
		}

		info := &auth.TokenInfo{}
		if sub, ok := claims["sub"].(string); ok {
			info.UserID = sub
		}
		if cid, ok := claims["client_id"].(string); ok {
			info.ClientID = cid
		}
		if aud, ok := claims["aud"].(string); ok {
			info.Resource = aud
		}
		if scope, ok := claims["scope"].(string); ok && scope != "" {
			info.Scopes = strings.Fields(scope)
		}
		if exp, ok := claims["exp"].(float64); ok {
			info.Expiration = time.Unix(int64(exp), 0)
		}
		return info, nil
	}
}

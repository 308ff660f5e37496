// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth extracts and validates the shared API key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// DefaultKeyHeader is the header carrying the API key unless configured otherwise.
const DefaultKeyHeader = "x-api-key"

// ExtractToken retrieves the API key from the request.
// 1. Header: <keyHeader> (default x-api-key)
// 2. Authorization: Bearer <token>
func ExtractToken(r *http.Request, keyHeader string) string {
	if keyHeader == "" {
		keyHeader = DefaultKeyHeader
	}
	if t := strings.TrimSpace(r.Header.Get(keyHeader)); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// AuthorizeToken returns true if got matches expected using constant-time comparison.
// Empty tokens are always treated as unauthorized.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// AuthorizeRequest extracts a token from r and validates it against expectedToken.
func AuthorizeRequest(r *http.Request, keyHeader, expectedToken string) bool {
	if r == nil {
		return false
	}
	return AuthorizeToken(ExtractToken(r, keyHeader), expectedToken)
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Principal is the authenticated caller. The raw key is never kept.
type Principal struct {
	// ID is derived from the key so logs can correlate callers without exposing it.
	ID string
	// Anonymous is set when the API runs without a key.
	Anonymous bool
}

// NewPrincipal derives a stable principal from token.
func NewPrincipal(token string) *Principal {
	if token == "" {
		return &Principal{ID: "anonymous", Anonymous: true}
	}
	hash := sha256.Sum256([]byte(token))
	return &Principal{ID: "k_" + hex.EncodeToString(hash[:])[:12]}
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by the auth middleware, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

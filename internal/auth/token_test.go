// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractToken_PriorityOrder(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/session/all", nil)
	r.Header.Set("Authorization", "Bearer bearer-token ")
	r.Header.Set("x-api-key", "header-token")
	assert.Equal(t, "header-token", ExtractToken(r, ""))

	r.Header.Del("x-api-key")
	assert.Equal(t, "bearer-token", ExtractToken(r, ""))
}

func TestExtractToken_CustomHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/", nil)
	r.Header.Set("X-Tenant-Key", "k1")
	assert.Equal(t, "k1", ExtractToken(r, "X-Tenant-Key"))
	assert.Empty(t, ExtractToken(r, ""))
}

func TestAuthorizeToken(t *testing.T) {
	assert.True(t, AuthorizeToken("secret", "secret"))
	assert.False(t, AuthorizeToken("secret", "other"))
	assert.False(t, AuthorizeToken("", "secret"))
	assert.False(t, AuthorizeToken("secret", ""))
	assert.False(t, AuthorizeToken("secret", "   "))
}

func TestAuthorizeRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.local/", nil)
	r.Header.Set("x-api-key", "secret")
	assert.True(t, AuthorizeRequest(r, "", "secret"))
	assert.False(t, AuthorizeRequest(r, "", "nope"))
	assert.False(t, AuthorizeRequest(nil, "", "secret"))
}

func TestPrincipal(t *testing.T) {
	p := NewPrincipal("secret")
	assert.Equal(t, p.ID, NewPrincipal("secret").ID, "derived id is stable")
	assert.NotContains(t, p.ID, "secret")
	assert.True(t, NewPrincipal("").Anonymous)

	ctx := WithPrincipal(context.Background(), p)
	assert.Same(t, p, PrincipalFromContext(ctx))
	assert.Nil(t, PrincipalFromContext(context.Background()))
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/sessiond/internal/auth"
	"github.com/ManuGH/sessiond/internal/log"
)

// KeyConfig is the live API key policy.
type KeyConfig struct {
	Key            string
	Header         string
	AllowAnonymous bool
}

// APIKey rejects requests without the shared key. The policy is read on every
// request so key rotation applies without a restart. With no key configured
// every request is refused unless anonymous access is allowed.
func APIKey(policy func() KeyConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := policy()
			token := auth.ExtractToken(r, p.Header)

			var principal *auth.Principal
			switch {
			case auth.AuthorizeToken(token, p.Key):
				principal = auth.NewPrincipal(token)
			case p.AllowAnonymous && p.Key == "":
				principal = auth.NewPrincipal("")
			default:
				reason := "invalid_key"
				if token == "" {
					reason = "missing_key"
				}
				logger := log.WithComponentFromContext(r.Context(), "auth")
				logger.Warn().
					Str("event", "auth.denied").
					Str("reason", reason).
					Str("remote_addr", r.RemoteAddr).
					Msg("api key rejected")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "Forbidden: missing or invalid API key",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

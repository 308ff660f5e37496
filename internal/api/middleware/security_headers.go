// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strings"
)

// apiCSP forbids everything: the API only serves JSON and PNG.
const apiCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders adds common security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}
		h.Set("Content-Security-Policy", apiCSP)
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		// QR codes are credentials; never let intermediaries keep them.
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

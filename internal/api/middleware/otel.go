// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/sessiond/internal/telemetry"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation.
// It creates a server span per request and propagates W3C trace context.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			routeAttributes(next),
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// routeAttributes tags the span with the matched route once chi has resolved it.
func routeAttributes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := &metricsWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(mw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		trace.SpanFromContext(r.Context()).SetAttributes(telemetry.HTTPAttributes(r.Method, route, mw.statusCode)...)
	})
}

// shouldTrace skips probe endpoints to reduce noise.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/ping", "/ready", "/metrics":
		return false
	}
	return true
}

// spanNameFormatter names spans "HTTP GET" style; the route is an attribute,
// raw paths would put session ids into span names.
func spanNameFormatter(operation string, r *http.Request) string {
	return operation + " " + r.Method
}

// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	SessionIDKey         = "session.id"
	SessionStateKey      = "session.state"
	SessionGenerationKey = "session.generation"
	SessionOperationKey  = "session.operation"

	EngineHandleKey  = "engine.handle"
	EngineAttemptKey = "engine.attempt"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes describes the session an operation acts on.
// Empty state and zero generation are omitted.
func SessionAttributes(sessionID, operation, state string, generation uint64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs,
		attribute.String(SessionIDKey, sessionID),
		attribute.String(SessionOperationKey, operation),
	)
	if state != "" {
		attrs = append(attrs, attribute.String(SessionStateKey, state))
	}
	if generation > 0 {
		attrs = append(attrs, attribute.Int64(SessionGenerationKey, int64(generation)))
	}
	return attrs
}

// EngineAttributes describes an engine launch attempt.
func EngineAttributes(handleID string, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int(EngineAttemptKey, attempt)}
	if handleID != "" {
		attrs = append(attrs, attribute.String(EngineHandleKey, handleID))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the identity core must be defined
// here. This prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains the *session.Identity bound to this request.
	// Set by: the consuming application's session middleware
	// Required by: any code acting on behalf of the current user
	PrincipalKey Key = "principal"

	// RequestIDKey contains request ID string (UUID)
	// Used by: Logger
	// Type: string
	RequestIDKey Key = "request_id"
)

// WithPrincipal attaches the request's session identity to the context.
func WithPrincipal(ctx context.Context, principal interface{}) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// Principal retrieves the session identity from the context, or nil.
func Principal(ctx context.Context) interface{} {
	return ctx.Value(PrincipalKey)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

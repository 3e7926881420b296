// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/gatherly/identity/pkg/contextkeys"
//   ctx = contextkeys.WithClaims(ctx, claims)
//   claims := contextkeys.GetClaims(ctx).(*token.AccessClaims)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ClaimsKey contains *token.AccessClaims
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: All protected account endpoints
	// Type: *token.AccessClaims
	ClaimsKey Key = "access_claims"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: Logger
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: middleware.AuthMiddleware after token validation
	// Used by: Logger, user-scoped operations
	// Type: string
	UserIDKey Key = "user_id"
)

// Helper functions for type-safe context operations

// WithClaims adds validated access-token claims to the context
func WithClaims(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaims retrieves access-token claims from context, or nil
func GetClaims(ctx context.Context) interface{} {
	return ctx.Value(ClaimsKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// Package middleware provides HTTP middleware for the identity service:
// bearer-token authentication and per-client rate limiting.
package middleware

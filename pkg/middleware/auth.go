package middleware

import (
	"net/http"

	"github.com/gatherly/identity/pkg/contextkeys"
	"github.com/gatherly/identity/pkg/httputil"
	"github.com/gatherly/identity/pkg/token"
)

// AuthMiddleware validates bearer access tokens and attaches the verified
// claims to the request context.
type AuthMiddleware struct {
	issuer *token.Issuer
	// optional lets unauthenticated requests through without claims so the
	// handler can decide what an anonymous caller gets
	optional bool
	// allowExpired accepts tokens past their expiry but otherwise valid.
	// The session endpoints use this so a client whose access token just
	// lapsed can still prove which account it is refreshing.
	allowExpired bool
}

// NewAuthMiddleware creates authentication middleware. With optional set,
// requests without a token pass through anonymously; with allowExpired set,
// expiry is not enforced on otherwise valid tokens.
func NewAuthMiddleware(issuer *token.Issuer, optional, allowExpired bool) *AuthMiddleware {
	return &AuthMiddleware{
		issuer:       issuer,
		optional:     optional,
		allowExpired: allowExpired,
	}
}

// Handler wraps an HTTP handler with bearer-token authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := httputil.BearerToken(r)
		if raw == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		claims, err := m.issuer.Validate(raw, m.allowExpired)
		if err != nil {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithClaims(r.Context(), claims)
		ctx = contextkeys.WithUserID(ctx, claims.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromRequest extracts verified claims from the request context, or
// nil when the request is anonymous.
func ClaimsFromRequest(r *http.Request) *token.AccessClaims {
	claims, _ := contextkeys.GetClaims(r.Context()).(*token.AccessClaims)
	return claims
}

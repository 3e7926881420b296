package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidAccessToken is returned when a token fails signature or structural
// validation.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessClaims are the identity claims carried by an access token
type AccessClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the stable user identifier (the subject claim)
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// Issuer mints and validates signed access tokens. Tokens are stateless: they
// are never persisted and carry everything needed to identify the caller.
//
// Issuer and audience claims are not validated; the service is single-tenant.
// A multi-tenant deployment must add issuer/audience checks before relaxing
// anything else here.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer creates an access-token issuer with the symmetric signing key and
// token lifetime.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl}
}

// Issue mints a signed token for the user. The lifetime is short by design so
// a stolen access token has a small blast radius.
func (i *Issuer) Issue(userID, userName, email string, now time.Time) (string, error) {
	claims := &AccessClaims{
		Name:  userName,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Validate checks the token's signature and structure and returns its claims.
// With ignoreExpiry the lifetime check is skipped while the signature is still
// enforced; this supports identifying the caller from a stale token during
// silent refresh without accepting forged tokens.
func (i *Issuer) Validate(tokenString string, ignoreExpiry bool) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
	}
	if ignoreExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidAccessToken)
	}
	return claims, nil
}

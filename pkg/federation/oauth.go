package federation

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Exchanger runs an authorization-code flow against an identity provider and
// returns the verified claims from the exchanged ID token.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Claims, error)
}

var _ Exchanger = (*GoogleWebFlow)(nil)

// GoogleWebFlow implements the server-side authorization-code flow for
// Google sign-in, for clients that cannot use the SDK-posted ID token path.
// The browser is redirected to Google's consent screen and comes back to the
// callback endpoint with a one-time code that is exchanged for an ID token
// here, keeping the client secret off the client.
type GoogleWebFlow struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewGoogleWebFlow discovers Google's endpoints and builds the code-exchange
// flow for the registered OAuth client.
func NewGoogleWebFlow(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleWebFlow, error) {
	provider, err := oidc.NewProvider(ctx, GoogleIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering google oidc provider: %w", err)
	}

	return &GoogleWebFlow{
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthCodeURL returns the consent-screen URL carrying the anti-forgery state
func (f *GoogleWebFlow) AuthCodeURL(state string) string {
	return f.oauth2Config.AuthCodeURL(state)
}

// Exchange trades the authorization code for tokens and verifies the ID
// token among them. Failures collapse into ErrInvalidAssertion like the
// direct verification path.
func (f *GoogleWebFlow) Exchange(ctx context.Context, code string) (*Claims, error) {
	oauth2Token, err := f.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, ErrInvalidAssertion
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, ErrInvalidAssertion
	}

	idToken, err := f.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, ErrInvalidAssertion
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, ErrInvalidAssertion
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, ErrInvalidAssertion
	}
	return &claims, nil
}

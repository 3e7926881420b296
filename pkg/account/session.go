package account

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gatherly/identity/pkg/httputil"
	"github.com/gatherly/identity/pkg/identity"
	"github.com/gatherly/identity/pkg/middleware"
	"github.com/gatherly/identity/pkg/observability"
	"github.com/gatherly/identity/pkg/token"
)

type refreshOutcome int

const (
	refreshOK refreshOutcome = iota
	// refreshNoSession: no decodable cookie, the client simply has no session
	refreshNoSession
	// refreshUnauthorized: cookie present but no active match, or no resolvable caller
	refreshUnauthorized
	// refreshExpired: the specific token matched but its expiry has passed
	refreshExpired
	// refreshConflict: a concurrent refresh rotated the record first
	refreshConflict
	refreshError
)

// startSession mints a refresh token for the user, issues an access token,
// sets the cookie and writes the identity payload. Used by every
// credential-verified entry point; silent refresh rotates instead.
func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, user *identity.User) bool {
	ctx := r.Context()
	now := h.now()

	secret, rec, err := token.Mint(user.ID, h.refreshTTL, now)
	if err != nil {
		h.logger.FromContext(ctx).WithError(err).Error("minting refresh token failed")
		httputil.WriteInternalError(w, errors.New("sign-in failed"))
		return false
	}
	if err := h.store.InsertRefreshToken(ctx, rec); err != nil {
		h.logger.FromContext(ctx).WithError(err).Error("persisting refresh token failed")
		h.metrics.StoreErrorsTotal.WithLabelValues("insert_refresh_token").Inc()
		httputil.WriteInternalError(w, errors.New("sign-in failed"))
		return false
	}

	access, err := h.issuer.Issue(user.ID, user.UserName, user.Email, now)
	if err != nil {
		h.logger.FromContext(ctx).WithError(err).Error("issuing access token failed")
		httputil.WriteInternalError(w, errors.New("sign-in failed"))
		return false
	}

	h.cookies.SetRefreshCookie(w, secret, rec.ExpiresAt)
	httputil.WriteSuccess(w, h.payload(user, access))
	return true
}

func (h *Handlers) payload(user *identity.User, access string) UserPayload {
	return UserPayload{
		DisplayName: user.DisplayName,
		UserName:    user.UserName,
		Image:       user.ImageURL,
		Token:       access,
	}
}

// resolveUser identifies the caller from the validated claims attached by
// the session middleware. The claims may come from an expired access token;
// the signature was still enforced, which is enough to name the account
// whose refresh token is being exchanged.
func (h *Handlers) resolveUser(r *http.Request) *identity.User {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		return nil
	}
	user, err := h.store.UserByEmail(r.Context(), claims.Email)
	if err != nil {
		return nil
	}
	return user
}

// rotateSession runs the refresh state machine: decode the cookie, resolve
// the caller, match the secret against the stored digests, purge expired
// rows, then rotate the matched record under its version check. On success
// it writes the 200 payload and the new cookie; otherwise it reports why so
// the endpoint can choose its response shape.
func (h *Handlers) rotateSession(w http.ResponseWriter, r *http.Request) refreshOutcome {
	ctx := r.Context()
	now := h.now()

	secret, ok := httputil.RefreshSecret(r)
	if !ok {
		return refreshNoSession
	}

	user := h.resolveUser(r)
	if user == nil {
		return refreshUnauthorized
	}

	tokens, err := h.store.RefreshTokensByUser(ctx, user.ID)
	if err != nil {
		h.logger.FromContext(ctx).WithError(err).Error("loading refresh tokens failed")
		h.metrics.StoreErrorsTotal.WithLabelValues("load_refresh_tokens").Inc()
		return refreshError
	}

	// Match before purging so an expired-but-matching token is still
	// distinguishable from a plain mismatch after its row is gone.
	match := token.FindBySecret(tokens, secret)
	h.purge(ctx, user.ID, now)

	if match == nil {
		return refreshUnauthorized
	}
	if match.Expired(now) {
		// Session expired at use: clear the cookie so the browser stops
		// presenting a dead secret, and let the endpoint signal re-login.
		h.cookies.ClearRefreshCookie(w)
		return refreshExpired
	}

	newSecret, err := token.Rotate(match, h.refreshTTL, now)
	if err != nil {
		h.logger.FromContext(ctx).WithError(err).Error("rotating refresh token failed")
		return refreshError
	}
	if err := h.store.RotateRefreshToken(ctx, match); err != nil {
		if errors.Is(err, token.ErrRotationConflict) {
			// A concurrent refresh with the same cookie won the version
			// check; this caller's secret is dead and it must re-login.
			return refreshConflict
		}
		h.logger.FromContext(ctx).WithError(err).Error("persisting rotation failed")
		h.metrics.StoreErrorsTotal.WithLabelValues("rotate_refresh_token").Inc()
		return refreshError
	}

	access, err := h.issuer.Issue(user.ID, user.UserName, user.Email, now)
	if err != nil {
		h.logger.FromContext(ctx).WithError(err).Error("issuing access token failed")
		return refreshError
	}

	h.cookies.SetRefreshCookie(w, newSecret, match.ExpiresAt)
	httputil.WriteSuccess(w, h.payload(user, access))
	return refreshOK
}

// refreshSession is the probe-flavored wrapper: success writes the payload,
// every failure is swallowed so the caller can fall back to 204.
func (h *Handlers) refreshSession(w http.ResponseWriter, r *http.Request) *struct{} {
	if h.rotateSession(w, r) == refreshOK {
		h.metrics.TokenRefreshesTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
		return &struct{}{}
	}
	return nil
}

// exchangeSession is the endpoint-flavored wrapper: failures become explicit
// HTTP errors, with the expired case marked so the client can show a
// targeted "session expired" notice instead of a generic auth error.
func (h *Handlers) exchangeSession(w http.ResponseWriter, r *http.Request) {
	switch h.rotateSession(w, r) {
	case refreshOK:
		h.metrics.TokenRefreshesTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
	case refreshNoSession:
		h.metrics.TokenRefreshesTotal.WithLabelValues(observability.OutcomeUnauthorized).Inc()
		httputil.WriteUnauthorized(w, "no session")
	case refreshExpired:
		h.metrics.TokenRefreshesTotal.WithLabelValues(observability.OutcomeExpired).Inc()
		w.Header().Set("WWW-Authenticate", "The token expired")
		httputil.WriteUnauthorized(w, "the token expired")
	case refreshUnauthorized:
		h.metrics.TokenRefreshesTotal.WithLabelValues(observability.OutcomeUnauthorized).Inc()
		httputil.WriteUnauthorized(w, "invalid refresh token")
	case refreshConflict:
		h.metrics.TokenRefreshesTotal.WithLabelValues(observability.OutcomeConflict).Inc()
		httputil.WriteUnauthorized(w, "invalid refresh token")
	case refreshError:
		h.metrics.TokenRefreshesTotal.WithLabelValues(observability.OutcomeError).Inc()
		httputil.WriteInternalError(w, errors.New("refresh failed"))
	}
}

// purge removes the user's expired refresh-token rows. Storage hygiene is
// piggybacked on session traffic rather than run on a schedule, so a purge
// failure is logged and absorbed, never surfaced to the client.
func (h *Handlers) purge(ctx context.Context, userID string, now time.Time) {
	purged, err := h.store.PurgeExpiredRefreshTokens(ctx, userID, now)
	if err != nil {
		h.logger.FromContext(ctx).WithError(err).Warn("purging refresh tokens failed")
		h.metrics.StoreErrorsTotal.WithLabelValues("purge_refresh_tokens").Inc()
		return
	}
	if purged > 0 {
		h.metrics.TokensPurgedTotal.Add(float64(purged))
	}
}

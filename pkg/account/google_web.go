package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gatherly/identity/pkg/httputil"
	"github.com/gatherly/identity/pkg/observability"
)

// stateCookieName carries the anti-forgery state across the Google redirect
const stateCookieName = "oauthState"

// GoogleLogin handles GET /api/account/google/login: stamps an anti-forgery
// state cookie and redirects the browser to Google's consent screen.
func (h *Handlers) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	cookie := &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/account/google",
		Expires:  h.now().Add(10 * time.Minute),
		HttpOnly: true,
	}
	if !h.cookies.Development {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, cookie)

	http.Redirect(w, r, h.exchanger.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback handles GET /api/account/google/callback: checks the state
// round-trip, exchanges the one-time code for verified claims and starts a
// session like every other entry point.
func (h *Handlers) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		h.metrics.FederatedLoginsTotal.WithLabelValues(observability.OutcomeUnauthorized).Inc()
		httputil.WriteUnauthorized(w, "state mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/account/google",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		h.metrics.FederatedLoginsTotal.WithLabelValues(observability.OutcomeUnauthorized).Inc()
		httputil.WriteUnauthorized(w, "missing authorization code")
		return
	}

	claims, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.metrics.FederatedLoginsTotal.WithLabelValues(observability.OutcomeUnauthorized).Inc()
		httputil.WriteUnauthorized(w, "invalid identity assertion")
		return
	}

	user, err := h.provisioner.Provision(r.Context(), claims)
	if err != nil {
		h.logger.FromContext(r.Context()).WithError(err).Error("federated sign-in failed")
		h.metrics.FederatedLoginsTotal.WithLabelValues(observability.OutcomeError).Inc()
		httputil.WriteInternalError(w, errors.New("sign-in failed"))
		return
	}

	if !h.startSession(w, r, user) {
		h.metrics.FederatedLoginsTotal.WithLabelValues(observability.OutcomeError).Inc()
		return
	}
	h.metrics.FederatedLoginsTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
}

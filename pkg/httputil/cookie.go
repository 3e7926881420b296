package httputil

import (
	"encoding/base64"
	"net/http"
	"time"
)

// RefreshCookieName is the cookie carrying the refresh-token secret
const RefreshCookieName = "refreshToken"

// CookiePolicy controls the security attributes of the refresh cookie.
// Development deployments run the SPA and API on different ports without TLS,
// so Secure and SameSite=Strict are only applied outside development.
type CookiePolicy struct {
	Development bool
}

// SetRefreshCookie writes the refresh-token secret as an HttpOnly cookie.
// The value is the base64 encoding of the raw secret bytes; the cookie expires
// together with the token so the browser stops sending a dead secret.
func (p CookiePolicy) SetRefreshCookie(w http.ResponseWriter, secret []byte, expires time.Time) {
	cookie := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    base64.StdEncoding.EncodeToString(secret),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
	}
	if !p.Development {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, cookie)
}

// ClearRefreshCookie instructs the browser to drop the refresh cookie
func (p CookiePolicy) ClearRefreshCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	}
	if !p.Development {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, cookie)
}

// RefreshSecret reads and decodes the refresh cookie into raw secret bytes.
// A missing or undecodable cookie returns ok=false: the client has no session
// (for example cookies are blocked), which is distinct from an invalid session.
func RefreshSecret(r *http.Request) (secret []byte, ok bool) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	secret, err = base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, false
	}
	return secret, true
}

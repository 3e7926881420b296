package account

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/identity/pkg/federation"
	"github.com/gatherly/identity/pkg/httputil"
	"github.com/gatherly/identity/pkg/identity"
	"github.com/gatherly/identity/pkg/observability"
	"github.com/gatherly/identity/pkg/token"
)

type fakeAssertions struct {
	claims *federation.Claims
	err    error
}

func (f *fakeAssertions) Verify(ctx context.Context, rawIDToken string) (*federation.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

type testEnv struct {
	handlers *Handlers
	router   *mux.Router
	store    *identity.SQLStore
	issuer   *token.Issuer
}

func newTestEnv(t *testing.T, assertions federation.AssertionVerifier) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := identity.NewSQLStore(db, identity.SQLiteDialect())
	require.NoError(t, store.EnsureSchema(context.Background()))

	issuer := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), 10*time.Minute)
	handlers := NewHandlers(Options{
		Store:      store,
		Issuer:     issuer,
		Assertions: assertions,
		Cookies:    httputil.CookiePolicy{Development: true},
		RefreshTTL: 7 * 24 * time.Hour,
		Logger:     observability.NewLogger(observability.ErrorLevel, io.Discard),
		Metrics:    observability.InitMetrics(),
	})

	router := mux.NewRouter()
	handlers.RegisterRoutes(router, nil)

	return &testEnv{handlers: handlers, router: router, store: store, issuer: issuer}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, mutate ...func(*http.Request)) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec.Result()
}

func withCookie(cookie *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(cookie) }
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func refreshCookie(t *testing.T, res *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == httputil.RefreshCookieName {
			return c
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}

func decodePayload(t *testing.T, res *http.Response) UserPayload {
	t.Helper()
	var payload UserPayload
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	return payload
}

func register(t *testing.T, env *testEnv) (UserPayload, *http.Cookie) {
	t.Helper()
	res := env.do(t, http.MethodPost, "/api/account/register", map[string]string{
		"displayName": "Bob",
		"userName":    "bob",
		"email":       "bob@test.com",
		"password":    "Pa$$w0rd42",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	return decodePayload(t, res), refreshCookie(t, res)
}

func TestRegisterStartsSession(t *testing.T) {
	env := newTestEnv(t, nil)

	payload, cookie := register(t, env)
	assert.Equal(t, "Bob", payload.DisplayName)
	assert.Equal(t, "bob", payload.UserName)
	assert.NotEmpty(t, payload.Token)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	claims, err := env.issuer.Validate(payload.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "bob@test.com", claims.Email)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.do(t, http.MethodPost, "/api/account/register", map[string]string{
		"displayName": "",
		"userName":    "",
		"email":       "not-an-address",
		"password":    "short",
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	var problem httputil.ValidationProblem
	require.NoError(t, json.NewDecoder(res.Body).Decode(&problem))
	assert.Contains(t, problem.Errors, "displayName")
	assert.Contains(t, problem.Errors, "userName")
	assert.Contains(t, problem.Errors, "email")
	assert.Contains(t, problem.Errors, "password")
}

func TestRegisterNormalizedConflicts(t *testing.T) {
	env := newTestEnv(t, nil)
	register(t, env)

	// A user name differing only in case is the same name.
	res := env.do(t, http.MethodPost, "/api/account/register", map[string]string{
		"displayName": "Other Bob",
		"userName":    "BOB",
		"email":       "other@test.com",
		"password":    "Pa$$w0rd42",
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var problem httputil.ValidationProblem
	require.NoError(t, json.NewDecoder(res.Body).Decode(&problem))
	assert.Contains(t, problem.Errors, "userName")

	res = env.do(t, http.MethodPost, "/api/account/register", map[string]string{
		"displayName": "Other Bob",
		"userName":    "otherbob",
		"email":       "BOB@test.com",
		"password":    "Pa$$w0rd42",
	})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	problem = httputil.ValidationProblem{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&problem))
	assert.Contains(t, problem.Errors, "email")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	register(t, env)

	res := env.do(t, http.MethodPost, "/api/account/login", map[string]string{
		"email":    "Bob@Test.com",
		"password": "Pa$$w0rd42",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	payload := decodePayload(t, res)
	assert.NotEmpty(t, payload.Token)
	assert.NotEmpty(t, refreshCookie(t, res).Value)

	res = env.do(t, http.MethodPost, "/api/account/login", map[string]string{
		"email":    "bob@test.com",
		"password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, res.Cookies())

	// Unknown account fails identically to a bad password.
	res = env.do(t, http.MethodPost, "/api/account/login", map[string]string{
		"email":    "ghost@test.com",
		"password": "Pa$$w0rd42",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, res.Cookies())
}

func TestGoogleSignIn(t *testing.T) {
	env := newTestEnv(t, &fakeAssertions{claims: &federation.Claims{
		Subject:       "google-1",
		Email:         "mina@test.com",
		EmailVerified: true,
		Name:          "Mina Park",
		Picture:       "https://img.test/mina.jpg",
	}})

	res := env.do(t, http.MethodPost, "/api/account/googleSignIn", map[string]string{
		"accessToken": "raw-google-id-token",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	payload := decodePayload(t, res)
	assert.Equal(t, "Mina Park", payload.DisplayName)
	assert.Equal(t, "https://img.test/mina.jpg", payload.Image)
	assert.NotEqual(t, "mina@test.com", payload.UserName)
	assert.NotEmpty(t, refreshCookie(t, res).Value)

	// A second sign-in maps back to the same provisioned account.
	res = env.do(t, http.MethodPost, "/api/account/googleSignIn", map[string]string{
		"accessToken": "raw-google-id-token",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	again := decodePayload(t, res)
	assert.Equal(t, payload.UserName, again.UserName)
}

func TestGoogleSignInRejectsBadAssertions(t *testing.T) {
	env := newTestEnv(t, &fakeAssertions{err: federation.ErrInvalidAssertion})

	res := env.do(t, http.MethodPost, "/api/account/googleSignIn", map[string]string{
		"accessToken": "garbage",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, res.Cookies())
}

func TestCurrentUserProbe(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, cookie := register(t, env)

	// No cookie at all: an anonymous visitor, not an error.
	res := env.do(t, http.MethodGet, "/api/account", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = env.do(t, http.MethodGet, "/api/account", nil,
		withCookie(cookie), withBearer(payload.Token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	refreshed := decodePayload(t, res)
	assert.Equal(t, "bob", refreshed.UserName)
	assert.NotEmpty(t, refreshed.Token)
	assert.NotEqual(t, cookie.Value, refreshCookie(t, res).Value)
}

func TestSilentRefreshWithExpiredAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	_, cookie := register(t, env)

	expired, err := env.issuer.Issue("ignored", "bob", "bob@test.com", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	res := env.do(t, http.MethodGet, "/api/account", nil,
		withCookie(cookie), withBearer(expired))
	require.Equal(t, http.StatusOK, res.StatusCode)
	payload := decodePayload(t, res)
	assert.Equal(t, "bob", payload.UserName)

	fresh, err := env.issuer.Validate(payload.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "bob@test.com", fresh.Email)
}

func TestRefreshTokenRotates(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, cookie := register(t, env)

	res := env.do(t, http.MethodPost, "/api/account/refreshToken", nil,
		withCookie(cookie), withBearer(payload.Token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	rotated := refreshCookie(t, res)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	// The original secret is dead after rotation; replaying it is a hard
	// failure, never a second success.
	res = env.do(t, http.MethodPost, "/api/account/refreshToken", nil,
		withCookie(cookie), withBearer(payload.Token))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// The rotated secret keeps working.
	res = env.do(t, http.MethodPost, "/api/account/refreshToken", nil,
		withCookie(rotated), withBearer(payload.Token))
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRefreshTokenWithoutCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, _ := register(t, env)

	res := env.do(t, http.MethodPost, "/api/account/refreshToken", nil,
		withBearer(payload.Token))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRefreshTokenExpiredSession(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, cookie := register(t, env)

	// Jump past the refresh window.
	env.handlers.now = func() time.Time { return time.Now().UTC().Add(8 * 24 * time.Hour) }

	res := env.do(t, http.MethodPost, "/api/account/refreshToken", nil,
		withCookie(cookie), withBearer(payload.Token))
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "The token expired", res.Header.Get("WWW-Authenticate"))

	cleared := refreshCookie(t, res)
	assert.Empty(t, cleared.Value)

	// The expired row was purged during the attempt.
	claims, err := env.issuer.Validate(payload.Token, false)
	require.NoError(t, err)
	tokens, err := env.store.RefreshTokensByUser(context.Background(), claims.UserID())
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, cookie := register(t, env)

	// With no cookie at all.
	res := env.do(t, http.MethodPost, "/api/account/logout", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	// With a live cookie: revokes the session and clears the cookie.
	res = env.do(t, http.MethodPost, "/api/account/logout", nil,
		withCookie(cookie), withBearer(payload.Token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, refreshCookie(t, res).Value)

	// The revoked secret no longer refreshes.
	res = env.do(t, http.MethodPost, "/api/account/refreshToken", nil,
		withCookie(cookie), withBearer(payload.Token))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Logging out again with the stale cookie still succeeds.
	res = env.do(t, http.MethodPost, "/api/account/logout", nil,
		withCookie(cookie), withBearer(payload.Token))
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, _ := register(t, env)

	res := env.do(t, http.MethodPut, "/api/account/profile", map[string]string{
		"displayName": "Robert",
		"bio":         "likes hiking",
	}, withBearer(payload.Token))
	require.Equal(t, http.StatusOK, res.StatusCode)

	claims, err := env.issuer.Validate(payload.Token, false)
	require.NoError(t, err)
	user, err := env.store.UserByID(context.Background(), claims.UserID())
	require.NoError(t, err)
	assert.Equal(t, "Robert", user.DisplayName)
	assert.Equal(t, "likes hiking", user.Bio)

	// Unauthenticated and invalid updates are rejected.
	res = env.do(t, http.MethodPut, "/api/account/profile", map[string]string{
		"displayName": "Nope",
	})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = env.do(t, http.MethodPut, "/api/account/profile", map[string]string{
		"displayName": "",
	}, withBearer(payload.Token))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestConcurrentRefreshLoses(t *testing.T) {
	env := newTestEnv(t, nil)
	payload, cookie := register(t, env)
	ctx := context.Background()

	claims, err := env.issuer.Validate(payload.Token, false)
	require.NoError(t, err)

	// Another request rotated the record out from under this cookie; the
	// losing side must deterministically fail, never mint a second secret.
	tokens, err := env.store.RefreshTokensByUser(ctx, claims.UserID())
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	_, err = token.Rotate(tokens[0], time.Hour, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, env.store.RotateRefreshToken(ctx, tokens[0]))

	res := env.do(t, http.MethodPost, "/api/account/refreshToken", nil,
		withCookie(cookie), withBearer(payload.Token))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

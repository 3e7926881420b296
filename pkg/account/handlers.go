package account

import (
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gatherly/identity/pkg/federation"
	"github.com/gatherly/identity/pkg/httputil"
	"github.com/gatherly/identity/pkg/identity"
	"github.com/gatherly/identity/pkg/middleware"
	"github.com/gatherly/identity/pkg/observability"
	"github.com/gatherly/identity/pkg/token"
)

// UserPayload is the identity envelope returned by every session-establishing
// endpoint. The access token travels in the body; the refresh secret only ever
// travels in the cookie.
type UserPayload struct {
	DisplayName string `json:"displayName"`
	UserName    string `json:"userName"`
	Image       string `json:"image,omitempty"`
	Token       string `json:"token"`
}

// Handlers implements the /api/account endpoints
type Handlers struct {
	store       identity.Store
	verifier    *identity.Verifier
	issuer      *token.Issuer
	assertions  federation.AssertionVerifier
	exchanger   federation.Exchanger
	provisioner *federation.Provisioner
	cookies     httputil.CookiePolicy
	refreshTTL  time.Duration
	logger      *observability.Logger
	metrics     *observability.Metrics

	// now is replaceable in tests
	now func() time.Time
}

// Options carries the dependencies for the account handlers. Assertions and
// Exchanger may be nil when federated sign-in is not configured; their routes
// are then not mounted.
type Options struct {
	Store      identity.Store
	Issuer     *token.Issuer
	Assertions federation.AssertionVerifier
	Exchanger  federation.Exchanger
	Cookies    httputil.CookiePolicy
	RefreshTTL time.Duration
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// NewHandlers creates the account handler set
func NewHandlers(opts Options) *Handlers {
	return &Handlers{
		store:       opts.Store,
		verifier:    identity.NewVerifier(opts.Store),
		issuer:      opts.Issuer,
		assertions:  opts.Assertions,
		exchanger:   opts.Exchanger,
		provisioner: federation.NewProvisioner(opts.Store),
		cookies:     opts.Cookies,
		refreshTTL:  opts.RefreshTTL,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the account endpoints under /api/account. The
// credential endpoints sit behind the rate limiter when one is given; the
// session endpoints run behind expired-tolerant authentication so a client
// whose access token just lapsed can still identify itself.
func (h *Handlers) RegisterRoutes(r *mux.Router, limiter *middleware.RateLimiter) {
	guard := func(handler http.Handler) http.Handler {
		if limiter == nil {
			return handler
		}
		return limiter.Handler(handler)
	}

	session := middleware.NewAuthMiddleware(h.issuer, true, true)
	strict := middleware.NewAuthMiddleware(h.issuer, false, false)

	account := r.PathPrefix("/api/account").Subrouter()
	account.Handle("/login", guard(http.HandlerFunc(h.Login))).Methods(http.MethodPost)
	account.Handle("/register", guard(http.HandlerFunc(h.Register))).Methods(http.MethodPost)
	account.Handle("/googleSignIn", guard(http.HandlerFunc(h.GoogleSignIn))).Methods(http.MethodPost)
	account.Handle("", session.Handler(http.HandlerFunc(h.CurrentUser))).Methods(http.MethodGet)
	account.Handle("/refreshToken", session.Handler(http.HandlerFunc(h.RefreshToken))).Methods(http.MethodPost)
	account.Handle("/logout", session.Handler(http.HandlerFunc(h.Logout))).Methods(http.MethodPost)
	account.Handle("/profile", strict.Handler(http.HandlerFunc(h.UpdateProfile))).Methods(http.MethodPut)

	if h.exchanger != nil {
		account.Handle("/google/login", guard(http.HandlerFunc(h.GoogleLogin))).Methods(http.MethodGet)
		account.Handle("/google/callback", guard(http.HandlerFunc(h.GoogleCallback))).Methods(http.MethodGet)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/account/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.verifier.VerifyPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.metrics.LoginsTotal.WithLabelValues(observability.OutcomeUnauthorized).Inc()
			httputil.WriteUnauthorized(w, "invalid email or password")
			return
		}
		h.logger.FromContext(r.Context()).WithError(err).Error("login failed")
		h.metrics.LoginsTotal.WithLabelValues(observability.OutcomeError).Inc()
		httputil.WriteInternalError(w, errors.New("login failed"))
		return
	}

	if !h.startSession(w, r, user) {
		h.metrics.LoginsTotal.WithLabelValues(observability.OutcomeError).Inc()
		return
	}
	h.metrics.LoginsTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
}

type registerRequest struct {
	DisplayName string `json:"displayName"`
	UserName    string `json:"userName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// Register handles POST /api/account/register. Field conflicts come back as
// a 400 with one message list per field so the client can attach them to the
// form inputs.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	problem := httputil.NewValidationProblem()
	if req.DisplayName == "" {
		problem.Add("displayName", "display name is required")
	}
	if req.UserName == "" {
		problem.Add("userName", "user name is required")
	}
	if req.Email == "" {
		problem.Add("email", "email is required")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		problem.Add("email", "email is not a valid address")
	}
	if len(req.Password) < 8 {
		problem.Add("password", "password must be at least 8 characters")
	}
	if problem.HasErrors() {
		h.metrics.RegistrationsTotal.WithLabelValues(observability.OutcomeError).Inc()
		httputil.WriteValidationProblem(w, problem)
		return
	}

	ctx := r.Context()
	if taken, err := h.store.UserNameTaken(ctx, req.UserName); err != nil {
		h.registerFailed(w, r, err)
		return
	} else if taken {
		problem.Add("userName", "user name is already taken")
	}
	if taken, err := h.store.EmailTaken(ctx, req.Email); err != nil {
		h.registerFailed(w, r, err)
		return
	} else if taken {
		problem.Add("email", "email is already taken")
	}
	if problem.HasErrors() {
		h.metrics.RegistrationsTotal.WithLabelValues(observability.OutcomeError).Inc()
		httputil.WriteValidationProblem(w, problem)
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		h.registerFailed(w, r, err)
		return
	}

	user := &identity.User{
		ID:           uuid.NewString(),
		UserName:     req.UserName,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		CreatedAt:    h.now(),
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		// The precheck raced a concurrent registration; report it the same
		// way as a precheck hit.
		switch {
		case errors.Is(err, identity.ErrDuplicateUserName):
			problem.Add("userName", "user name is already taken")
		case errors.Is(err, identity.ErrDuplicateEmail):
			problem.Add("email", "email is already taken")
		default:
			h.registerFailed(w, r, err)
			return
		}
		h.metrics.RegistrationsTotal.WithLabelValues(observability.OutcomeError).Inc()
		httputil.WriteValidationProblem(w, problem)
		return
	}

	if !h.startSession(w, r, user) {
		h.metrics.RegistrationsTotal.WithLabelValues(observability.OutcomeError).Inc()
		return
	}
	h.metrics.RegistrationsTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
}

func (h *Handlers) registerFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.FromContext(r.Context()).WithError(err).Error("registration failed")
	h.metrics.RegistrationsTotal.WithLabelValues(observability.OutcomeError).Inc()
	httputil.WriteInternalError(w, errors.New("registration failed"))
}

type googleSignInRequest struct {
	AccessToken string `json:"accessToken"`
}

// GoogleSignIn handles POST /api/account/googleSignIn. The body carries the
// ID token obtained from Google's sign-in SDK; a verified first-time email is
// provisioned just-in-time.
func (h *Handlers) GoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if h.assertions == nil {
		httputil.WriteUnauthorized(w, "federated sign-in is not enabled")
		return
	}

	var req googleSignInRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	claims, err := h.assertions.Verify(r.Context(), req.AccessToken)
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

// CurrentUser handles GET /api/account, the silent identity probe on app
// load. A usable cookie and claim yield a rotated session; anything else is
// 204, never an error, so a signed-out visitor loads the app cleanly.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	result := h.refreshSession(w, r)
	if result == nil {
		httputil.WriteNoContent(w)
	}
}

// RefreshToken handles POST /api/account/refreshToken
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	h.exchangeSession(w, r)
}

// Logout handles POST /api/account/logout. Always 200: a client logging out
// twice, or with a stale cookie, still ends up signed out locally.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.LogoutsTotal.Inc()

	h.cookies.ClearRefreshCookie(w)

	secret, ok := httputil.RefreshSecret(r)
	if !ok {
		httputil.WriteSuccess(w, map[string]string{"status": "logged out"})
		return
	}

	if user := h.resolveUser(r); user != nil {
		ctx := r.Context()
		now := h.now()
		if tokens, err := h.store.RefreshTokensByUser(ctx, user.ID); err == nil {
			if match := token.FindBySecret(tokens, secret); match != nil {
				if err := h.store.RevokeRefreshToken(ctx, match.ID, now); err != nil {
					h.logger.FromContext(ctx).WithError(err).Warn("revoking refresh token failed")
				}
			}
			h.purge(ctx, user.ID, now)
		}
	}

	httputil.WriteSuccess(w, map[string]string{"status": "logged out"})
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
}

// UpdateProfile handles PUT /api/account/profile
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromRequest(r)
	if claims == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req updateProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.DisplayName == "" {
		problem := httputil.NewValidationProblem()
		problem.Add("displayName", "display name is required")
		httputil.WriteValidationProblem(w, problem)
		return
	}

	err := h.store.UpdateProfile(r.Context(), claims.UserID(), req.DisplayName, req.Bio)
	if err != nil {
		if errors.Is(err, identity.ErrNoRowsAffected) {
			httputil.WriteUnauthorized(w, "unknown account")
			return
		}
		h.logger.FromContext(r.Context()).WithError(err).Error("profile update failed")
		httputil.WriteInternalError(w, errors.New("profile update failed"))
		return
	}

	httputil.WriteSuccess(w, map[string]string{
		"displayName": req.DisplayName,
		"bio":         req.Bio,
	})
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gatherly/identity/pkg/account"
	"github.com/gatherly/identity/pkg/config"
	"github.com/gatherly/identity/pkg/federation"
	"github.com/gatherly/identity/pkg/httputil"
	"github.com/gatherly/identity/pkg/identity"
	"github.com/gatherly/identity/pkg/middleware"
	"github.com/gatherly/identity/pkg/observability"
	"github.com/gatherly/identity/pkg/token"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
	metrics := observability.InitMetrics()

	db, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("preparing schema: %w", err)
	}
	logger.WithField("driver", cfg.Database.Driver).Info("Relational store ready")

	issuer := token.NewIssuer(cfg.Token.SigningKey, cfg.Token.AccessTokenTTL)

	var assertions federation.AssertionVerifier
	var exchanger federation.Exchanger
	if cfg.Google.Enabled() {
		verifier, err := federation.NewGoogleVerifier(ctx, cfg.Google.ClientID)
		if err != nil {
			return fmt.Errorf("configuring google sign-in: %w", err)
		}
		assertions = verifier
		logger.Info("Google federated sign-in enabled")

		if cfg.Google.ClientSecret != "" && cfg.Google.RedirectURL != "" {
			webFlow, err := federation.NewGoogleWebFlow(ctx,
				cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
			if err != nil {
				return fmt.Errorf("configuring google web flow: %w", err)
			}
			exchanger = webFlow
			logger.Info("Google authorization-code flow enabled")
		}
	} else {
		logger.Info("Google federated sign-in disabled (no client ID configured)")
	}

	handlers := account.NewHandlers(account.Options{
		Store:      store,
		Issuer:     issuer,
		Assertions: assertions,
		Exchanger:  exchanger,
		Cookies:    httputil.CookiePolicy{Development: cfg.IsDevelopment()},
		RefreshTTL: cfg.Token.RefreshTokenTTL,
		Logger:     logger,
		Metrics:    metrics,
	})

	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
		WindowDuration:    cfg.RateLimit.WindowDuration,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	limiter.StartCleanup(limiterCtx)

	health := observability.NewHealthChecker(db)

	router := mux.NewRouter()
	router.Use(observability.HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/healthz", health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", health.Readiness).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	handlers.RegisterRoutes(router, limiter)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		stopLimiter()
		return db.Close()
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":        addr,
			"environment": cfg.Environment,
		}).Info("Identity service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	shutdownErr := make(chan error, 1)
	go func() {
		shutdownErr <- shutdown.WaitForShutdown()
	}()

	select {
	case err := <-serveErr:
		return err
	case err := <-shutdownErr:
		return err
	}
}

// openStore opens the configured relational backend and wraps it in the
// identity store.
func openStore(cfg *config.Config) (*sql.DB, *identity.SQLStore, error) {
	var (
		db      *sql.DB
		dialect identity.Dialect
		err     error
	)

	switch cfg.Database.Driver {
	case "postgres":
		dialect = identity.PostgresDialect()
		db, err = sql.Open("postgres", cfg.Database.PostgresURL)
	case "sqlite3":
		dialect = identity.SQLiteDialect()
		db, err = sql.Open("sqlite3", cfg.Database.SQLitePath)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	return db, identity.NewSQLStore(db, dialect), nil
}

// Package observability provides structured logging, Prometheus metrics, and health checks.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("email", email).Info("user logged in")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.InitMetrics()
//	metrics.LoginsTotal.WithLabelValues(observability.OutcomeSuccess).Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db)
//	router.HandleFunc("/health", checker.Liveness)
//	router.HandleFunc("/ready", checker.Readiness)
package observability

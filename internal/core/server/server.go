package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/listing-search/internal/core/config"
	"github.com/mohammed-shakir/listing-search/internal/core/health"
	middleware "github.com/mohammed-shakir/listing-search/internal/core/middleware"
	"github.com/mohammed-shakir/listing-search/internal/core/router"
)

type Options struct {
	// Metrics serves /metrics; nil uses the default Prometheus registry.
	Metrics http.Handler
	Checks  []health.Check
}

// NewHandler builds the full HTTP surface of the service.
func NewHandler(logger *slog.Logger, svc router.Service, opts Options) http.Handler {
	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, opts.Checks...))
	r.Method(http.MethodGet, "/metrics", metricsHandler)
	router.Mount(r, svc, logger)
	return r
}

// sets up http and starts serving until ctx is cancelled
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

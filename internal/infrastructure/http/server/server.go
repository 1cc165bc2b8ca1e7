// Package server provides the HTTP API server
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/formulab/v2/internal/infrastructure/config"
	"github.com/formulab/v2/internal/infrastructure/http/handlers"
	"github.com/formulab/v2/internal/infrastructure/http/middleware"
	"github.com/formulab/v2/pkg/healthcheck"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and its router.
type Server struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates the API server with all routes mounted. redisClient may
// be nil when the cache is disabled; rate limiting is skipped in that case.
func NewServer(cfg *config.Config, logger *zap.Logger, formulaAPI *handlers.FormulaAPI, pool *pgxpool.Pool, redisClient *redis.Client) *Server {
	s := &Server{config: cfg, logger: logger}

	hc := healthcheck.New(cfg.App.Version, logger)
	hc.Register("database", healthcheck.NewDatabaseChecker(pool))
	if redisClient != nil {
		hc.Register("redis", healthcheck.NewRedisChecker(redisClient))
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", hc.Handler())
	r.Get("/health/live", hc.LivenessHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(redisClient, logger, cfg.Server.RateLimitPerMinute, time.Minute))
		formulaAPI.Routes(r)
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		// Write timeout is left to the request context so SSE responses can
		// outlive a fixed deadline.
		IdleTimeout: cfg.Server.IdleTimeout,
	}
	return s
}

// Start begins serving. It blocks until the listener fails.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}

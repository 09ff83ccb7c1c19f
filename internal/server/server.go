// Package server exposes the agent's operations API over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/domain"
	"github.com/alanyoungcy/vaultagent/internal/server/handler"
	"github.com/alanyoungcy/vaultagent/internal/server/middleware"
	"github.com/alanyoungcy/vaultagent/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables auth on read routes and all admin routes

	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Reports may be
// nil when no archive is configured.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Vaults  *handler.VaultHandler
	Reports *handler.ReportHandler
	Trades  *handler.TradeFeedHandler
}

// Server is the ops HTTP + WebSocket server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. limiter
// and hub may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      newRouter(cfg, handlers, hub, limiter, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

func newRouter(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	admin := middleware.RequireKey(cfg.APIKey)

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/vaults/{key}/cooldown", handlers.Vaults.GetCooldown)
	mux.Handle("POST /api/vaults/{key}/reset-cooldown", admin(http.HandlerFunc(handlers.Vaults.ResetCooldown)))
	mux.HandleFunc("GET /api/vaults/{key}/trades", handlers.Vaults.ListTrades)
	mux.HandleFunc("GET /api/vaults/{key}/positions", handlers.Vaults.ListPositions)
	mux.HandleFunc("GET /api/audit", handlers.Vaults.ListAudit)

	if handlers.Reports != nil {
		mux.HandleFunc("GET /api/reports", handlers.Reports.ListReports)
		mux.HandleFunc("GET /api/reports/{date}/{id}", handlers.Reports.GetReport)
	}
	if handlers.Trades != nil {
		mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Package http provides the ops HTTP server: liveness and readiness probes,
// Prometheus metrics and the read-only exchange endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	exchangeHTTP "github.com/allisson/credx/internal/exchange/http"
	"github.com/allisson/credx/internal/metrics"
)

// ReadinessChecker reports whether a dependency can serve requests.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// Server represents the ops HTTP server.
type Server struct {
	server   *http.Server
	router   *gin.Engine
	keyStore ReadinessChecker
	logger   *slog.Logger
}

// NewServer creates a server bound to host:port. The router is built by SetupRouter.
func NewServer(keyStore ReadinessChecker, host string, port int, logger *slog.Logger) *Server {
	return &Server{
		keyStore: keyStore,
		logger:   logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// RouterOptions configures the optional middleware of the exchange routes.
type RouterOptions struct {
	CORSEnabled             bool
	CORSAllowOrigins        string
	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int
}

// SetupRouter builds the gin engine. A nil metricsProvider leaves /metrics and the
// HTTP instruments out; a nil exchangeHandler leaves the /v1/exchange routes out.
func (s *Server) SetupRouter(
	opts RouterOptions,
	exchangeHandler *exchangeHTTP.ExchangeHandler,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), metricsProvider.Namespace()))
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	if exchangeHandler != nil {
		group := router.Group("/v1/exchange")
		if corsMiddleware := createCORSMiddleware(opts.CORSEnabled, opts.CORSAllowOrigins, s.logger); corsMiddleware != nil {
			group.Use(corsMiddleware)
		}
		if opts.RateLimitEnabled {
			group.Use(RateLimitMiddleware(opts.RateLimitRequestsPerSec, opts.RateLimitBurst))
		}
		exchangeHandler.RegisterRoutes(group)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return errors.New("router is not set up")
	}
	s.server.Handler = s.router
	s.server.BaseContext = func(_ net.Listener) context.Context { return ctx }

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready once the key store can be read and authenticated.
func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	keyStoreStatus := "ok"
	if s.keyStore == nil {
		keyStoreStatus = "error"
	} else if err := s.keyStore.Check(ctx); err != nil {
		s.logger.Error("key store readiness check failed", slog.Any("error", err))
		keyStoreStatus = "error"
	}

	if keyStoreStatus != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"key_store": keyStoreStatus},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"key_store": keyStoreStatus},
	})
}

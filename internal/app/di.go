// Package app provides the dependency injection container that assembles the
// key store, identity adapters, envelope packer, exchange protocols and ops server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/allisson/credx/internal/config"
	"github.com/allisson/credx/internal/database"
	envelopeService "github.com/allisson/credx/internal/envelope/service"
	exchangeService "github.com/allisson/credx/internal/exchange/service"
	exchangeUseCase "github.com/allisson/credx/internal/exchange/usecase"
	"github.com/allisson/credx/internal/http"
	identityService "github.com/allisson/credx/internal/identity/service"
	keystoreService "github.com/allisson/credx/internal/keystore/service"
	keystoreUseCase "github.com/allisson/credx/internal/keystore/usecase"
	"github.com/allisson/credx/internal/metrics"
)

// Container holds all application dependencies and provides methods to access them.
// Components are created lazily on first access.
type Container struct {
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Key store
	kmsService        keystoreService.KMSService
	keyStore          *keystoreUseCase.FileKeyStore
	rotationManager   keystoreUseCase.RotationManager
	rotationScheduler *keystoreUseCase.RotationScheduler

	// Identity and envelopes
	resolver identityService.Resolver
	signer   *identityService.KeyStoreSigner
	packer   *envelopeService.PackerService

	// Exchange
	registry        *exchangeService.Registry
	flowLog         exchangeService.FlowLog
	correlator      *exchangeService.Correlator
	exchangeUseCase exchangeUseCase.ExchangeUseCase

	// Servers
	httpServer *http.Server

	mu                    sync.Mutex
	loggerInit            sync.Once
	dbInit                sync.Once
	metricsProviderInit   sync.Once
	businessMetricsInit   sync.Once
	kmsServiceInit        sync.Once
	keyStoreInit          sync.Once
	rotationManagerInit   sync.Once
	rotationSchedulerInit sync.Once
	resolverInit          sync.Once
	signerInit            sync.Once
	packerInit            sync.Once
	registryInit          sync.Once
	flowLogInit           sync.Once
	correlatorInit        sync.Once
	exchangeUseCaseInit   sync.Once
	httpServerInit        sync.Once
	initErrors            map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the JSON logger at the configured level.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the flow log database connection.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		c.db, c.initErrors["db"] = c.initDB()
	})
	if err := c.initErrors["db"]; err != nil {
		return nil, err
	}
	return c.db, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, c.initErrors["metricsProvider"] = c.initMetricsProvider()
	})
	if err := c.initErrors["metricsProvider"]; err != nil {
		return nil, err
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, c.initErrors["businessMetrics"] = c.initBusinessMetrics()
	})
	if err := c.initErrors["businessMetrics"]; err != nil {
		return nil, err
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the ops server with its router set up.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.httpServerInit.Do(func() {
		c.httpServer, c.initErrors["httpServer"] = c.initHTTPServer()
	})
	if err := c.initErrors["httpServer"]; err != nil {
		return nil, err
	}
	return c.httpServer, nil
}

// Shutdown releases every initialized resource. Call it once the application stops.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.keyStore != nil {
		if err := c.keyStore.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("key store close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(shutdownErrors...))
	}
	return nil
}

func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(context.Background(), c.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// DatabaseConfig returns the connection settings of the flow log database.
func (c *Container) DatabaseConfig() database.Config {
	return database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	}
}

func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), provider.Namespace())
}

func (c *Container) initHTTPServer() (*http.Server, error) {
	keyStore, err := c.KeyStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get key store for http server: %w", err)
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	exchangeHandler, err := c.ExchangeHandler()
	if err != nil {
		return nil, err
	}

	server := http.NewServer(keyStore, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(http.RouterOptions{
		CORSEnabled:             c.config.CORSEnabled,
		CORSAllowOrigins:        c.config.CORSAllowOrigins,
		RateLimitEnabled:        c.config.RateLimitEnabled,
		RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
		RateLimitBurst:          c.config.RateLimitBurst,
	}, exchangeHandler, provider)
	return server, nil
}

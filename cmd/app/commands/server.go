package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/credx/internal/app"
	"github.com/allisson/credx/internal/config"
)

const shutdownTimeout = 30 * time.Second

// RunServer starts the ops server, the key rotation scheduler and the stale flow
// sweep. It blocks until SIGINT/SIGTERM or until the server fails, then shuts
// everything down gracefully.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	scheduler, err := container.RotationScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize rotation scheduler: %w", err)
	}
	exchange, err := container.ExchangeUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize exchange service: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("http server error: %w", err)
		}
	}()

	workers := make(chan struct{}, 2)
	go func() {
		defer func() { workers <- struct{}{} }()
		if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("rotation scheduler stopped", slog.Any("error", err))
		}
	}()
	go func() {
		defer func() { workers <- struct{}{} }()
		RunExpireLoop(ctx, exchange, container.ExpireInterval(), logger)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", runErr))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErrors []error
	if runErr != nil {
		shutdownErrors = append(shutdownErrors, runErr)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
	}
	for range 2 {
		select {
		case <-workers:
		case <-shutdownCtx.Done():
			shutdownErrors = append(shutdownErrors, errors.New("background workers did not stop in time"))
			return errors.Join(shutdownErrors...)
		}
	}

	return errors.Join(shutdownErrors...)
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

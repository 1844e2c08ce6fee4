package usecase

import (
	"context"
	"log/slog"
	"time"

	keystoreDomain "github.com/allisson/credx/internal/keystore/domain"
)

const flushTimeout = 5 * time.Second

// RotationScheduler periodically applies the rotation policy to every key.
type RotationScheduler struct {
	store    KeyStore
	manager  RotationManager
	interval time.Duration
	logger   *slog.Logger
}

// NewRotationScheduler creates a RotationScheduler.
func NewRotationScheduler(
	store KeyStore,
	manager RotationManager,
	interval time.Duration,
	logger *slog.Logger,
) *RotationScheduler {
	return &RotationScheduler{store: store, manager: manager, interval: interval, logger: logger}
}

// Start runs CheckAndRotate on every tick until ctx is cancelled.
func (s *RotationScheduler) Start(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("starting key rotation scheduler", slog.Duration("interval", s.interval))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info("stopping key rotation scheduler")
			}
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			if err := s.manager.FlushUsage(flushCtx); err != nil && s.logger != nil {
				s.logger.Error("failed to flush key usage", slog.Any("error", err))
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.CheckAndRotate(ctx); err != nil && s.logger != nil {
				s.logger.Error("failed to check key rotation", slog.Any("error", err))
			}
		}
	}
}

// CheckAndRotate persists the buffered key uses, then rotates every key whose active
// version is due and returns the new refs. Keys without an active version (fully
// archived) are skipped. A failure on one key does not stop the others; the first
// error is returned.
func (s *RotationScheduler) CheckAndRotate(ctx context.Context) ([]keystoreDomain.KeyRef, error) {
	var firstErr error
	if err := s.manager.FlushUsage(ctx); err != nil {
		firstErr = err
	}

	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var rotated []keystoreDomain.KeyRef
	for _, keyID := range ids {
		due, err := s.manager.ShouldRotate(ctx, keyID)
		if err != nil {
			if keystoreDomain.IsNoActiveKey(err) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !due {
			continue
		}

		_, newRef, err := s.manager.Rotate(ctx, keyID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		rotated = append(rotated, newRef)
	}
	return rotated, firstErr
}

package commands

import (
	"context"
	"log/slog"
	"time"
)

// FlowExpirer moves flows past their expiry to EXPIRED.
type FlowExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) ([]string, error)
}

// RunExpireLoop sweeps stale flows every interval until ctx is cancelled.
func RunExpireLoop(ctx context.Context, expirer FlowExpirer, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := expirer.ExpireStale(ctx, now.UTC()); err != nil {
				logger.Error("failed to expire stale flows", slog.Any("error", err))
			}
		}
	}
}

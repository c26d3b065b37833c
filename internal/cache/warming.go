package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/local-briefing/internal/observability"
)

// LocationRefresher re-resolves the current location and stores it. Implemented by
// the locator; declared here to keep the cache package free of that dependency.
type LocationRefresher interface {
	Refresh(ctx context.Context) error
}

// Refresher keeps the location cache warm in long-running processes.
type Refresher struct {
	target LocationRefresher
	logger *zap.Logger
}

func NewRefresher(target LocationRefresher, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{target: target, logger: logger}
}

// Refresh runs one refresh and records its outcome.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := time.Now()
	err := r.target.Refresh(ctx)
	duration := time.Since(start)
	observability.LocationRefreshDuration.Observe(duration.Seconds())

	if err != nil {
		observability.LocationRefreshTotal.WithLabelValues("error").Inc()
		r.logger.Warn("location refresh failed", zap.Error(err), zap.Duration("duration", duration))
		return err
	}
	observability.LocationRefreshTotal.WithLabelValues("success").Inc()
	r.logger.Debug("location refreshed", zap.Duration("duration", duration))
	return nil
}

// RefreshPeriodic runs an initial Refresh, then repeats at interval until ctx is done.
func (r *Refresher) RefreshPeriodic(ctx context.Context, interval time.Duration) error {
	_ = r.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}

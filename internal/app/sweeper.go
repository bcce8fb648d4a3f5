package app

import (
	"context"
	"time"

	"github.com/prperemyshlev/runcup-connect/internal/service"
	"go.uber.org/zap"
)

type expirySweeper interface {
	SweepExpired(ctx context.Context) (*service.SweepResult, error)
}

// Sweeper periodically clears expired Strava connections so the counter
// does not wait for the next connect attempt to shrink.
type Sweeper struct {
	manager  expirySweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper. A non-positive interval disables it.
func NewSweeper(manager expirySweeper, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{manager: manager, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Strava expiry sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.manager.SweepExpired(ctx); err != nil {
		s.logger.Error("Strava expiry sweep failed", zap.Error(err))
	}
}

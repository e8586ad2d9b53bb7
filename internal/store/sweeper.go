package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically evicts conversations idle past the retention period.
type Sweeper struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
}

func NewSweeper(s Store, interval, maxAge time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		store:    s,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.Named("sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("conversation sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("conversation sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of removed conversations.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.SweepExpired(ctx, s.maxAge)
	if err != nil {
		s.logger.Warn("sweep failed", zap.Error(err))
		return 0
	}

	for _, id := range removed {
		s.logger.Info("cleaned up old conversation", zap.String("conversation_id", id))
	}
	return len(removed)
}

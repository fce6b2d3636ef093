package room

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes rooms older than a TTL, regardless of status
// or recent activity.
type Sweeper struct {
	store    *Store
	interval time.Duration
	ttl      time.Duration
	logger   *zap.Logger
	onExpire func(id string)
	done     chan struct{}
}

// NewSweeper creates a Sweeper over store. onExpire, if non-nil, is called
// once for every deleted room after its deletion.
//
// Precondition: interval > 0 and ttl > 0; logger must be non-nil.
func NewSweeper(store *Store, interval, ttl time.Duration, logger *zap.Logger, onExpire func(id string)) *Sweeper {
	if interval <= 0 {
		panic("room.NewSweeper: interval must be > 0")
	}
	if ttl <= 0 {
		panic("room.NewSweeper: ttl must be > 0")
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
		onExpire: onExpire,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled. It blocks and always
// returns nil.
func (s *Sweeper) Start(ctx context.Context) error {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("room sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("ttl", s.ttl),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// Stop waits for a running Start loop to exit or for ctx to expire.
// The loop itself is stopped by cancelling the context passed to Start.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("room sweeper did not stop before deadline")
	}
}

// SweepOnce performs a single expiry pass and returns the deleted ids.
func (s *Sweeper) SweepOnce() []string {
	start := time.Now()
	expired := s.store.Expire(s.ttl)
	for _, id := range expired {
		s.logger.Info("cleaned up expired game", zap.String("game_id", id))
		if s.onExpire != nil {
			s.onExpire(id)
		}
	}
	s.logger.Debug("room sweep complete",
		zap.Int("expired", len(expired)),
		zap.Int("remaining", s.store.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return expired
}

package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultSweepInterval = 15 * time.Minute

// Expirer is the part of the bid service the sweeper drives.
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically expires bids that outlived their window.
type Sweeper struct {
	bids      Expirer
	interval  time.Duration
	onExpired func(n int)
	now       func() time.Time
	log       zerolog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithExpiredHook registers a callback run after each sweep that expired
// at least one bid.
func WithExpiredHook(fn func(n int)) SweeperOption {
	return func(s *Sweeper) { s.onExpired = fn }
}

func NewSweeper(bids Expirer, interval time.Duration, log zerolog.Logger, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	s := &Sweeper{bids: bids, interval: interval, now: time.Now, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
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
	n, err := s.bids.ExpireStale(ctx, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("bid expiry sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("expired", n).Msg("bid expiry sweep")
		if s.onExpired != nil {
			s.onExpired(n)
		}
	}
}

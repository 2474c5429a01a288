// Package sweep runs the periodic background task that rewinds stuck jobs
// back to queued (spec.md §4.D): the only recovery mechanism available
// given the printer protocol has no in-transaction heartbeat.
package sweep

import (
	"context"
	"time"

	"github.com/jonaohana/vessale/internal/jobstore"
	"go.uber.org/zap"
)

// Defaults match spec.md §4.D.
const (
	DefaultTick         = 3 * time.Second
	DefaultOfferTimeout = 10 * time.Second
	DefaultSentTimeout  = 20 * time.Second
)

// Sweeper periodically rewinds Offered/Sent jobs that have sat past their
// timeout back to Queued.
type Sweeper struct {
	store        *jobstore.Store
	logger       *zap.Logger
	tick         time.Duration
	offerTimeout time.Duration
	sentTimeout  time.Duration
}

// New constructs a Sweeper with spec.md's default timings.
func New(store *jobstore.Store, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:        store,
		logger:       logger,
		tick:         DefaultTick,
		offerTimeout: DefaultOfferTimeout,
		sentTimeout:  DefaultSentTimeout,
	}
}

// WithTimings overrides the tick/offer/sent timeouts, for tests that need
// faster boundaries than the 3s/10s/20s production defaults.
func (s *Sweeper) WithTimings(tick, offerTimeout, sentTimeout time.Duration) *Sweeper {
	s.tick = tick
	s.offerTimeout = offerTimeout
	s.sentTimeout = sentTimeout
	return s
}

// Run blocks, sweeping every tick until ctx is cancelled. Intended to run
// in its own goroutine for the process lifetime. Each wake acquires the
// job-store lock at most once per tenant scan; Sweep itself yields by
// returning promptly (the critical sections are short scans), so a single
// tick never blocks the selector for long.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rewound := s.store.Sweep(now, s.offerTimeout, s.sentTimeout)
			if rewound > 0 {
				s.logger.Info("sweeper rewound stuck jobs", zap.Int("count", rewound))
			}
		}
	}
}

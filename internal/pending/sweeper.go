package pending

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "payflow_pending_swept_total",
	Help: "Pending payment records discarded by the expiry sweep",
})

// Sweeper periodically expires stale pending records. It is an explicitly
// owned component with a start/stop lifecycle so tests can run isolated
// instances and control the clock.
type Sweeper struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

type SweeperConfig struct {
	Store    Store
	Interval time.Duration
	MaxAge   time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func NewSweeper(cfg SweeperConfig) *Sweeper {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		store:    cfg.Store,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop. Call Stop to shut it down.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep runs one expiry pass immediately.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed, err := s.store.SweepExpired(ctx, s.now(), s.maxAge)
	if err != nil {
		log.Printf("pending sweep failed: %v", err)
		return 0
	}
	if removed > 0 {
		sweptTotal.Add(float64(removed))
		log.Printf("cleaned up %d stale pending payment record(s)", removed)
	}
	return removed
}

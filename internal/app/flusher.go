package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bft-labs/rpcagg/pkg/log"
)

// DefaultFlushInterval bounds how long a partial batch may wait.
const DefaultFlushInterval = 2 * time.Millisecond

// Flusher periodically drives progress and drains partially filled buffers.
// Each local worker runs its own loop over the destinations it owns, so no
// two loops ever drain the same destination.
type Flusher struct {
	manager  *Manager
	logger   log.Logger
	interval atomic.Int64
}

// NewFlusher creates a flusher for m ticking every interval.
func NewFlusher(m *Manager, interval time.Duration, logger log.Logger) *Flusher {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	f := &Flusher{manager: m, logger: logger}
	f.SetInterval(interval)
	return f
}

// SetInterval changes the tick period. Running loops pick it up on their next tick.
func (f *Flusher) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultFlushInterval
	}
	f.interval.Store(int64(d))
}

// Interval returns the current tick period.
func (f *Flusher) Interval() time.Duration {
	return time.Duration(f.interval.Load())
}

// Run executes the flush loop for one local worker until ctx is canceled,
// then drains that worker's destinations one last time.
func (f *Flusher) Run(ctx context.Context, local int) error {
	timer := time.NewTimer(f.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if n := f.manager.Flush(local); n > 0 {
				f.logger.Debug("final flush", log.Int("worker", local), log.Int("records", n))
			}
			return ctx.Err()
		case <-timer.C:
		}

		f.manager.Progress()
		f.manager.Flush(local)
		timer.Reset(f.Interval())
	}
}

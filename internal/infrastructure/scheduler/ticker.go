// Package scheduler drives the periodic refresh check on a plain ticker. The
// interval gate lives in the use case, so ticking often is cheap.
package scheduler

import (
	"context"
	"time"

	"NewsDesk/internal/ports"
)

// TickerScheduler invokes the job on a fixed interval.
type TickerScheduler struct {
	every time.Duration
	stop  chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler firing every interval.
func NewTickerScheduler(every time.Duration) *TickerScheduler {
	if every <= 0 {
		every = 5 * time.Minute
	}
	return &TickerScheduler{every: every}
}

// Start runs the job once immediately and then on every tick until the
// context is canceled or Stop is called. Calling Start twice is a no-op.
func (s *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if s.stop != nil {
		return nil
	}

	s.stop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case t := <-ticker.C:
				job(t)
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine.
func (s *TickerScheduler) Stop(_ context.Context) error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.stop = nil
	return nil
}

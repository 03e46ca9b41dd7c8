package acquisition

import (
	"context"
	"time"
)

// Clock is the session's monotonic time source. Now reports time elapsed
// since the session clock started.
type Clock interface {
	Now() time.Duration
	Sleep(ctx context.Context, d time.Duration) error
}

type monotonicClock struct {
	start time.Time
}

// NewClock returns a Clock that starts now. Readings come from the runtime's
// monotonic clock and are unaffected by wall clock adjustments.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *monotonicClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

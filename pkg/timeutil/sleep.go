package timeutil

import (
	"context"
	"time"
)

// MaxSleep caps delay values passed to Sleep. Backoff arithmetic on large
// multipliers can overflow time.Duration; anything above this cap is a
// bug upstream, so clamp rather than arm a nonsense timer.
const MaxSleep = 24 * time.Hour

// ClampDelay bounds a delay to [0, max]. Negative delays (including
// overflowed backoff products) collapse to zero.
func ClampDelay(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > max {
		return max
	}
	return d
}

// Sleep waits for the given duration on the supplied clock, returning
// early with the context error if the context is cancelled first. A
// non-positive duration still checks the context once before returning.
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	d = ClampDelay(d, MaxSleep)
	if d == 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package resilience

import (
	"math"
	"math/rand"
	"time"

	"github.com/jarvis-chat/webhook-relay/pkg/timeutil"
)

// RetryPolicy governs attempt spacing inside a single delivery call. It
// is independent of circuit-breaker timing.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int

	// BaseDelay is the delay before the second attempt
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration

	// Multiplier is the exponential backoff factor
	Multiplier float64

	// Jitter randomizes each delay within [0.5, 1.0] of its computed value
	Jitter bool
}

// DefaultRetryPolicy returns the documented defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Delay returns the backoff delay to sleep after the given completed
// attempt (1-based). The undithered delay is
// min(MaxDelay, BaseDelay * Multiplier^(attempt-1)); with Jitter enabled
// the result is uniform in [0.5, 1.0] of that value and still never
// exceeds MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	raw := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}

	if p.Jitter {
		raw *= 0.5 + 0.5*rand.Float64()
	}

	return timeutil.ClampDelay(time.Duration(raw), p.MaxDelay)
}

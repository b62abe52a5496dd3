package resilience

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/jarvis-chat/webhook-relay/pkg/observability"
)

// ErrRateLimitExceeded is returned when the outbound rate limit is exceeded
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiterConfig configures the optional outbound rate limiter
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained outbound request rate
	RequestsPerSecond float64

	// BurstSize is the maximum burst size
	BurstSize int
}

// DefaultRateLimiterConfig returns sensible defaults
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}
}

// RateLimiter bounds the rate of outbound webhook deliveries
type RateLimiter struct {
	limiter *rate.Limiter
	logger  observability.Logger
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimiterConfig, logger observability.Logger) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 5
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		logger:  logger.WithPrefix("rate-limiter"),
	}
}

// Allow reports whether a request may proceed immediately
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// Wait blocks until a slot is available or the context is cancelled
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		rl.logger.Debug("Rate limit wait aborted", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}

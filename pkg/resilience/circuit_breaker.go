// Package resilience provides the circuit breaker, retry policy and rate
// limiter used by the webhook client to avoid overwhelming a failing
// endpoint.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/jarvis-chat/webhook-relay/pkg/observability"
	"github.com/jarvis-chat/webhook-relay/pkg/timeutil"
)

// ErrCircuitOpen is returned by Allow when the circuit is open and the
// recovery timeout has not yet elapsed
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of a circuit breaker
type State int

const (
	// StateClosed means requests flow normally
	StateClosed State = iota

	// StateOpen means requests are short-circuited
	StateOpen

	// StateHalfOpen means one trial sequence is permitted to probe recovery
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures circuit breaker behavior
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a
	// half-open probe is permitted
	RecoveryTimeout time.Duration
}

// DefaultBreakerConfig returns the documented defaults
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// CircuitBreaker is a consecutive-failure circuit breaker. State is only
// mutated through Allow, RecordSuccess and RecordFailure; callers never
// touch counters directly. The half-open transition happens on the next
// Allow after the recovery timeout, not via a background timer.
type CircuitBreaker struct {
	config BreakerConfig
	clock  timeutil.Clock
	logger observability.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker in the closed state
func NewCircuitBreaker(config BreakerConfig, clock timeutil.Clock, logger observability.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = timeutil.NewRealClock()
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	return &CircuitBreaker{
		config: config,
		clock:  clock,
		logger: logger.WithPrefix("circuit-breaker"),
		state:  StateClosed,
	}
}

// Allow reports whether an attempt sequence may proceed. When the circuit
// is open and the recovery timeout has elapsed since the last failure the
// breaker moves to half-open and the attempt is permitted.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return nil

	case StateOpen:
		if cb.clock.Now().Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.state = StateHalfOpen
			cb.logger.Info("Circuit breaker transitioning to half-open", nil)
			return nil
		}
		return ErrCircuitOpen

	default:
		return ErrCircuitOpen
	}
}

// RecordSuccess notes a successful call. A success while half-open closes
// the circuit and resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.logger.Info("Circuit breaker closed after successful recovery", nil)
	}
	cb.state = StateClosed
	cb.failures = 0
}

// RecordFailure notes a failed call. A failure while half-open reopens
// the circuit immediately; in the closed state the circuit opens once the
// consecutive-failure count reaches the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.clock.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.Warn("Circuit breaker re-opened after half-open failure", map[string]interface{}{
			"failures": cb.failures,
		})

	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.logger.Warn("Circuit breaker opened", map[string]interface{}{
				"failures":  cb.failures,
				"threshold": cb.config.FailureThreshold,
			})
		}
	}
}

// State returns the current circuit breaker state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current consecutive-failure count
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

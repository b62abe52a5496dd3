package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-chat/webhook-relay/pkg/timeutil"
)

func newTestBreaker(threshold int, recovery time.Duration) (*CircuitBreaker, *timeutil.FakeClock) {
	clock := timeutil.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
	}, clock, nil)
	return cb, clock
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	assert.Equal(t, 5, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(5, 30*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.Equal(t, StateClosed, cb.State())

	// Non-consecutive failures never open the circuit.
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(1 * time.Second)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)

	cb.RecordFailure()
	clock.Advance(30 * time.Second)
	require.NoError(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)

	cb.RecordFailure()
	clock.Advance(30 * time.Second)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	// The reopened circuit honors a fresh recovery window.
	clock.Advance(30 * time.Second)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_AllowWhileHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second)

	cb.RecordFailure()
	clock.Advance(30 * time.Second)
	require.NoError(t, cb.Allow())

	// Staying half-open until an outcome is recorded keeps the retry
	// sequence of a single probe call flowing.
	assert.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestDefaultBreakerConfig(t *testing.T) {
	cfg := DefaultBreakerConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.RecoveryTimeout)
}

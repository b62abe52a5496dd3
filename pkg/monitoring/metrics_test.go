package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jarvis-chat/webhook-relay/pkg/resilience"
)

func TestComputeSnapshot_Empty(t *testing.T) {
	now := time.Now()
	snap := computeSnapshot(nil, now, DefaultConfig(), resilience.StateClosed)

	assert.Equal(t, 0, snap.TotalRequests)
	assert.Equal(t, 0.0, snap.ErrorRate)
	assert.Equal(t, time.Duration(0), snap.MeanResponseTime)
	assert.Equal(t, HealthHealthy, snap.Health)
	assert.Equal(t, resilience.StateClosed, snap.CircuitState)
}

func TestComputeSnapshot_Percentiles(t *testing.T) {
	now := time.Now()
	records := make([]Outcome, 0, 100)
	for i := 1; i <= 100; i++ {
		records = append(records, Outcome{
			Timestamp:    now,
			ResponseTime: time.Duration(i) * time.Millisecond,
			Success:      true,
		})
	}

	snap := computeSnapshot(records, now, DefaultConfig(), resilience.StateClosed)

	assert.Equal(t, 100, snap.TotalRequests)
	assert.Equal(t, 100, snap.SuccessCount)
	assert.Equal(t, 0.0, snap.ErrorRate)
	// Index-based percentiles over 1..100ms: sorted[95] and sorted[99].
	assert.Equal(t, 96*time.Millisecond, snap.P95ResponseTime)
	assert.Equal(t, 100*time.Millisecond, snap.P99ResponseTime)
	assert.Equal(t, 50500*time.Microsecond, snap.MeanResponseTime)
}

func TestComputeSnapshot_SingleRecord(t *testing.T) {
	now := time.Now()
	records := []Outcome{{Timestamp: now, ResponseTime: 20 * time.Millisecond, Success: true}}

	snap := computeSnapshot(records, now, DefaultConfig(), resilience.StateClosed)

	assert.Equal(t, 20*time.Millisecond, snap.P95ResponseTime)
	assert.Equal(t, 20*time.Millisecond, snap.P99ResponseTime)
	assert.Equal(t, 20*time.Millisecond, snap.MeanResponseTime)
}

func TestComputeSnapshot_RequestWindows(t *testing.T) {
	now := time.Now()
	records := []Outcome{
		{Timestamp: now.Add(-30 * time.Second), Success: true},
		{Timestamp: now.Add(-5 * time.Minute), Success: true},
		{Timestamp: now.Add(-2 * time.Hour), Success: true},
	}

	snap := computeSnapshot(records, now, DefaultConfig(), resilience.StateClosed)

	assert.Equal(t, 3, snap.TotalRequests)
	assert.Equal(t, 1, snap.RequestsPerMinute)
	assert.Equal(t, 2, snap.RequestsPerHour)
}

func TestComputeSnapshot_HealthClassification(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()

	failures := func(n, total int) []Outcome {
		records := make([]Outcome, 0, total)
		for i := 0; i < total; i++ {
			records = append(records, Outcome{Timestamp: now, Success: i >= n})
		}
		return records
	}

	// 20% errors: unhealthy.
	snap := computeSnapshot(failures(2, 10), now, cfg, resilience.StateClosed)
	assert.Equal(t, HealthUnhealthy, snap.Health)

	// ~6.7% errors: degraded.
	snap = computeSnapshot(failures(1, 15), now, cfg, resilience.StateClosed)
	assert.Equal(t, HealthDegraded, snap.Health)

	// Exactly 10% errors is still degraded, not unhealthy.
	snap = computeSnapshot(failures(1, 10), now, cfg, resilience.StateClosed)
	assert.Equal(t, HealthDegraded, snap.Health)

	// 2% errors: healthy.
	snap = computeSnapshot(failures(1, 50), now, cfg, resilience.StateClosed)
	assert.Equal(t, HealthHealthy, snap.Health)
}

func TestComputeSnapshot_SlowMeanLatencyDegrades(t *testing.T) {
	now := time.Now()
	records := make([]Outcome, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, Outcome{Timestamp: now, ResponseTime: 2 * time.Second, Success: true})
	}

	snap := computeSnapshot(records, now, DefaultConfig(), resilience.StateClosed)
	assert.Equal(t, HealthDegraded, snap.Health)
}

func TestPercentileIndex(t *testing.T) {
	assert.Equal(t, 95, percentileIndex(100, 0.95))
	assert.Equal(t, 99, percentileIndex(100, 0.99))
	assert.Equal(t, 0, percentileIndex(1, 0.95))
	assert.Equal(t, 9, percentileIndex(10, 0.99))
	assert.Equal(t, 4, percentileIndex(5, 0.95))
}

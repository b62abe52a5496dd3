package monitoring

import (
	"sort"
	"time"

	"github.com/jarvis-chat/webhook-relay/pkg/resilience"
)

// HealthState classifies overall delivery health
type HealthState string

// Health states derived from the metrics window
const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// Outcome is one completed delivery attempt as observed by the client.
// Records are immutable once appended.
type Outcome struct {
	Timestamp    time.Time
	ResponseTime time.Duration
	Success      bool
	StatusCode   int
	Error        string

	// Rejected marks outcomes that failed without a network attempt,
	// such as circuit-open short circuits
	Rejected bool
}

// MetricsSnapshot is computed on demand from the current record window;
// it is never stored
type MetricsSnapshot struct {
	Timestamp         time.Time         `json:"timestamp"`
	TotalRequests     int               `json:"total_requests"`
	SuccessCount      int               `json:"success_count"`
	FailureCount      int               `json:"failure_count"`
	ErrorRate         float64           `json:"error_rate"`
	MeanResponseTime  time.Duration     `json:"mean_response_time"`
	P95ResponseTime   time.Duration     `json:"p95_response_time"`
	P99ResponseTime   time.Duration     `json:"p99_response_time"`
	RequestsPerMinute int               `json:"requests_per_minute"`
	RequestsPerHour   int               `json:"requests_per_hour"`
	CircuitState      resilience.State  `json:"circuit_state"`
	Health            HealthState       `json:"health"`
}

// computeSnapshot derives a snapshot from the record window. Percentiles
// are index-based over the sorted latency set: sorted[floor(n*q)], not
// interpolated.
func computeSnapshot(records []Outcome, now time.Time, cfg Config, circuit resilience.State) MetricsSnapshot {
	snap := MetricsSnapshot{
		Timestamp:    now,
		CircuitState: circuit,
		Health:       HealthHealthy,
	}

	n := len(records)
	snap.TotalRequests = n
	if n == 0 {
		return snap
	}

	latencies := make([]time.Duration, 0, n)
	var totalLatency time.Duration
	for _, r := range records {
		if r.Success {
			snap.SuccessCount++
		} else {
			snap.FailureCount++
		}
		latencies = append(latencies, r.ResponseTime)
		totalLatency += r.ResponseTime

		age := now.Sub(r.Timestamp)
		if age <= time.Minute {
			snap.RequestsPerMinute++
		}
		if age <= time.Hour {
			snap.RequestsPerHour++
		}
	}

	snap.ErrorRate = float64(snap.FailureCount) / float64(n)
	snap.MeanResponseTime = totalLatency / time.Duration(n)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	snap.P95ResponseTime = latencies[percentileIndex(n, 0.95)]
	snap.P99ResponseTime = latencies[percentileIndex(n, 0.99)]

	switch {
	case snap.ErrorRate > cfg.UnhealthyErrorRate:
		snap.Health = HealthUnhealthy
	case snap.ErrorRate > cfg.DegradedErrorRate || snap.MeanResponseTime > cfg.DegradedLatency:
		snap.Health = HealthDegraded
	}

	return snap
}

func percentileIndex(n int, q float64) int {
	idx := int(float64(n) * q)
	if idx >= n {
		idx = n - 1
	}
	return idx
}

package webhook

import (
	"context"
	"time"

	"github.com/jarvis-chat/webhook-relay/pkg/models"
	"github.com/jarvis-chat/webhook-relay/pkg/monitoring"
)

// healthyLatencyThreshold is the round-trip time below which the probe
// reports healthy
const healthyLatencyThreshold = 1 * time.Second

// HealthResult is the outcome of a health probe
type HealthResult struct {
	Status    monitoring.HealthState `json:"status"`
	Latency   time.Duration          `json:"latency"`
	Error     string                 `json:"error,omitempty"`
	CheckedAt time.Time              `json:"checked_at"`
}

// HealthCheck sends a sentinel payload through the normal Send path and
// classifies the round trip. It deliberately reuses the full retry and
// circuit-breaker logic so the result reflects real delivery conditions:
// an open circuit or exhausted retries surfaces here as unhealthy.
func (c *Client) HealthCheck(ctx context.Context) HealthResult {
	start := c.clock.Now()
	_, err := c.Send(ctx, models.NewHealthCheckPayload())
	latency := c.clock.Now().Sub(start)

	result := HealthResult{
		Latency:   latency,
		CheckedAt: start,
	}
	switch {
	case err != nil:
		result.Status = monitoring.HealthUnhealthy
		result.Error = err.Error()
	case latency < healthyLatencyThreshold:
		result.Status = monitoring.HealthHealthy
	default:
		result.Status = monitoring.HealthDegraded
	}
	return result
}

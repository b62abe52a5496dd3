package monitoring

import (
	"fmt"
	"time"

	"github.com/jarvis-chat/webhook-relay/pkg/resilience"
)

// Severity ranks alert importance
type Severity string

// Alert severities
const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertRule is a boolean predicate over a MetricsSnapshot with a per-rule
// cooldown. A rule never re-fires within its cooldown window regardless
// of predicate truth.
type AlertRule struct {
	ID       string
	Name     string
	Severity Severity
	Enabled  bool
	Cooldown time.Duration

	// Condition evaluates the rule against a snapshot
	Condition func(MetricsSnapshot) bool

	// Message renders the alert text for a triggering snapshot
	Message func(MetricsSnapshot) string

	lastTriggered time.Time
}

// AlertEvent is created by rule evaluation and resolved explicitly by an
// operator action
type AlertEvent struct {
	ID         string          `json:"id"`
	RuleID     string          `json:"rule_id"`
	RuleName   string          `json:"rule_name"`
	Severity   Severity        `json:"severity"`
	Message    string          `json:"message"`
	Timestamp  time.Time       `json:"timestamp"`
	Snapshot   MetricsSnapshot `json:"snapshot"`
	Resolved   bool            `json:"resolved"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
}

const defaultCooldown = 5 * time.Minute

// DefaultRules returns the built-in alert rule set
func DefaultRules() []*AlertRule {
	return []*AlertRule{
		{
			ID:       "error-rate-critical",
			Name:     "Error rate above 10%",
			Severity: SeverityCritical,
			Enabled:  true,
			Cooldown: defaultCooldown,
			Condition: func(s MetricsSnapshot) bool {
				return s.ErrorRate > 0.10
			},
			Message: func(s MetricsSnapshot) string {
				return fmt.Sprintf("error rate %.1f%% exceeds 10%%", s.ErrorRate*100)
			},
		},
		{
			ID:       "error-rate-elevated",
			Name:     "Error rate above 5%",
			Severity: SeverityHigh,
			Enabled:  true,
			Cooldown: defaultCooldown,
			Condition: func(s MetricsSnapshot) bool {
				return s.ErrorRate > 0.05 && s.ErrorRate <= 0.10
			},
			Message: func(s MetricsSnapshot) string {
				return fmt.Sprintf("error rate %.1f%% exceeds 5%%", s.ErrorRate*100)
			},
		},
		{
			ID:       "p95-latency-high",
			Name:     "P95 latency above 1s",
			Severity: SeverityMedium,
			Enabled:  true,
			Cooldown: defaultCooldown,
			Condition: func(s MetricsSnapshot) bool {
				return s.P95ResponseTime > 1*time.Second
			},
			Message: func(s MetricsSnapshot) string {
				return fmt.Sprintf("p95 response time %s exceeds 1s", s.P95ResponseTime)
			},
		},
		{
			ID:       "p95-latency-severe",
			Name:     "P95 latency above 2s",
			Severity: SeverityHigh,
			Enabled:  true,
			Cooldown: defaultCooldown,
			Condition: func(s MetricsSnapshot) bool {
				return s.P95ResponseTime > 2*time.Second
			},
			Message: func(s MetricsSnapshot) string {
				return fmt.Sprintf("p95 response time %s exceeds 2s", s.P95ResponseTime)
			},
		},
		{
			ID:       "circuit-open",
			Name:     "Circuit breaker open",
			Severity: SeverityCritical,
			Enabled:  true,
			Cooldown: defaultCooldown,
			Condition: func(s MetricsSnapshot) bool {
				return s.CircuitState == resilience.StateOpen
			},
			Message: func(s MetricsSnapshot) string {
				return "circuit breaker is open; deliveries are being short-circuited"
			},
		},
		{
			ID:       "service-silent",
			Name:     "Service gone silent",
			Severity: SeverityMedium,
			Enabled:  true,
			Cooldown: defaultCooldown,
			Condition: func(s MetricsSnapshot) bool {
				return s.TotalRequests > 0 && s.RequestsPerMinute == 0
			},
			Message: func(s MetricsSnapshot) string {
				return "no requests observed in the last minute"
			},
		},
	}
}

package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-chat/webhook-relay/pkg/resilience"
	"github.com/jarvis-chat/webhook-relay/pkg/timeutil"
)

func newTestService(opts ...Option) (*Service, *timeutil.FakeClock) {
	clock := timeutil.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewService(DefaultConfig(), opts...), clock
}

func collectAlerts(s *Service) *[]AlertEvent {
	var events []AlertEvent
	s.Subscribe(func(ev AlertEvent) {
		events = append(events, ev)
	})
	return &events
}

func TestService_RecordAndSnapshot(t *testing.T) {
	s, _ := newTestService()

	s.Record(Outcome{ResponseTime: 10 * time.Millisecond, Success: true, StatusCode: 200})
	s.Record(Outcome{ResponseTime: 20 * time.Millisecond, Success: true, StatusCode: 200})

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.TotalRequests)
	assert.Equal(t, 2, snap.SuccessCount)
	assert.Equal(t, 0, snap.FailureCount)
	assert.Equal(t, 15*time.Millisecond, snap.MeanResponseTime)
	assert.Equal(t, 2, snap.RequestsPerMinute)
}

func TestService_RecordStampsTimestamp(t *testing.T) {
	s, clock := newTestService()

	s.Record(Outcome{Success: true})
	snap := s.Snapshot()
	assert.Equal(t, clock.Now(), snap.Timestamp)
	assert.Equal(t, 1, snap.RequestsPerMinute)
}

func TestService_EvictsOldestRecords(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewService(Config{HistorySize: 10}, WithClock(clock))

	for i := 0; i < 15; i++ {
		s.Record(Outcome{Success: i >= 5})
	}

	// The five oldest records were failures; they must be gone.
	snap := s.Snapshot()
	assert.Equal(t, 10, snap.TotalRequests)
	assert.Equal(t, 10, snap.SuccessCount)
	assert.Equal(t, 0, snap.FailureCount)
}

func TestService_CircuitStateInSnapshot(t *testing.T) {
	state := resilience.StateOpen
	s, _ := newTestService(WithCircuitState(func() resilience.State { return state }))

	snap := s.Snapshot()
	assert.Equal(t, resilience.StateOpen, snap.CircuitState)

	state = resilience.StateClosed
	snap = s.Snapshot()
	assert.Equal(t, resilience.StateClosed, snap.CircuitState)
}

func TestService_ErrorRateAlertFires(t *testing.T) {
	s, _ := newTestService()
	events := collectAlerts(s)

	s.Record(Outcome{Success: false, StatusCode: 500, Error: "boom"})

	require.Len(t, *events, 1)
	assert.Equal(t, "error-rate-critical", (*events)[0].RuleID)
	assert.Equal(t, SeverityCritical, (*events)[0].Severity)
	assert.Contains(t, (*events)[0].Message, "exceeds 10%")
}

func TestService_AlertCooldownSuppressesRefire(t *testing.T) {
	s, clock := newTestService()
	events := collectAlerts(s)

	s.Record(Outcome{Success: false})
	require.Len(t, *events, 1)

	// Condition still true, cooldown not elapsed: no refire.
	s.Record(Outcome{Success: false})
	assert.Len(t, *events, 1)

	clock.Advance(6 * time.Minute)
	s.Record(Outcome{Success: false})
	assert.Len(t, *events, 2)
}

func TestService_CircuitOpenAlert(t *testing.T) {
	s, _ := newTestService(WithCircuitState(func() resilience.State { return resilience.StateOpen }))
	events := collectAlerts(s)

	s.Record(Outcome{Success: true})

	require.Len(t, *events, 1)
	assert.Equal(t, "circuit-open", (*events)[0].RuleID)
}

func TestService_ServiceSilentAlert(t *testing.T) {
	s, clock := newTestService()
	events := collectAlerts(s)

	s.Record(Outcome{Success: true})
	require.Empty(t, *events)

	clock.Advance(2 * time.Minute)
	s.EvaluateNow()

	require.Len(t, *events, 1)
	assert.Equal(t, "service-silent", (*events)[0].RuleID)
}

func TestService_SubscriberPanicDoesNotBlockOthers(t *testing.T) {
	s, _ := newTestService()

	var received int
	s.Subscribe(func(AlertEvent) { panic("bad subscriber") })
	s.Subscribe(func(AlertEvent) { received++ })

	s.Record(Outcome{Success: false})

	assert.Equal(t, 1, received)
}

func TestService_Unsubscribe(t *testing.T) {
	s, clock := newTestService()

	var received int
	unsubscribe := s.Subscribe(func(AlertEvent) { received++ })

	s.Record(Outcome{Success: false})
	require.Equal(t, 1, received)

	unsubscribe()
	clock.Advance(6 * time.Minute)
	s.Record(Outcome{Success: false})
	assert.Equal(t, 1, received)
}

func TestService_ResolveAlertIdempotent(t *testing.T) {
	s, _ := newTestService()

	s.Record(Outcome{Success: false})
	active := s.ActiveAlerts()
	require.Len(t, active, 1)

	s.ResolveAlert(active[0].ID)
	assert.Empty(t, s.ActiveAlerts())

	// Resolving again, or resolving garbage, is a no-op.
	s.ResolveAlert(active[0].ID)
	s.ResolveAlert("no-such-alert")
	assert.Empty(t, s.ActiveAlerts())

	history := s.AlertHistory()
	require.Len(t, history, 1)
	assert.True(t, history[0].Resolved)
	assert.False(t, history[0].ResolvedAt.IsZero())
}

func TestService_AlertHistoryBounded(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewService(Config{AlertHistorySize: 3}, WithClock(clock))

	for i := 0; i < 5; i++ {
		s.Record(Outcome{Success: false})
		clock.Advance(6 * time.Minute)
	}

	assert.Len(t, s.AlertHistory(), 3)
}

func TestService_AddRule(t *testing.T) {
	s, _ := newTestService(WithRules(nil))
	events := collectAlerts(s)

	s.AddRule(&AlertRule{
		ID:       "always",
		Name:     "Always fires",
		Severity: SeverityMedium,
		Enabled:  true,
		Cooldown: time.Minute,
		Condition: func(MetricsSnapshot) bool {
			return true
		},
	})

	s.Record(Outcome{Success: true})
	require.Len(t, *events, 1)
	assert.Equal(t, "always", (*events)[0].RuleID)
	// With no Message renderer the rule name is used.
	assert.Equal(t, "Always fires", (*events)[0].Message)
}

func TestService_DisabledRuleNeverFires(t *testing.T) {
	s, _ := newTestService(WithRules([]*AlertRule{{
		ID:        "disabled",
		Enabled:   false,
		Cooldown:  time.Minute,
		Condition: func(MetricsSnapshot) bool { return true },
	}}))
	events := collectAlerts(s)

	s.Record(Outcome{Success: false})
	assert.Empty(t, *events)
}

func TestService_ElevatedErrorRateBand(t *testing.T) {
	s, _ := newTestService()
	events := collectAlerts(s)

	// 1 failure in 15 records is ~6.7%: elevated, not critical.
	for i := 0; i < 14; i++ {
		s.Record(Outcome{Success: true})
	}
	s.Record(Outcome{Success: false})

	require.Len(t, *events, 1)
	assert.Equal(t, "error-rate-elevated", (*events)[0].RuleID)
}

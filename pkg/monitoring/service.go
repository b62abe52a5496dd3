// Package monitoring maintains rolling visibility into webhook delivery
// outcomes and raises alerts when the window degrades. It is best-effort
// observability: nothing in this package ever propagates an error into
// the delivery path it instruments.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jarvis-chat/webhook-relay/pkg/observability"
	"github.com/jarvis-chat/webhook-relay/pkg/resilience"
	"github.com/jarvis-chat/webhook-relay/pkg/timeutil"
)

// Config configures the monitoring service
type Config struct {
	// HistorySize is the outcome ring capacity; oldest records are
	// evicted first
	HistorySize int

	// UnhealthyErrorRate is the error rate above which the window is
	// classified unhealthy
	UnhealthyErrorRate float64

	// DegradedErrorRate is the error rate above which the window is
	// classified degraded
	DegradedErrorRate float64

	// DegradedLatency is the mean latency above which the window is
	// classified degraded
	DegradedLatency time.Duration

	// ExportInterval enables periodic snapshot logging when positive
	ExportInterval time.Duration

	// AlertHistorySize bounds the retained alert history
	AlertHistorySize int
}

// DefaultConfig returns the documented defaults. The health thresholds
// are load-bearing for compatibility: >10% error rate is unhealthy,
// >5% error rate or >1s mean latency is degraded.
func DefaultConfig() Config {
	return Config{
		HistorySize:        1000,
		UnhealthyErrorRate: 0.10,
		DegradedErrorRate:  0.05,
		DegradedLatency:    1 * time.Second,
		AlertHistorySize:   100,
	}
}

// CircuitStateFunc reports the delivery client's current circuit state
// for inclusion in snapshots
type CircuitStateFunc func() resilience.State

// Subscriber receives alert events synchronously as they fire
type Subscriber func(AlertEvent)

// Service ingests outcome records, computes metrics on demand and
// evaluates alert rules. All shared state is owned here and exposed only
// through accessors.
type Service struct {
	cfg    Config
	clock  timeutil.Clock
	logger observability.Logger

	mu           sync.Mutex
	records      []Outcome
	rules        []*AlertRule
	active       []*AlertEvent
	history      []*AlertEvent
	subscribers  map[string]Subscriber
	circuitState CircuitStateFunc

	stopCh  chan struct{}
	started bool
}

// Option customizes Service construction
type Option func(*Service)

// WithClock substitutes the clock, for tests
func WithClock(clock timeutil.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the logger
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) { s.logger = logger.WithPrefix("monitoring") }
}

// WithCircuitState wires the delivery client's breaker state into
// snapshots
func WithCircuitState(fn CircuitStateFunc) Option {
	return func(s *Service) { s.circuitState = fn }
}

// WithRules replaces the default rule set
func WithRules(rules []*AlertRule) Option {
	return func(s *Service) { s.rules = rules }
}

// NewService creates a monitoring service with the default alert rules
func NewService(cfg Config, opts ...Option) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.UnhealthyErrorRate <= 0 {
		cfg.UnhealthyErrorRate = 0.10
	}
	if cfg.DegradedErrorRate <= 0 {
		cfg.DegradedErrorRate = 0.05
	}
	if cfg.DegradedLatency <= 0 {
		cfg.DegradedLatency = 1 * time.Second
	}
	if cfg.AlertHistorySize <= 0 {
		cfg.AlertHistorySize = 100
	}

	s := &Service{
		cfg:         cfg,
		clock:       timeutil.NewRealClock(),
		logger:      observability.NewNoopLogger(),
		rules:       DefaultRules(),
		subscribers: make(map[string]Subscriber),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends an outcome and evaluates the alert rules. Internal
// failures are logged and swallowed; Record never panics into the
// delivery path.
func (s *Service) Record(o Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Monitoring record panicked", map[string]interface{}{
				"panic": r,
			})
		}
	}()

	s.mu.Lock()
	if o.Timestamp.IsZero() {
		o.Timestamp = s.clock.Now()
	}
	s.records = append(s.records, o)
	if len(s.records) > s.cfg.HistorySize {
		s.records = s.records[len(s.records)-s.cfg.HistorySize:]
	}
	snap := s.snapshotLocked()
	events := s.evaluateRulesLocked(snap)
	subscribers := s.subscribersLocked()
	s.mu.Unlock()

	s.fanOut(events, subscribers)
}

// EvaluateNow evaluates the alert rules against the current snapshot
// without recording anything. The export loop calls this so rules over
// window emptiness can fire after traffic stops.
func (s *Service) EvaluateNow() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	events := s.evaluateRulesLocked(snap)
	subscribers := s.subscribersLocked()
	s.mu.Unlock()

	s.fanOut(events, subscribers)
}

func (s *Service) subscribersLocked() []Subscriber {
	subscribers := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subscribers = append(subscribers, sub)
	}
	return subscribers
}

// fanOut notifies subscribers outside the lock; a misbehaving subscriber
// must not abort delivery of the remaining events
func (s *Service) fanOut(events []*AlertEvent, subscribers []Subscriber) {
	for _, ev := range events {
		for _, sub := range subscribers {
			s.notify(sub, *ev)
		}
	}
}

// Snapshot computes current metrics from the record window
func (s *Service) Snapshot() MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() MetricsSnapshot {
	circuit := resilience.StateClosed
	if s.circuitState != nil {
		circuit = s.circuitState()
	}
	return computeSnapshot(s.records, s.clock.Now(), s.cfg, circuit)
}

func (s *Service) evaluateRulesLocked(snap MetricsSnapshot) []*AlertEvent {
	now := s.clock.Now()
	var fired []*AlertEvent

	for _, rule := range s.rules {
		if !rule.Enabled || rule.Condition == nil {
			continue
		}
		if !rule.lastTriggered.IsZero() && now.Sub(rule.lastTriggered) < rule.Cooldown {
			continue
		}
		if !rule.Condition(snap) {
			continue
		}

		rule.lastTriggered = now
		msg := rule.Name
		if rule.Message != nil {
			msg = rule.Message(snap)
		}
		event := &AlertEvent{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Severity:  rule.Severity,
			Message:   msg,
			Timestamp: now,
			Snapshot:  snap,
		}
		s.active = append(s.active, event)
		s.history = append(s.history, event)
		if len(s.history) > s.cfg.AlertHistorySize {
			s.history = s.history[len(s.history)-s.cfg.AlertHistorySize:]
		}
		fired = append(fired, event)

		s.logger.Warn("Alert triggered", map[string]interface{}{
			"rule":     rule.ID,
			"severity": string(rule.Severity),
			"message":  msg,
		})
	}

	return fired
}

func (s *Service) notify(sub Subscriber, event AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Alert subscriber panicked", map[string]interface{}{
				"rule":  event.RuleID,
				"panic": r,
			})
		}
	}()
	sub(event)
}

// Subscribe registers a callback invoked synchronously on each new alert
// event and returns an unsubscribe handle
func (s *Service) Subscribe(sub Subscriber) func() {
	id := uuid.NewString()

	s.mu.Lock()
	s.subscribers[id] = sub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// ResolveAlert marks an active alert resolved. Idempotent: resolving an
// already resolved or unknown id is a no-op.
func (s *Service) ResolveAlert(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.active[:0]
	for _, ev := range s.active {
		if ev.ID == id && !ev.Resolved {
			ev.Resolved = true
			ev.ResolvedAt = s.clock.Now()
			continue
		}
		remaining = append(remaining, ev)
	}
	s.active = remaining
}

// ActiveAlerts returns a copy of the unresolved alert set
func (s *Service) ActiveAlerts() []AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AlertEvent, 0, len(s.active))
	for _, ev := range s.active {
		out = append(out, *ev)
	}
	return out
}

// AlertHistory returns a copy of the bounded alert history, newest last
func (s *Service) AlertHistory() []AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AlertEvent, 0, len(s.history))
	for _, ev := range s.history {
		out = append(out, *ev)
	}
	return out
}

// AddRule registers an additional alert rule
func (s *Service) AddRule(rule *AlertRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
}

// Start launches the periodic snapshot export when configured. It is a
// no-op when ExportInterval is zero.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.cfg.ExportInterval <= 0 {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	go s.exportLoop(ctx, stopCh)
}

// Stop cancels the export loop
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		close(s.stopCh)
		s.started = false
	}
}

func (s *Service) exportLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.EvaluateNow()
			snap := s.Snapshot()
			s.logger.Info("Metrics snapshot", map[string]interface{}{
				"total":      snap.TotalRequests,
				"error_rate": snap.ErrorRate,
				"mean":       snap.MeanResponseTime,
				"p95":        snap.P95ResponseTime,
				"health":     string(snap.Health),
			})
		}
	}
}

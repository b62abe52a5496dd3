package verification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"

	"github.com/jarvis-chat/webhook-relay/pkg/models"
	"github.com/jarvis-chat/webhook-relay/pkg/observability"
	"github.com/jarvis-chat/webhook-relay/pkg/timeutil"
)

// Doer is the transport contract; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the verification service
type Config struct {
	// VerifyTimeout bounds the delivery-confirmation phase
	VerifyTimeout time.Duration

	// PollInterval is the fixed spacing between deployment status polls
	PollInterval time.Duration

	// DeploymentTimeout bounds the polling phase; expiry is reported as
	// deployment_timeout, not failure
	DeploymentTimeout time.Duration

	// ActivityWindow is how recent the remote's last request must be for
	// the liveness fallback to infer delivery
	ActivityWindow time.Duration

	// ResultTTL is how long completed results are retained
	ResultTTL time.Duration

	// ResultCacheSize bounds the completed-result cache
	ResultCacheSize int

	// CleanupInterval is how often stuck pending verifications are swept
	CleanupInterval time.Duration

	// DeploymentStatusURL overrides the derived <base>/deployments URL
	DeploymentStatusURL string
}

// DefaultConfig returns the documented defaults
func DefaultConfig() Config {
	return Config{
		VerifyTimeout:     30 * time.Second,
		PollInterval:      5 * time.Second,
		DeploymentTimeout: 5 * time.Minute,
		ActivityWindow:    60 * time.Second,
		ResultTTL:         1 * time.Hour,
		ResultCacheSize:   512,
		CleanupInterval:   1 * time.Minute,
	}
}

type job struct {
	req       Request
	startedAt time.Time
	cancel    context.CancelFunc
}

// Service runs verifications asynchronously. StartVerification returns
// immediately; completion is observed via OnComplete callbacks or by
// polling GetResult. Completed results are retained for ResultTTL and
// then discarded.
type Service struct {
	cfg        Config
	httpClient Doer
	clock      timeutil.Clock
	logger     observability.Logger
	tracer     observability.Tracer
	breaker    *gobreaker.CircuitBreaker

	mu        sync.Mutex
	pending   map[string]*job
	results   *expirable.LRU[string, Result]
	callbacks map[string][]func(Result)
	stopCh    chan struct{}
	started   bool

	wg sync.WaitGroup
}

// Option customizes Service construction
type Option func(*Service)

// WithHTTPClient substitutes the transport
func WithHTTPClient(d Doer) Option {
	return func(s *Service) { s.httpClient = d }
}

// WithClock substitutes the clock, for tests
func WithClock(clock timeutil.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the logger
func WithLogger(logger observability.Logger) Option {
	return func(s *Service) { s.logger = logger.WithPrefix("verification") }
}

// WithTracer sets the tracer
func WithTracer(tracer observability.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// NewService creates a verification service. Call Start to enable the
// stale-verification sweep and Stop to release all background work.
func NewService(cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = def.VerifyTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.DeploymentTimeout <= 0 {
		cfg.DeploymentTimeout = def.DeploymentTimeout
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = def.ActivityWindow
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if cfg.ResultCacheSize <= 0 {
		cfg.ResultCacheSize = def.ResultCacheSize
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	s := &Service{
		cfg:        cfg,
		httpClient: &http.Client{},
		clock:      timeutil.NewRealClock(),
		logger:     observability.NewNoopLogger(),
		tracer:     observability.NewNoopTracer(),
		pending:    make(map[string]*job),
		results:    expirable.NewLRU[string, Result](cfg.ResultCacheSize, nil, cfg.ResultTTL),
		callbacks:  make(map[string][]func(Result)),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "delivery-verification",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn("Verification breaker state change", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
	return s
}

// Start launches the stale-verification sweep
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.cleanupLoop()
}

// Stop cancels all in-flight verifications and background work and waits
// for them to drain
func (s *Service) Stop() {
	s.mu.Lock()
	if s.started {
		close(s.stopCh)
		s.started = false
	}
	for _, j := range s.pending {
		j.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// StartVerification registers the request and schedules the check
// asynchronously, returning the verification id immediately
func (s *Service) StartVerification(req Request) (string, error) {
	if req.RequestID == "" {
		return "", errors.New("request id is required")
	}
	if req.EndpointURL == "" {
		return "", errors.New("endpoint URL is required")
	}
	if req.DispatchedAt.IsZero() {
		req.DispatchedAt = s.clock.Now()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.pending[id] = &job{req: req, startedAt: s.clock.Now(), cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, id, req)

	s.logger.Debug("Verification scheduled", map[string]interface{}{
		"verification_id": id,
		"request_id":      req.RequestID,
	})
	return id, nil
}

// GetResult returns the current state of a verification. The boolean is
// false for ids that are unknown or whose results have expired.
func (s *Service) GetResult(id string) (Result, bool) {
	if res, ok := s.results.Get(id); ok {
		return res, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.pending[id]; ok {
		return Result{
			VerificationID: id,
			RequestID:      j.req.RequestID,
			Status:         StatusPending,
		}, true
	}
	return Result{}, false
}

// OnComplete registers a callback fired when the verification finishes.
// If the verification already completed the callback is invoked
// immediately.
func (s *Service) OnComplete(id string, fn func(Result)) error {
	if res, ok := s.results.Get(id); ok {
		s.invoke(fn, res)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return fmt.Errorf("unknown verification id %s", id)
	}
	s.callbacks[id] = append(s.callbacks[id], fn)
	return nil
}

func (s *Service) run(ctx context.Context, id string, req Request) {
	defer s.wg.Done()

	ctx, span := s.tracer.StartSpan(ctx, "verification.run")
	defer span.End()
	span.SetAttribute("verification.id", id)
	span.SetAttribute("verification.request_id", req.RequestID)

	res := Result{
		VerificationID: id,
		RequestID:      req.RequestID,
		Status:         StatusPending,
	}
	base := deriveBaseURL(req.EndpointURL)

	deliveryCtx, cancel := context.WithTimeout(ctx, s.cfg.VerifyTimeout)
	start := s.clock.Now()
	check := s.checkDelivery(deliveryCtx, base, req)
	cancel()
	res.DeliveryElapsed = s.clock.Now().Sub(start)

	res.PayloadDelivered = check.payloadDelivered
	res.ResponseReceived = check.responseReceived
	res.ResponseValid = check.responseValid
	res.Confidence = check.confidence

	if !check.confirmed {
		res.Status = StatusDeliveryFailed
		res.Error = check.err
		s.complete(id, res)
		return
	}

	res.DeliveryConfirmed = true
	res.Status = StatusDelivered

	if req.ExpectedDeploymentID != "" {
		res.Status = StatusPolling
		s.pollDeployment(ctx, base, req.ExpectedDeploymentID, &res)
	}

	res.Verified = res.DeliveryConfirmed && (req.ExpectedDeploymentID == "" || res.DeploymentCompleted)
	s.complete(id, res)
}

// errDeploymentRunning signals the poll loop to keep going
var errDeploymentRunning = errors.New("deployment has not reached a terminal state")

// pollDeployment polls the status endpoint at a fixed interval until the
// deployment reaches a terminal state or the deployment timeout elapses.
// Polling stops on the first terminal observation and responds to
// cancellation within one interval.
func (s *Service) pollDeployment(ctx context.Context, base, deploymentID string, res *Result) {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.DeploymentTimeout)
	defer cancel()

	start := s.clock.Now()
	var last *models.DeploymentStatus

	bo := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.PollInterval), pollCtx)
	err := backoff.Retry(func() error {
		st, err := s.fetchDeploymentStatus(pollCtx, base, deploymentID)
		if err != nil {
			return err
		}
		if st == nil {
			return errDeploymentRunning
		}
		last = st
		if !st.Status.Terminal() {
			return errDeploymentRunning
		}
		return nil
	}, bo)

	res.DeploymentElapsed = s.clock.Now().Sub(start)
	if last != nil {
		res.DeploymentTriggered = true
		res.DeploymentStarted = last.Status != models.DeploymentPending
	}

	if err != nil {
		if pollCtx.Err() != nil {
			res.Status = StatusDeploymentTimeout
			res.Error = fmt.Sprintf("deployment %s did not reach a terminal state within %s", deploymentID, s.cfg.DeploymentTimeout)
		} else {
			res.Status = StatusDeploymentFailed
			res.Error = fmt.Sprintf("deployment status polling failed: %v", err)
		}
		return
	}

	switch last.Status {
	case models.DeploymentCompleted:
		res.DeploymentCompleted = true
		res.Status = StatusDeploymentCompleted
	default:
		res.Status = StatusDeploymentFailed
		res.Error = fmt.Sprintf("deployment %s concluded with status %s: %s", deploymentID, last.Status, last.Conclusion)
	}
}

func (s *Service) complete(id string, res Result) {
	res.CompletedAt = s.clock.Now()

	s.mu.Lock()
	// First completion wins: a force-failed verification must not be
	// overwritten when its cancelled goroutine unwinds.
	if _, pending := s.pending[id]; !pending {
		if _, done := s.results.Get(id); done {
			s.mu.Unlock()
			return
		}
	}
	delete(s.pending, id)
	cbs := s.callbacks[id]
	delete(s.callbacks, id)
	s.results.Add(id, res)
	s.mu.Unlock()

	s.logger.Info("Verification completed", map[string]interface{}{
		"verification_id": id,
		"status":          string(res.Status),
		"verified":        res.Verified,
		"confidence":      string(res.Confidence),
	})

	for _, cb := range cbs {
		s.invoke(cb, res)
	}
}

func (s *Service) invoke(fn func(Result), res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Verification callback panicked", map[string]interface{}{
				"verification_id": res.VerificationID,
				"panic":           r,
			})
		}
	}()
	fn(res)
}

// staleAfter is the age past which a pending verification is considered
// stuck. The full budget of a verification is the delivery phase plus
// the polling phase; anything pending for twice that is force-failed.
func (s *Service) staleAfter() time.Duration {
	return 2 * (s.cfg.VerifyTimeout + s.cfg.DeploymentTimeout)
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepStale()
		}
	}
}

// sweepStale force-completes pending verifications that outlived the
// stale threshold so abandoned work cannot accumulate
func (s *Service) sweepStale() {
	now := s.clock.Now()

	s.mu.Lock()
	var stale []string
	for id, j := range s.pending {
		if now.Sub(j.startedAt) > s.staleAfter() {
			stale = append(stale, id)
			j.cancel()
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.mu.Lock()
		j, ok := s.pending[id]
		s.mu.Unlock()
		if !ok {
			continue
		}
		s.logger.Warn("Force-completing stale verification", map[string]interface{}{
			"verification_id": id,
			"age":             now.Sub(j.startedAt).String(),
		})
		s.complete(id, Result{
			VerificationID: id,
			RequestID:      j.req.RequestID,
			Status:         StatusDeliveryFailed,
			Error:          "verification exceeded its time budget and was force-completed",
		})
	}
}

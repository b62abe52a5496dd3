// Package webhook implements the resilient delivery client: payload
// validation, a consecutive-failure circuit breaker, bounded exponential
// backoff with jitter, per-attempt timeouts chained to the caller's
// context, and outcome recording into the monitoring service.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/jarvis-chat/webhook-relay/pkg/models"
	"github.com/jarvis-chat/webhook-relay/pkg/monitoring"
	"github.com/jarvis-chat/webhook-relay/pkg/observability"
	"github.com/jarvis-chat/webhook-relay/pkg/resilience"
	"github.com/jarvis-chat/webhook-relay/pkg/timeutil"
)

// ClientVersion is sent with every payload so the remote can correlate
// behavior with client releases
const ClientVersion = "1.2.0"

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 1 << 20

// Doer is the transport contract; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OutcomeRecorder receives one outcome per completed attempt. The
// monitoring service satisfies it; a nil recorder disables recording.
type OutcomeRecorder interface {
	Record(o monitoring.Outcome)
}

// Config configures the webhook client
type Config struct {
	// EndpointURL is the automation endpoint; required
	EndpointURL string

	// AuthToken, when set, is sent as a bearer token
	AuthToken string

	// RequestTimeout bounds each individual attempt
	RequestTimeout time.Duration

	// Retry governs attempt spacing within a single Send call
	Retry resilience.RetryPolicy

	// Breaker governs the shared circuit breaker
	Breaker resilience.BreakerConfig

	// RateLimit, when non-nil, bounds outbound delivery rate
	RateLimit *resilience.RateLimiterConfig
}

// DefaultConfig returns the documented defaults: 15s request timeout,
// 3 attempts, failure threshold 5, recovery timeout 30s.
func DefaultConfig(endpointURL string) Config {
	return Config{
		EndpointURL:    endpointURL,
		RequestTimeout: 15 * time.Second,
		Retry:          resilience.DefaultRetryPolicy(),
		Breaker:        resilience.DefaultBreakerConfig(),
	}
}

// Client delivers payloads to the automation endpoint. A single Client
// owns one circuit breaker; independent Send calls share it.
type Client struct {
	cfg        Config
	httpClient Doer
	breaker    *resilience.CircuitBreaker
	limiter    *resilience.RateLimiter
	recorder   OutcomeRecorder
	clock      timeutil.Clock
	logger     observability.Logger
	tracer     observability.Tracer
}

// Option customizes Client construction
type Option func(*Client)

// WithHTTPClient substitutes the transport
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithRecorder wires outcome recording into a monitoring service
func WithRecorder(r OutcomeRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithClock substitutes the clock, for tests
func WithClock(clock timeutil.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the logger
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) { c.logger = logger.WithPrefix("webhook-client") }
}

// WithTracer sets the tracer
func WithTracer(tracer observability.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// New creates a webhook client. The endpoint URL is validated here so a
// misconfigured client fails at construction, not on first send.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.EndpointURL == "" {
		return nil, NewValidationError("endpoint URL is required", nil)
	}
	if _, err := url.ParseRequestURI(cfg.EndpointURL); err != nil {
		return nil, NewValidationError("endpoint URL is not a valid URL", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryPolicy()
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		clock:      timeutil.NewRealClock(),
		logger:     observability.NewNoopLogger(),
		tracer:     observability.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = resilience.NewCircuitBreaker(cfg.Breaker, c.clock, c.logger)
	if cfg.RateLimit != nil {
		c.limiter = resilience.NewRateLimiter(*cfg.RateLimit, c.logger)
	}
	return c, nil
}

// CircuitState exposes the breaker state for monitoring snapshots
func (c *Client) CircuitState() resilience.State {
	return c.breaker.State()
}

// Send delivers one payload within the caller's cancellation scope. It
// returns either a validated WebhookResponse or a typed *Error. Every
// completed attempt produces exactly one outcome record; short-circuited
// and rejected calls are recorded with the Rejected marker.
func (c *Client) Send(ctx context.Context, payload models.WebhookPayload) (*models.WebhookResponse, error) {
	ctx, span := c.tracer.StartSpan(ctx, "webhook.send")
	defer span.End()

	if payload.RequestID == "" {
		payload.RequestID = uuid.NewString()
	}
	span.SetAttribute("webhook.request_id", payload.RequestID)

	if err := payload.Validate(); err != nil {
		verr := NewValidationError("payload failed schema validation", err)
		c.record(monitoring.Outcome{Success: false, Error: verr.Error(), Rejected: true})
		span.RecordError(verr)
		return nil, verr
	}

	if err := c.breaker.Allow(); err != nil {
		oerr := NewCircuitOpenError(err)
		c.record(monitoring.Outcome{
			Success:    false,
			StatusCode: http.StatusServiceUnavailable,
			Error:      oerr.Message,
			Rejected:   true,
		})
		span.RecordError(oerr)
		return nil, oerr
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			terr := NewTimeoutError("cancelled while waiting for rate limit", err)
			c.record(monitoring.Outcome{Success: false, Error: terr.Error(), Rejected: true})
			span.RecordError(terr)
			return nil, terr
		}
	}

	body, err := encodeBody(payload)
	if err != nil {
		verr := NewValidationError("encode payload", err)
		c.record(monitoring.Outcome{Success: false, Error: verr.Error(), Rejected: true})
		span.RecordError(verr)
		return nil, verr
	}

	var lastErr *Error
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		resp, attemptErr := c.attempt(ctx, body)
		if attemptErr == nil {
			c.breaker.RecordSuccess()
			span.SetAttribute("webhook.attempts", attempt)
			return resp, nil
		}
		lastErr = attemptErr

		if !attemptErr.Retryable || attempt == c.cfg.Retry.MaxAttempts || ctx.Err() != nil {
			break
		}

		delay := c.cfg.Retry.Delay(attempt)
		c.logger.Warn("Delivery attempt failed, retrying", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": c.cfg.Retry.MaxAttempts,
			"delay":        delay.String(),
			"error":        attemptErr.Error(),
		})
		if err := timeutil.Sleep(ctx, c.clock, delay); err != nil {
			lastErr = NewTimeoutError("delivery cancelled during backoff", err)
			break
		}
	}

	c.breaker.RecordFailure()
	span.RecordError(lastErr)
	return nil, lastErr
}

// attempt issues one transport call under the per-attempt timeout and
// records its outcome
func (c *Client) attempt(ctx context.Context, body []byte) (*models.WebhookResponse, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	start := c.clock.Now()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.EndpointURL, bytes.NewReader(body))
	if err != nil {
		werr := NewValidationError("build request", err)
		c.record(monitoring.Outcome{Success: false, Error: werr.Error(), Rejected: true})
		return nil, werr
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	httpResp, err := c.httpClient.Do(req)
	elapsed := c.clock.Now().Sub(start)
	if err != nil {
		werr := classifyTransportError(err)
		c.record(monitoring.Outcome{ResponseTime: elapsed, Success: false, Error: werr.Error()})
		return nil, werr
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		werr := NewNetworkError("read response body", err)
		c.record(monitoring.Outcome{ResponseTime: elapsed, StatusCode: httpResp.StatusCode, Success: false, Error: werr.Error()})
		return nil, werr
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		werr := NewHTTPError(httpResp.StatusCode, http.StatusText(httpResp.StatusCode))
		c.record(monitoring.Outcome{ResponseTime: elapsed, StatusCode: httpResp.StatusCode, Success: false, Error: werr.Error()})
		return nil, werr
	}

	resp, werr := decodeResponse(data)
	if werr != nil {
		c.record(monitoring.Outcome{ResponseTime: elapsed, StatusCode: httpResp.StatusCode, Success: false, Error: werr.Error()})
		return nil, werr
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "remote rejected the request"
		}
		werr := NewRejectionError(msg)
		c.record(monitoring.Outcome{ResponseTime: elapsed, StatusCode: httpResp.StatusCode, Success: false, Error: werr.Error()})
		return nil, werr
	}

	c.record(monitoring.Outcome{ResponseTime: elapsed, StatusCode: httpResp.StatusCode, Success: true})
	return resp, nil
}

func (c *Client) record(o monitoring.Outcome) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(o)
}

// encodeBody wraps the payload with the client version
func encodeBody(payload models.WebhookPayload) ([]byte, error) {
	return json.Marshal(struct {
		models.WebhookPayload
		ClientVersion string `json:"clientVersion"`
	}{payload, ClientVersion})
}

// decodeResponse enforces the typed response contract: the body must be
// JSON, must carry a boolean success, and must carry response text when
// success is true
func decodeResponse(data []byte) (*models.WebhookResponse, *Error) {
	var wire struct {
		Success          *bool  `json:"success"`
		Response         string `json:"response"`
		Error            string `json:"error"`
		RequestID        string `json:"requestId"`
		ProcessingTimeMS int64  `json:"processingTime"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewMalformedResponseError("response body is not valid JSON", err)
	}
	if wire.Success == nil {
		return nil, NewMalformedResponseError("response is missing required field success", nil)
	}

	resp := &models.WebhookResponse{
		Success:          *wire.Success,
		Response:         wire.Response,
		Error:            wire.Error,
		RequestID:        wire.RequestID,
		ProcessingTimeMS: wire.ProcessingTimeMS,
	}
	if err := resp.Validate(); err != nil {
		return nil, NewMalformedResponseError("response failed contract validation", err)
	}
	return resp, nil
}

// classifyTransportError maps transport failures into the taxonomy
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError("request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewTimeoutError("request cancelled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("request timed out", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return NewNetworkError("connection failed", err)
	}
	return NewUnknownError("transport call failed", err)
}

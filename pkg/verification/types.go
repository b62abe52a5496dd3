// Package verification provides out-of-band confirmation that a
// dispatched payload was processed by the remote side and, when
// expected, that the downstream deployment workflow reached a terminal
// state. It informs auditability only; the primary success decision
// belongs to the webhook client.
package verification

import (
	"time"
)

// Status tracks a verification request through its state machine:
// pending -> delivered|delivery_failed, then for delivered requests with
// an expected deployment: polling -> deployment_completed|
// deployment_failed|deployment_timeout.
type Status string

// Verification statuses
const (
	StatusPending             Status = "pending"
	StatusDelivered           Status = "delivered"
	StatusDeliveryFailed      Status = "delivery_failed"
	StatusPolling             Status = "polling"
	StatusDeploymentCompleted Status = "deployment_completed"
	StatusDeploymentFailed    Status = "deployment_failed"
	StatusDeploymentTimeout   Status = "deployment_timeout"
)

// Confidence qualifies how a delivery was confirmed. The fallback path
// infers delivery from generic recent server activity, not proof that
// the specific payload was processed; treat it as a strictly weaker
// signal.
type Confidence string

// Confidence levels
const (
	ConfidenceConfirmed Confidence = "confirmed"
	ConfidenceFallback  Confidence = "fallback-inferred"
)

// Request identifies a dispatched webhook call to verify
type Request struct {
	// RequestID is the id the payload was dispatched with
	RequestID string

	// EndpointURL is the webhook endpoint the payload was sent to; the
	// verification and health endpoints are derived from it
	EndpointURL string

	// DispatchedAt is when the original call was made
	DispatchedAt time.Time

	// ExpectedDeploymentID, when set, names the workflow whose completion
	// must also be confirmed
	ExpectedDeploymentID string
}

// Result is the terminal outcome of a verification
type Result struct {
	VerificationID string     `json:"verification_id"`
	RequestID      string     `json:"request_id"`
	Status         Status     `json:"status"`

	// Verified is true iff delivery was confirmed and either no
	// deployment was expected or the deployment completed
	Verified bool `json:"verified"`

	DeliveryConfirmed   bool       `json:"delivery_confirmed"`
	Confidence          Confidence `json:"confidence,omitempty"`
	DeploymentTriggered bool       `json:"deployment_triggered"`

	// Per-phase flags
	PayloadDelivered    bool `json:"payload_delivered"`
	ResponseReceived    bool `json:"response_received"`
	ResponseValid       bool `json:"response_valid"`
	DeploymentStarted   bool `json:"deployment_started"`
	DeploymentCompleted bool `json:"deployment_completed"`

	DeliveryElapsed   time.Duration `json:"delivery_elapsed"`
	DeploymentElapsed time.Duration `json:"deployment_elapsed"`

	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

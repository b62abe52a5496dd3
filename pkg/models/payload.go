// Package models defines the wire types exchanged with the automation
// endpoint: the outbound webhook payload, the typed response contract,
// and deployment status records returned by the status endpoint.
package models

import (
	"time"

	"github.com/google/uuid"
)

// PayloadType identifies the kind of message being forwarded
type PayloadType string

// Payload types accepted by the automation endpoint
const (
	PayloadTypeMessage     PayloadType = "message"
	PayloadTypeHealthCheck PayloadType = "health_check"
)

// MaxMessageLength is the upper bound on message text accepted for delivery
const MaxMessageLength = 10000

// WebhookPayload is the unit of delivery to the automation endpoint.
// Construct via NewMessagePayload or NewHealthCheckPayload and treat as
// immutable afterwards; Validate is called by the client before any
// network activity.
type WebhookPayload struct {
	Type          PayloadType            `json:"type"`
	Message       string                 `json:"message"`
	SessionID     string                 `json:"sessionId"`
	Source        string                 `json:"source"`
	ChatID        int64                  `json:"chatId"`
	Timestamp     string                 `json:"timestamp"`
	RequestID     string                 `json:"requestId,omitempty"`
	ToolSelection []string               `json:"toolSelection,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessagePayload builds a payload for a user message, stamping the
// timestamp and generating a request id. The result passes Validate for
// any message within length bounds and non-empty identifiers.
func NewMessagePayload(message, sessionID, source string, chatID int64) WebhookPayload {
	return WebhookPayload{
		Type:      PayloadTypeMessage,
		Message:   message,
		SessionID: sessionID,
		Source:    source,
		ChatID:    chatID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: uuid.NewString(),
	}
}

// NewHealthCheckPayload builds the sentinel payload used by the client's
// health probe
func NewHealthCheckPayload() WebhookPayload {
	p := NewMessagePayload("health check ping", "health-check", "health", 1)
	p.Type = PayloadTypeHealthCheck
	return p
}

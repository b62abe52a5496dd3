package models

import "fmt"

// WebhookResponse is the typed contract for the automation endpoint's
// reply. A structurally valid response always carries Success; Response
// text is required when Success is true.
type WebhookResponse struct {
	Success          bool   `json:"success"`
	Response         string `json:"response,omitempty"`
	Error            string `json:"error,omitempty"`
	RequestID        string `json:"requestId,omitempty"`
	ProcessingTimeMS int64  `json:"processingTime,omitempty"`
}

// Validate checks the structural contract of a decoded response
func (r *WebhookResponse) Validate() error {
	if r.Success && r.Response == "" {
		return fmt.Errorf("response text is required when success is true")
	}
	return nil
}

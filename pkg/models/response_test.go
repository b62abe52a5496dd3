package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookResponse_Validate(t *testing.T) {
	ok := &WebhookResponse{Success: true, Response: "done"}
	assert.NoError(t, ok.Validate())

	missing := &WebhookResponse{Success: true}
	assert.Error(t, missing.Validate())

	// A failure response does not need response text.
	failed := &WebhookResponse{Success: false, Error: "rejected"}
	assert.NoError(t, failed.Validate())
}

func TestDeploymentState_Terminal(t *testing.T) {
	assert.False(t, DeploymentPending.Terminal())
	assert.False(t, DeploymentInProgress.Terminal())
	assert.False(t, DeploymentUnknown.Terminal())
	assert.True(t, DeploymentCompleted.Terminal())
	assert.True(t, DeploymentFailed.Terminal())
}

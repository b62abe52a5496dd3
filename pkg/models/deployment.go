package models

import "time"

// DeploymentState is the lifecycle status of a downstream workflow run
type DeploymentState string

// Deployment states reported by the status endpoint
const (
	DeploymentPending    DeploymentState = "pending"
	DeploymentInProgress DeploymentState = "in_progress"
	DeploymentCompleted  DeploymentState = "completed"
	DeploymentFailed     DeploymentState = "failed"
	DeploymentUnknown    DeploymentState = "unknown"
)

// Terminal reports whether the state ends polling
func (s DeploymentState) Terminal() bool {
	return s == DeploymentCompleted || s == DeploymentFailed
}

// DeploymentStatus is one record from the deployment status endpoint
type DeploymentStatus struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflowId"`
	Status         DeploymentState `json:"status"`
	StartTime      *time.Time      `json:"startTime,omitempty"`
	CompletionTime *time.Time      `json:"completionTime,omitempty"`
	Conclusion     string          `json:"conclusion,omitempty"`
}

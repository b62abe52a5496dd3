// Command mockserver implements the automation endpoint contract for
// local resilience testing: the webhook itself, the verification and
// health endpoints, and a deployment status feed that advances toward
// completion on each poll. Failure injection is controlled with
// MOCK_FAIL_COUNT (fail the first N webhook calls with 500) and
// MOCK_LATENCY (added to every webhook call).
package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/jarvis-chat/webhook-relay/pkg/models"
	"github.com/jarvis-chat/webhook-relay/pkg/observability"
)

type mockState struct {
	mu              sync.Mutex
	processed       map[string]time.Time
	lastRequestTime time.Time
	failuresLeft    int
	latency         time.Duration
	deployPolls     map[string]int
}

func main() {
	_ = godotenv.Load()

	logger := observability.NewStandardLogger("mockserver")

	state := &mockState{
		processed:   make(map[string]time.Time),
		deployPolls: make(map[string]int),
	}
	if v := os.Getenv("MOCK_FAIL_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			state.failuresLeft = n
		}
	}
	if v := os.Getenv("MOCK_LATENCY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			state.latency = d
		}
	}

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "8091"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/webhook", state.handleWebhook)
	router.POST("/verify", state.handleVerify)
	router.GET("/health", state.handleHealth)
	router.GET("/deployments", state.handleDeployments)

	logger.Info("Mock automation endpoint listening", map[string]interface{}{
		"port":       port,
		"fail_count": state.failuresLeft,
		"latency":    state.latency.String(),
	})
	if err := router.Run(":" + port); err != nil {
		logger.Error("Server exited", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func (s *mockState) handleWebhook(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid payload: " + err.Error(),
		})
		return
	}

	s.mu.Lock()
	s.lastRequestTime = time.Now()
	inject := s.failuresLeft > 0
	if inject {
		s.failuresLeft--
	}
	latency := s.latency
	if !inject {
		s.processed[payload.RequestID] = time.Now()
	}
	s.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	if inject {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "injected failure"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"response":       fmt.Sprintf("echo: %s", payload.Message),
		"requestId":      payload.RequestID,
		"processingTime": latency.Milliseconds(),
	})
}

func (s *mockState) handleVerify(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	_, ok := s.processed[req.RequestID]
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"processed": ok,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"requestId": req.RequestID,
	})
}

func (s *mockState) handleHealth(c *gin.Context) {
	s.mu.Lock()
	last := s.lastRequestTime
	s.mu.Unlock()

	resp := gin.H{"status": "ok"}
	if !last.IsZero() {
		resp["metrics"] = gin.H{"lastRequestTime": last.UTC().Format(time.RFC3339)}
	}
	c.JSON(http.StatusOK, resp)
}

// handleDeployments advances each requested deployment one step per
// poll: pending, then in_progress, then completed
func (s *mockState) handleDeployments(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		id = "deploy-1"
	}

	s.mu.Lock()
	s.deployPolls[id]++
	polls := s.deployPolls[id]
	s.mu.Unlock()

	status := models.DeploymentPending
	conclusion := ""
	switch {
	case polls >= 3:
		status = models.DeploymentCompleted
		conclusion = "success"
	case polls == 2:
		status = models.DeploymentInProgress
	}

	now := time.Now().UTC()
	dep := models.DeploymentStatus{
		ID:         id,
		WorkflowID: id,
		Status:     status,
		Conclusion: conclusion,
	}
	if polls >= 2 {
		start := now.Add(-time.Minute)
		dep.StartTime = &start
	}
	if status == models.DeploymentCompleted {
		dep.CompletionTime = &now
	}

	c.JSON(http.StatusOK, []models.DeploymentStatus{dep})
}

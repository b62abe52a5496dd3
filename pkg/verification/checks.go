package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jarvis-chat/webhook-relay/pkg/models"
)

const maxResponseBytes = 1 << 20

// deliveryCheck is the outcome of the delivery-confirmation phase
type deliveryCheck struct {
	confirmed        bool
	confidence       Confidence
	payloadDelivered bool
	responseReceived bool
	responseValid    bool
	err              string
}

// verifyResponse is the contract of the /verify endpoint
type verifyResponse struct {
	Processed bool   `json:"processed"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}

// deriveBaseURL strips a trailing /webhook segment so the verification,
// health and deployment endpoints can be derived from the configured
// webhook URL
func deriveBaseURL(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/")
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/webhook")
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

// checkDelivery confirms that the remote processed the payload. The
// primary signal is the /verify endpoint; when that call fails at the
// transport level the check falls back to the /health liveness probe and
// infers delivery from recent activity. The fallback is best-effort and
// is surfaced with fallback-inferred confidence.
func (s *Service) checkDelivery(ctx context.Context, base string, req Request) deliveryCheck {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.callVerifyEndpoint(ctx, base, req)
	})
	if err == nil {
		vr := out.(*verifyResponse)
		check := deliveryCheck{
			confirmed:        vr.Processed,
			confidence:       ConfidenceConfirmed,
			payloadDelivered: vr.Processed,
			responseReceived: true,
			responseValid:    true,
		}
		if !vr.Processed {
			check.confidence = ""
			check.err = "remote reports payload was not processed"
		}
		return check
	}

	s.logger.Warn("Verification endpoint unavailable, falling back to liveness probe", map[string]interface{}{
		"request_id": req.RequestID,
		"error":      err.Error(),
	})

	active, ferr := s.probeRecentActivity(ctx, base)
	if ferr != nil {
		return deliveryCheck{err: fmt.Sprintf("verify call failed (%v) and liveness probe failed (%v)", err, ferr)}
	}
	if active {
		return deliveryCheck{
			confirmed:        true,
			confidence:       ConfidenceFallback,
			payloadDelivered: true,
		}
	}
	return deliveryCheck{err: fmt.Sprintf("verify call failed (%v) and remote shows no recent activity", err)}
}

// callVerifyEndpoint asks the remote whether the original request id was
// processed
func (s *Service) callVerifyEndpoint(ctx context.Context, base string, req Request) (*verifyResponse, error) {
	body, err := json.Marshal(map[string]string{
		"requestId": req.RequestID,
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("verify endpoint returned status %d", httpResp.StatusCode)
	}

	var vr verifyResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	return &vr, nil
}

// probeRecentActivity reports whether the remote's health endpoint shows
// a request within the activity window
func (s *Service) probeRecentActivity(ctx context.Context, base string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return false, err
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return false, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return false, fmt.Errorf("health endpoint returned status %d", httpResp.StatusCode)
	}

	var hr struct {
		Status  string `json:"status"`
		Metrics *struct {
			LastRequestTime string `json:"lastRequestTime"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(data, &hr); err != nil {
		return false, fmt.Errorf("decode health response: %w", err)
	}
	if hr.Metrics == nil || hr.Metrics.LastRequestTime == "" {
		return false, nil
	}

	last, err := time.Parse(time.RFC3339, hr.Metrics.LastRequestTime)
	if err != nil {
		return false, fmt.Errorf("parse lastRequestTime: %w", err)
	}
	return s.clock.Now().Sub(last) <= s.cfg.ActivityWindow, nil
}

// fetchDeploymentStatus looks up the expected deployment in the status
// endpoint's record list. A nil result means the deployment has not
// appeared yet.
func (s *Service) fetchDeploymentStatus(ctx context.Context, base, deploymentID string) (*models.DeploymentStatus, error) {
	statusURL := s.cfg.DeploymentStatusURL
	if statusURL == "" {
		statusURL = base + "/deployments"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("deployment status endpoint returned status %d", httpResp.StatusCode)
	}

	var deployments []models.DeploymentStatus
	if err := json.Unmarshal(data, &deployments); err != nil {
		return nil, fmt.Errorf("decode deployment list: %w", err)
	}

	for i := range deployments {
		if deployments[i].ID == deploymentID || deployments[i].WorkflowID == deploymentID {
			return &deployments[i], nil
		}
	}
	return nil, nil
}

// Package statusreport pushes deployment status updates to an external
// deployment-status API (a GitHub-deployments-style endpoint). Reporting
// is best-effort by contract: a failed report never aborts a deployment.
package statusreport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
)

// Update is one deployment status notification.
type Update struct {
	// Status is one of "pending", "success" or "failure".
	Status string `json:"status"`

	Environment string `json:"environment"`
	Description string `json:"description"`

	URL        string `json:"url,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`

	BuildTimeMS  int64  `json:"build_time_ms,omitempty"`
	DeployTimeMS int64  `json:"deploy_time_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Statuses accepted by the reporting API.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Client reports deployment status over HTTP.
type Client struct {
	endpoint   string
	token      string
	httpClient *retryablehttp.Client
	logger     hclog.Logger
}

// NewClient creates a status reporter for the given endpoint. The token,
// when non-empty, is sent as a bearer credential.
func NewClient(endpoint, token string, logger hclog.Logger) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("status endpoint cannot be empty")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = 15 * time.Second

	return &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: retryClient,
		logger:     logger.Named("statusreport"),
	}, nil
}

// Notify posts the update. Errors are returned so the caller can log them,
// but callers must treat them as warnings.
func (c *Client) Notify(ctx context.Context, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return fmt.Errorf("status API returned %d: %s", resp.StatusCode, msg)
	}

	c.logger.Debug("status reported", "status", update.Status, "environment", update.Environment)
	return nil
}

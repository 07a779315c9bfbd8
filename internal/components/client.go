// Package components provides an HTTP client for the external component
// status service.
package components

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nimbusops/statuspage/internal/domain"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// Client pushes component status changes to the component service. It
// implements incidents.ComponentSyncer. Requests are rate limited so a
// large maintenance batch cannot flood the downstream service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a component service client. rps bounds outgoing
// requests per second; zero or negative disables limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type setStatusRequest struct {
	Component componentPatch `json:"component"`
}

type componentPatch struct {
	Status domain.ComponentStatus `json:"status"`
}

// SetStatus updates a single component's status.
func (c *Client) SetStatus(ctx context.Context, componentID string, status domain.ComponentStatus) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(setStatusRequest{
		Component: componentPatch{Status: status},
	})
	if err != nil {
		return fmt.Errorf("marshal component patch: %w", err)
	}

	url := fmt.Sprintf("%s/components/%s", c.baseURL, componentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("patch component %s: %w", componentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("component service returned status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

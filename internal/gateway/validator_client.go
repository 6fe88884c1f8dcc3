// Package gateway implements the edge in front of the platform services:
// a reverse proxy whose authentication filter resolves bearer tokens to
// identities through the auth service before any request reaches an
// upstream.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/taskora/taskora/backend/internal/auth"
	"github.com/taskora/taskora/backend/internal/metrics"
)

// ValidationResult is the outcome of a remote token validation call. For
// rejections the raw status and body are kept so the filter can relay the
// auth service's answer unchanged.
type ValidationResult struct {
	Identity    *auth.Identity
	StatusCode  int
	Body        []byte
	ContentType string
}

// Valid reports whether the auth service accepted the token.
func (r *ValidationResult) Valid() bool {
	return r.Identity != nil
}

// ValidatorClient calls the auth service's token validation endpoint with a
// bounded timeout.
type ValidatorClient struct {
	baseURL string
	client  *http.Client
}

// NewValidatorClient creates a new ValidatorClient instance
func NewValidatorClient(baseURL string, timeout time.Duration) *ValidatorClient {
	return &ValidatorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Validate sends the token to the auth service. A non-nil error means the
// service could not be reached or answered outside its contract; rejections
// come back as a ValidationResult carrying the relayed response.
func (c *ValidatorClient) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token/validate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.GatewayValidatorDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GatewayValidatorRequestsTotal.WithLabelValues("unreachable").Inc()
		return nil, fmt.Errorf("token validation call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.GatewayValidatorRequestsTotal.WithLabelValues("unreachable").Inc()
		return nil, fmt.Errorf("failed to read validation response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var identity auth.Identity
		if err := json.Unmarshal(body, &identity); err != nil {
			metrics.GatewayValidatorRequestsTotal.WithLabelValues("malformed").Inc()
			return nil, fmt.Errorf("failed to decode identity: %w", err)
		}
		metrics.GatewayValidatorRequestsTotal.WithLabelValues("accepted").Inc()
		return &ValidationResult{Identity: &identity, StatusCode: resp.StatusCode}, nil
	}

	metrics.GatewayValidatorRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return &ValidationResult{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Package facilitatorclient implements x402.FacilitatorClient over HTTP,
// talking the /verify, /settle, /supported wire API a ResourceServer
// needs to reach a facilitator it doesn't run in-process.
package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	x402 "github.com/x402core/x402"
)

// DefaultTimeout is used when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// URL is the facilitator's base URL, with no trailing slash.
	URL string
	// Timeout bounds each HTTP round trip. Defaults to DefaultTimeout.
	Timeout time.Duration
	// CreateAuthHeaders, if set, is called before every request to
	// produce headers keyed by operation ("verify", "settle",
	// "supported").
	CreateAuthHeaders func() (map[string]map[string]string, error)
}

// Client implements x402.FacilitatorClient over HTTP.
type Client struct {
	url               string
	httpClient        *http.Client
	createAuthHeaders func() (map[string]map[string]string, error)
}

// NewClient constructs a Client from cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:               cfg.URL,
		httpClient:        &http.Client{Timeout: timeout},
		createAuthHeaders: cfg.CreateAuthHeaders,
	}
}

type verifyRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

type settleRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// Verify calls POST /verify.
func (c *Client) Verify(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.VerifyResponse, error) {
	body := verifyRequest{X402Version: payload.X402Version, PaymentPayload: payload, PaymentRequirements: requirement}
	var resp x402.VerifyResponse
	if err := c.doRequest(ctx, http.MethodPost, "/verify", "verify", body, &resp); err != nil {
		return x402.VerifyResponse{}, fmt.Errorf("facilitatorclient: verify: %w", err)
	}
	return resp, nil
}

// Settle calls POST /settle.
func (c *Client) Settle(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirements) (x402.SettleResponse, error) {
	body := settleRequest{X402Version: payload.X402Version, PaymentPayload: payload, PaymentRequirements: requirement}
	var resp x402.SettleResponse
	if err := c.doRequest(ctx, http.MethodPost, "/settle", "settle", body, &resp); err != nil {
		return x402.SettleResponse{}, fmt.Errorf("facilitatorclient: settle: %w", err)
	}
	return resp, nil
}

// GetSupported calls GET /supported.
func (c *Client) GetSupported(ctx context.Context) (x402.SupportedResponse, error) {
	var resp x402.SupportedResponse
	if err := c.doRequest(ctx, http.MethodGet, "/supported", "supported", nil, &resp); err != nil {
		return x402.SupportedResponse{}, fmt.Errorf("facilitatorclient: supported: %w", err)
	}
	return resp, nil
}

// Health calls GET /health, returning nil if the facilitator reports healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", "health", nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path, operation string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, bodyReader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	if c.createAuthHeaders != nil {
		headers, err := c.createAuthHeaders()
		if err != nil {
			return fmt.Errorf("creating auth headers: %w", err)
		}
		for key, value := range headers[operation] {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("facilitator returned %d: %s", resp.StatusCode, string(respBody))
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

var _ x402.FacilitatorClient = (*Client)(nil)

package masterclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client posts order events to the billing master.
type Client struct {
	cfg     Config
	http    *http.Client
	retry   RetryPolicy
	limiter *RateLimiter
	breaker CircuitBreaker
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		retry: RetryPolicy{
			MaxRetries: cfg.RetryCount,
			BaseDelay:  cfg.RetryDelay,
		},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg),
	}
}

// Configured reports whether a master endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.BaseURL != ""
}

type OrderEvent struct {
	Action     string         `json:"action"`
	ActionTime time.Time      `json:"action_time"`
	Remarks    string         `json:"remarks"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SendOrderEvent delivers one event. idempotencyKey lets the master drop
// repeated deliveries of the same event.
func (c *Client) SendOrderEvent(ctx context.Context, orderID, idempotencyKey string, event OrderEvent) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	path := fmt.Sprintf("/v1/orders/%s/events", orderID)
	return c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(func() error {
			return c.doRequest(ctx, http.MethodPost, path, idempotencyKey, event)
		})
	})
}

func (c *Client) doRequest(ctx context.Context, method, path, idempotencyKey string, body any) error {
	url := c.cfg.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			apiErr.Message = resp.Status
			return apiErr
		}
		if jsonErr := json.Unmarshal(bodyBytes, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = string(bodyBytes)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Package remote plays strategies hosted by a decision server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snow-ghost/dilemma/pkg/limiter"
	"github.com/snow-ghost/dilemma/server/api"
)

// ErrUnavailable wraps every failure to get an answer from the server.
var ErrUnavailable = errors.New("decision service unavailable")

// Client represents an HTTP client for the decision service
type Client struct {
	baseURL    string
	httpClient *http.Client
	protector  *limiter.Protector
	caller     string
}

// ClientConfig holds client configuration
type ClientConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Caller is sent as X-Caller and keys the server's rate limit.
	Caller string `yaml:"caller" json:"caller"`
}

// NewClient creates a new decision service client. Calls go through
// protector; nil gets default retry and breaker settings.
func NewClient(config ClientConfig, protector *limiter.Protector) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("base_url is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}
	if protector == nil {
		protector = limiter.NewProtector(nil, nil, nil)
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		protector:  protector,
		caller:     config.Caller,
	}, nil
}

// BaseURL returns the server address; it also names the breaker.
func (c *Client) BaseURL() string { return c.baseURL }

// Decide asks the server for one move.
func (c *Client) Decide(ctx context.Context, req api.DecideRequest) (api.DecideResponse, error) {
	var resp api.DecideResponse
	if err := c.call(ctx, http.MethodPost, "/v1/decide", req, &resp); err != nil {
		return api.DecideResponse{}, err
	}
	return resp, nil
}

// Strategies lists the strategies the server hosts.
func (c *Client) Strategies(ctx context.Context) ([]api.StrategyInfo, error) {
	var resp api.StrategiesResponse
	if err := c.call(ctx, http.MethodGet, "/v1/strategies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strategies, nil
}

// Health checks that the server answers.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	_, err := c.protector.Execute(ctx, c.baseURL, func(ctx context.Context) (interface{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.caller != "" {
			httpReq.Header.Set("X-Caller", c.caller)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			var apiErr api.ErrorResponse
			msg := strings.TrimSpace(string(data))
			if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
				msg = apiErr.Error
			}
			return nil, limiter.NewHTTPError(resp.StatusCode, msg, string(data))
		}
		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	return nil
}

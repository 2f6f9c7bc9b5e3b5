// Package llmclient calls an OpenAI-compatible chat completions API.
//
// The client retries rate-limited and unavailable responses with exponential
// backoff, stops calling a failing provider through a circuit breaker, and
// negotiates gzip or brotli response compression.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"caredraft/internal/core"
)

// ProviderName labels errors raised by this client.
const ProviderName = "ai"

// Config holds configuration for the client
type Config struct {
	// BaseURL is the API base URL, e.g. https://api.openai.com/v1
	BaseURL string
	APIKey  string
	Model   string

	// Timeout bounds one HTTP attempt (default: 60s)
	Timeout time.Duration

	MaxRetries     int           // Retry attempts after the first call (default: 2)
	InitialBackoff time.Duration // Delay before the first retry (default: 500ms)
	MaxBackoff     time.Duration // Upper bound on any delay (default: 10s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)

	// Breaker configures tripping on repeated failures; nil disables it
	Breaker *BreakerConfig
}

// BreakerConfig holds circuit breaker settings
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// SuccessThreshold is the number of trial successes that closes it again
	SuccessThreshold int
	// Cooldown is how long an open circuit rejects calls before a trial
	Cooldown time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig(baseURL, apiKey, model string) Config {
	return Config{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		Model:          model,
		Timeout:        60 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Breaker: &BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Cooldown:         30 * time.Second,
		},
	}
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature *float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	httpClient *http.Client
	config     Config
	breaker    *breaker
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a client with a pooled HTTP transport.
func New(config Config) *Client {
	return NewWithHTTPClient(newHTTPClient(config.Timeout), config)
}

// NewWithHTTPClient creates a client that sends through httpClient.
func NewWithHTTPClient(httpClient *http.Client, config Config) *Client {
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = 2.0
	}
	c := &Client{
		httpClient: httpClient,
		config:     config,
		sleep:      sleepContext,
	}
	if config.Breaker != nil {
		c.breaker = newBreaker(config.Breaker.FailureThreshold, config.Breaker.SuccessThreshold, config.Breaker.Cooldown)
	}
	return c
}

// Complete sends req and returns the assistant message text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", core.NewInternalError("failed to marshal completion request", err)
	}

	raw, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", core.NewProviderError(ProviderName, http.StatusBadGateway, "completion response has no message content", nil)
	}

	slog.Debug("ai completion",
		"model", gjson.GetBytes(raw, "model").String(),
		"total_tokens", gjson.GetBytes(raw, "usage.total_tokens").Int(),
	)
	return content.String(), nil
}

// post sends body with retries and circuit breaking, returning the decoded response body.
// The breaker is consulted before every attempt, so retries stop once failures open it.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	attempts := max(c.config.MaxRetries+1, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		if c.breaker != nil && !c.breaker.Allow() {
			return nil, core.NewProviderError(ProviderName, http.StatusServiceUnavailable,
				"circuit breaker is open - provider temporarily unavailable", lastErr)
		}

		status, respBody, err := c.send(ctx, endpoint, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.recordFailure()
			lastErr = err
			continue
		}

		switch {
		case status == http.StatusOK:
			c.recordSuccess()
			return respBody, nil
		case retryable(status):
			c.recordFailure()
			lastErr = core.ParseProviderError(ProviderName, status, respBody, nil)
		default:
			if status >= 500 {
				c.recordFailure()
			}
			return nil, core.ParseProviderError(ProviderName, status, respBody, nil)
		}
	}

	return nil, lastErr
}

// send performs one HTTP attempt.
func (c *Client) send(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, core.NewInvalidRequestError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, core.NewProviderError(ProviderName, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	reader, err := decodeBody(resp)
	if err != nil {
		return 0, nil, core.NewProviderError(ProviderName, http.StatusBadGateway, "failed to decode response: "+err.Error(), err)
	}
	defer func() {
		_ = reader.Close()
	}()

	respBody, err := io.ReadAll(reader)
	if err != nil {
		return 0, nil, core.NewProviderError(ProviderName, http.StatusBadGateway, "failed to read response: "+err.Error(), err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	d := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(attempt-1))
	if c.config.MaxBackoff > 0 && d > float64(c.config.MaxBackoff) {
		d = float64(c.config.MaxBackoff)
	}
	return time.Duration(d)
}

func (c *Client) recordFailure() {
	if c.breaker != nil {
		c.breaker.RecordFailure()
	}
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}

// BreakerState reports "closed", "open" or "half-open"; "disabled" without a breaker.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State()
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

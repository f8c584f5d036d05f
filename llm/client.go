// Package llm provides a provider-agnostic LLM client built for forced
// function calling: every interpreter request declares one tool with a
// strict schema and the model must invoke it. The client handles retry
// with jittered backoff, endpoint fallback, and circuit-aware endpoint
// selection through the model registry.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/chronoplan/chronoplan/model"
)

// maxResponseSize caps the response body read to guard memory.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic LLM client.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
	observer    Observer
}

// Observer receives per-call telemetry. Used to feed prometheus
// without coupling this package to the metric registry.
type Observer func(capability, modelName string, duration time.Duration, err error)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request is an LLM completion request.
type Request struct {
	// Capability selects the endpoint chain via the registry.
	Capability model.Capability

	// Messages is the chat history to send.
	Messages []Message

	// Tools declares the function tools available to the model.
	Tools []ToolDefinition

	// ToolChoice forces the named tool. Interpreters always set this:
	// confidence fields and free-form reasoning are stripped from the
	// schemas to make the model commit.
	ToolChoice string

	// Temperature controls randomness. nil uses the endpoint default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the endpoint default.
	MaxTokens int
}

// TokenUsage is token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completion result.
type Response struct {
	// Content is generated text outside tool calls, if any.
	Content string

	// ToolCalls are the tool invocations the model emitted.
	ToolCalls []ToolCall

	// Model is the model that actually served the request.
	Model string

	// Usage is token consumption, when the provider reports it.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// FirstToolCall returns the first call to the named tool, or
// ErrNoToolCall when the model did not invoke it.
func (r *Response) FirstToolCall(name string) (*ToolCall, error) {
	for i := range r.ToolCalls {
		if r.ToolCalls[i].Name == name {
			return &r.ToolCalls[i], nil
		}
	}
	return nil, ErrNoToolCall
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) { client.httpClient = c }
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) { client.retryConfig = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) { client.logger = logger }
}

// WithObserver sets the telemetry callback.
func WithObserver(obs Observer) ClientOption {
	return func(client *Client) { client.observer = obs }
}

// NewClient creates a client backed by the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a completion request, walking the capability's
// fallback chain with per-endpoint retry.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if !req.Capability.IsValid() {
		return nil, fmt.Errorf("unknown capability %q", req.Capability)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	started := time.Now()
	chain := c.registry.AvailableFallbackChain(req.Capability)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability %s", req.Capability)
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", modelName)
			continue
		}
		if !c.registry.IsEndpointAvailable(modelName) {
			c.logger.Debug("Endpoint circuit open, skipping", "model", modelName)
			continue
		}

		resp, err := c.tryEndpointWithRetry(ctx, endpoint, modelName, req)
		if err == nil {
			c.observe(req.Capability, modelName, time.Since(started), nil)
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			c.logger.Warn("Fatal error, not trying fallbacks",
				"model", modelName, "error", err)
			c.observe(req.Capability, modelName, time.Since(started), err)
			return nil, err
		}

		c.logger.Warn("Endpoint failed, trying fallback",
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)
	}

	c.observe(req.Capability, "", time.Since(started), lastErr)
	return nil, fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

func (c *Client) observe(capability model.Capability, modelName string, d time.Duration, err error) {
	if c.observer != nil {
		c.observer(capability.String(), modelName, d, err)
	}
}

// tryEndpointWithRetry attempts one endpoint with retry on transient
// errors, marking endpoint health for the circuit breaker.
func (c *Client) tryEndpointWithRetry(ctx context.Context, ep *model.EndpointConfig, modelName string, req Request) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return resp, nil
		}
		lastErr = err

		if IsFatal(err) {
			// Auth and bad-request errors indicate configuration, not
			// endpoint health.
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("Request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(modelName)
	return nil, lastErr
}

// calculateBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request against the endpoint.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = ep.MaxTokens
	}

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, maxTokens, req.Tools, req.ToolChoice)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages),
		"tools", len(req.Tools))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, ep.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// classifyHTTPError decides whether an HTTP error is worth retrying.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}

// Package apiclient calls an OpenAI-compatible chat completions endpoint with
// response caching and bounded retries.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/sync/singleflight"

	"github.com/mfenderov/multichat/internal/store"
	"github.com/mfenderov/multichat/pkg/models"
)

// Config holds API client configuration.
type Config struct {
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per attempt
	MaxRetries  int           // attempts after the first
	BackoffBase time.Duration // delay before the first retry, doubled for each further one
	CacheTTL    time.Duration
	CachePrefix string
}

// Options overrides the configured request parameters for one call.
type Options struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// Client wraps the chat completions API.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      store.KV
	group      singleflight.Group
}

// New creates a new API client. A nil cache disables response caching.
func New(config Config, cache store.KV) *Client {
	if config.Endpoint == "" {
		config.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if config.Model == "" {
		config.Model = "gpt-3.5-turbo"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = time.Second
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      cache,
	}
}

// chatRequest is the request payload for the chat completions API.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from the chat completions API.
type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) resolve(opts Options) Options {
	if opts.Model == "" {
		opts.Model = c.config.Model
	}
	if opts.Temperature == nil {
		t := c.config.Temperature
		opts.Temperature = &t
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = c.config.MaxTokens
	}
	return opts
}

// CacheKey returns the response cache key for a prompt pair.
func (c *Client) CacheKey(system, user string, opts Options) string {
	encoded, _ := json.Marshal(c.resolve(opts))
	return c.config.CachePrefix + "resp:" + models.Hash(system+"\x00"+user+"\x00"+string(encoded))
}

// Complete returns the assistant reply for the system and user messages.
// Identical calls within the cache TTL are answered from the cache, and
// identical concurrent calls share one upstream request.
func (c *Client) Complete(ctx context.Context, apiKey, system, user string, opts Options) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", &Error{Kind: KindMissingCredential, Message: "API key is not configured"}
	}
	if strings.TrimSpace(user) == "" {
		return "", &Error{Kind: KindEmptyInput, Message: "message is empty"}
	}

	opts = c.resolve(opts)
	key := c.CacheKey(system, user, opts)

	if text, ok := c.cached(ctx, key); ok {
		return text, nil
	}

	// The shared upstream call outlives any single caller; each caller only
	// stops waiting when its own context ends.
	upstreamCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if text, ok := c.cached(upstreamCtx, key); ok {
			return text, nil
		}

		start := time.Now()
		text, err := c.completeWithRetry(upstreamCtx, apiKey, system, user, opts)
		upstreamDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return "", err
		}

		if c.cache != nil {
			if err := c.cache.Set(upstreamCtx, key, []byte(text), c.config.CacheTTL); err != nil {
				slog.Warn("failed to cache response", "error", err)
			}
		}
		return text, nil
	})

	select {
	case <-ctx.Done():
		return "", &Error{Kind: KindTransient, Message: "request cancelled", Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			slog.Debug("shared in-flight completion", "key", key)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) cached(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		responseCacheTotal.WithLabelValues("error").Inc()
		slog.Warn("response cache lookup failed", "error", err)
		return "", false
	}
	if !ok {
		responseCacheTotal.WithLabelValues("miss").Inc()
		return "", false
	}
	responseCacheTotal.WithLabelValues("hit").Inc()
	slog.Debug("response cache hit", "key", key)
	return string(data), true
}

func (c *Client) completeWithRetry(ctx context.Context, apiKey, system, user string, opts Options) (string, error) {
	var last *Error

	policy := retrypolicy.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool {
			var apiErr *Error
			return errors.As(err, &apiErr) && apiErr.Retryable()
		}).
		WithMaxRetries(c.config.MaxRetries).
		WithBackoff(c.config.BackoffBase, c.config.BackoffBase<<max(c.config.MaxRetries, 1)).
		OnRetry(func(e failsafe.ExecutionEvent[string]) {
			slog.Warn("retrying completion request", "attempt", e.Attempts(), "error", e.LastError())
		}).
		Build()

	text, err := failsafe.With(policy).WithContext(ctx).GetWithExecution(func(exec failsafe.Execution[string]) (string, error) {
		slog.Debug("calling completion endpoint", "attempt", exec.Attempts(), "model", opts.Model)
		text, err := c.do(ctx, apiKey, system, user, opts)
		if err != nil {
			last = err
			upstreamAttemptsTotal.WithLabelValues(string(err.Kind)).Inc()
			return "", err
		}
		upstreamAttemptsTotal.WithLabelValues("ok").Inc()
		return text, nil
	})
	if err == nil {
		return text, nil
	}

	var result *Error
	switch {
	case ctx.Err() != nil:
		result = &Error{Kind: KindTransient, Message: "request cancelled", Err: ctx.Err()}
	case last != nil:
		result = last
	case errors.As(err, &result):
	default:
		result = &Error{Kind: KindTransient, Err: err}
	}

	slog.Error("completion request failed", "kind", result.Kind, "status", result.StatusCode, "error", Redact(result.Error()))
	return "", result
}

// do performs a single HTTP attempt and classifies its outcome.
func (c *Client) do(ctx context.Context, apiKey, system, user string, opts Options) (string, *Error) {
	req := chatRequest{
		Model: opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: *opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Message: "failed to marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindInvalidRequest, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Kind: KindTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransient, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		slog.Error("malformed completion response", "status", resp.StatusCode, "body", string(respBody))
		return "", &Error{Kind: KindInvalidResponse, StatusCode: resp.StatusCode, Message: "response is not valid JSON", Err: err}
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		slog.Error("malformed completion response", "status", resp.StatusCode, "body", string(respBody))
		return "", &Error{Kind: KindInvalidResponse, StatusCode: resp.StatusCode, Message: "response has no message content"}
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

func classifyStatus(status int, body []byte) *Error {
	msg := fmt.Sprintf("HTTP %d", status)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != nil && er.Error.Message != "" {
		msg = er.Error.Message
	}

	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuthentication, StatusCode: status, Message: msg}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, StatusCode: status, Message: msg}
	case http.StatusBadRequest:
		return &Error{Kind: KindInvalidRequest, StatusCode: status, Message: msg}
	default:
		return &Error{Kind: KindTransient, StatusCode: status, Message: msg}
	}
}

// ClearCache removes every cached response and returns how many were removed.
func (c *Client) ClearCache(ctx context.Context) (int, error) {
	if c.cache == nil {
		return 0, nil
	}
	n, err := c.cache.DeletePrefix(ctx, c.config.CachePrefix+"resp:")
	if err != nil {
		return n, fmt.Errorf("failed to clear response cache: %w", err)
	}
	slog.Info("response cache cleared", "entries", n)
	return n, nil
}

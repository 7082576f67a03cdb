// Package llm provides the OpenAI-compatible completion client used by
// the consolidation pipeline. The endpoint URL already includes the /v1
// path segment; requests go to {url}/chat/completions with bearer auth.
package llm

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

	"github.com/rs/zerolog"

	"github.com/chrlesur/live-memory/pkg/config"
	"github.com/chrlesur/live-memory/pkg/log"
)

// ErrNotConfigured is returned when no LLM endpoint or key is set.
// Consolidation is unavailable in that state; everything else works.
var ErrNotConfigured = errors.New("llm endpoint not configured")

const (
	maxAttempts   = 3
	pingPrompt    = "Réponds OK"
	pingMaxTokens = 5
	pingTimeout   = 30 * time.Second
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles accepted by chat completion endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is one completion call. Messages are sent verbatim, which lets
// callers append an assistant turn and a corrective user turn on retry.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Usage mirrors the token accounting block of the completion response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the parsed result of a successful call.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is the completion interface the consolidator depends on. Tests
// substitute a scripted fake.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Ping(ctx context.Context) (time.Duration, error)
	Model() string
}

// HTTPClient talks to an OpenAI-compatible chat completion endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient builds the client from settings. The configured consolidation
// timeout caps calls whose context carries no deadline of its own.
func NewClient(cfg *config.Settings) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.LLMAPIURL, "/"),
		apiKey:  cfg.LLMAPIKey,
		model:   cfg.LLMModel,
		httpClient: &http.Client{
			Timeout: cfg.ConsolidationTimeout,
		},
		logger: log.WithComponent("llm"),
	}
}

// Model returns the configured model name.
func (c *HTTPClient) Model() string {
	return c.model
}

// wire types for {url}/chat/completions

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage *Usage    `json:"usage"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
}

// Complete sends the request and returns the first choice. Network
// errors, 429 and 5xx responses are retried with exponential backoff;
// other non-200 statuses fail immediately.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	c.logger.Debug().
		Str("model", c.model).
		Int("messages", len(req.Messages)).
		Int("max_tokens", req.MaxTokens).
		Msg("Completion request")

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("Retrying completion")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		completion, retryable, err := c.doRequest(ctx, body)
		if err == nil {
			c.logger.Info().
				Str("model", completion.Model).
				Dur("duration", time.Since(start)).
				Int("total_tokens", completion.Usage.TotalTokens).
				Msg("Completion succeeded")
			return completion, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("llm call failed after %d attempts: %w", maxAttempts, lastErr)
}

// doRequest performs one HTTP round trip. The bool reports whether the
// failure is worth retrying.
func (c *HTTPClient) doRequest(ctx context.Context, body []byte) (*Completion, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("rate limited (429): %s", strings.TrimSpace(string(respBody)))
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("llm request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, false, fmt.Errorf("llm api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, false, errors.New("no completion returned")
	}

	completion := &Completion{
		Content: strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:   parsed.Model,
	}
	if completion.Model == "" {
		completion.Model = c.model
	}
	if parsed.Usage != nil {
		completion.Usage = *parsed.Usage
	}
	return completion, false, nil
}

// Ping sends a minimal completion to measure reachability and latency.
func (c *HTTPClient) Ping(ctx context.Context) (time.Duration, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return 0, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	_, err := c.Complete(ctx, Request{
		Messages:  []Message{{Role: RoleUser, Content: pingPrompt}},
		MaxTokens: pingMaxTokens,
	})
	if err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

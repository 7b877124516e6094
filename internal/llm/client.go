// Package llm talks to the Anthropic Messages API to turn agent trajectories
// into short narratives.
package llm

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
	"sync"
	"time"
)

const (
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
	DefaultModel = "claude-haiku-4-5-20251001"

	// callsPerMinute is the client-wide budget shared by every caller.
	callsPerMinute = 20

	// maxResponseBytes bounds how much of a reply is read.
	maxResponseBytes = 1 << 20
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("LLM client not configured")

// ErrRateLimited is returned when the local call budget is spent or the API
// answers 429.
var ErrRateLimited = errors.New("LLM rate limit exceeded")

// APIError is a non-200 answer from the API.
type APIError struct {
	Status  int
	Type    string // e.g. "overloaded_error"; empty if the body was not JSON
	Message string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error %d (%s): %s", e.Status, e.Type, e.Message)
}

// Unwrap lets callers treat an upstream 429 like the local budget running out.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	return nil
}

// Usage is the token count spent since the client was created.
type Usage struct {
	Calls        int `json:"calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// budget is a fixed-window call counter.
type budget struct {
	max     int
	used    int
	resetAt time.Time
}

func (b *budget) take(now time.Time) bool {
	if !now.Before(b.resetAt) {
		b.used = 0
		b.resetAt = now.Add(time.Minute)
	}
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

// Client calls one model with a shared per-minute budget. A nil *Client is
// valid and reports itself disabled.
type Client struct {
	apiKey string
	model  string
	url    string
	http   *http.Client

	mu     sync.Mutex
	budget budget
	usage  Usage
}

// NewClient returns nil if apiKey is empty. An empty model selects DefaultModel.
func NewClient(apiKey, model string) *Client {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		url:    apiURL,
		http:   &http.Client{Timeout: 30 * time.Second},
		budget: budget{max: callsPerMinute},
	}
}

// Enabled reports whether the client can make calls.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Usage returns the running totals.
func (c *Client) Usage() Usage {
	if c == nil {
		return Usage{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one user turn and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	c.mu.Lock()
	ok := c.budget.take(time.Now())
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w (%d calls/min)", ErrRateLimited, c.budget.max)
	}

	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("API call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp.StatusCode, raw)
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", errors.New("empty response")
	}

	c.mu.Lock()
	c.usage.Calls++
	c.usage.InputTokens += out.Usage.InputTokens
	c.usage.OutputTokens += out.Usage.OutputTokens
	c.mu.Unlock()

	slog.Debug("llm call",
		"model", c.model,
		"stop_reason", out.StopReason,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
	)
	return text.String(), nil
}

func parseError(status int, raw []byte) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return &APIError{Status: status, Type: body.Error.Type, Message: body.Error.Message}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(raw))}
}

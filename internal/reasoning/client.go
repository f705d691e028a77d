// Package reasoning talks to the secondary reasoning service that gives a
// model-based opinion on a clip, and turns its untrusted text into a
// structured opinion.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of one inference call.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Usable reports whether the call completed or was intentionally skipped.
func (s Status) Usable() bool {
	return s == StatusOK || s == StatusSkipped
}

const (
	// DefaultTimeout bounds a single inference request.
	DefaultTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20
	maxErrorBody     = 4096
)

// Response is the raw reply of the reasoning service.
type Response struct {
	RawText string
	Status  Status
}

// Client obtains a secondary opinion for a system/user prompt pair.
// Implementations never return errors; failures surface as StatusError.
type Client interface {
	Infer(ctx context.Context, system, user string) Response
	Mode() string
}

// HTTPStatusError represents a non-2xx reply from the reasoning endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *HTTPStatusError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Config holds the connection settings for HTTPClient.
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// New returns an HTTPClient when both URL and key are set, otherwise a
// StubClient that always skips.
func New(cfg Config, logger *slog.Logger) Client {
	if strings.TrimSpace(cfg.URL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return NewStubClient(logger)
	}
	return NewHTTPClient(cfg, logger)
}

// StubClient is used when the reasoning service is not configured.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

func (c *StubClient) Infer(ctx context.Context, system, user string) Response {
	c.logger.Debug("reasoning stub: inference skipped", "prompt_bytes", len(system)+len(user))
	return Response{Status: StatusSkipped}
}

func (c *StubClient) Mode() string {
	return "stub"
}

// HTTPClient posts chat-style requests to the reasoning endpoint.
type HTTPClient struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *HTTPClient) Mode() string {
	return "http"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Infer sends one request. Transport failures, timeouts and non-2xx replies
// all resolve to StatusError with a short description as RawText.
func (c *HTTPClient) Infer(ctx context.Context, system, user string) Response {
	text, err := c.do(ctx, system, user)
	if err != nil {
		c.logger.Warn("reasoning request failed", "error", err)
		return Response{RawText: err.Error(), Status: StatusError}
	}
	return Response{RawText: text, Status: StatusOK}
}

func (c *HTTPClient) do(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("reasoning response received",
		"model", c.model,
		"status_code", resp.StatusCode,
		"body_bytes", len(respBody),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return extractText(respBody), nil
}

// extractText pulls the model text out of a reply body. Recognized shapes are
// {"output_text": ...} and OpenAI-style {"choices": [...]}; any other body
// is returned verbatim.
func extractText(body []byte) string {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}

	if v, ok := data["output_text"]; ok {
		return stringify(v)
	}
	if choices, ok := data["choices"].([]any); ok && len(choices) > 0 {
		first, _ := choices[0].(map[string]any)
		return firstNonEmpty(
			nestedString(first, "message", "content"),
			nestedString(first, "delta", "content"),
			nestedString(first, "text"),
		)
	}
	return string(body)
}

func nestedString(m map[string]any, keys ...string) string {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[k]
	}
	if cur == nil {
		return ""
	}
	return stringify(cur)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

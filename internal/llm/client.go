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
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("llm: API key not configured")

// ErrEmptyResponse is returned when the provider answers without choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// HTTPError is a non-200 response from the provider.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Client issues chat-completion requests. It never retries.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	tokens     metric.Int64Counter
}

// NewClient creates a client with the given configuration.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	meter := otel.Meter("github.com/me/bloodlens/internal/llm")
	duration, _ := meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("Chat completion request duration"),
		metric.WithUnit("ms"))
	tokens, _ := meter.Int64Counter("llm.tokens",
		metric.WithDescription("Tokens reported by the provider"))

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.With("component", "llm-client"),
		tracer:     otel.Tracer("github.com/me/bloodlens/internal/llm"),
		duration:   duration,
		tokens:     tokens,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends messages and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, span := c.tracer.Start(ctx, "llm.complete",
		trace.WithAttributes(attribute.String("llm.model", c.config.Model)))
	defer span.End()

	text, err := c.complete(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return text, err
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	if c.config.APIKey == "" {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	elapsed := time.Since(start)
	c.duration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(attribute.Int("http.status_code", resp.StatusCode)))

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("completion failed", "status", resp.StatusCode, "duration", elapsed)
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var out completionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	c.tokens.Add(ctx, out.Usage.PromptTokens, metric.WithAttributes(attribute.String("kind", "prompt")))
	c.tokens.Add(ctx, out.Usage.CompletionTokens, metric.WithAttributes(attribute.String("kind", "completion")))

	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("completion ok", "model", out.Model, "tokens", out.Usage.TotalTokens, "duration", elapsed)
	return out.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

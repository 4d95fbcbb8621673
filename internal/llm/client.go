// Package llm talks to an OpenAI-compatible chat completion endpoint and
// implements the intent oracle and entity extractor on top of it.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"dialog-manager/internal/common/config"
	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/common/metrics"
	"dialog-manager/internal/common/validation"
	"dialog-manager/internal/models"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Config for the chat client. Timeout bounds a single attempt.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float32
}

// ConfigFromApp maps the llm section of the application config.
func ConfigFromApp(cfg config.LLMConfig) Config {
	return Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Timeout:     time.Duration(cfg.Timeout) * time.Millisecond,
		MaxRetries:  cfg.MaxRetries,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

// ChatRequest is one single-turn completion with optional prior turns.
type ChatRequest struct {
	Operation string
	System    string
	History   []models.HistoryEntry
	Prompt    string
	JSON      bool
	MaxTokens int
}

type Client struct {
	api    *openai.Client
	config Config
	logger Logger
}

func NewClient(cfg Config, log Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		config: cfg,
		logger: log,
	}
}

// Complete returns the assistant text. Failed and timed out attempts are
// retried with exponential backoff up to MaxRetries while ctx is live;
// client errors are not retried.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	op := req.Operation
	if op == "" {
		op = "complete"
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    c.messages(req),
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var (
		lastErr  error
		timedOut bool
	)
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.LLMCalls.WithLabelValues(op, "timeout").Inc()
				return "", apperrors.NewLLMTimeoutError(ctx.Err())
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr, timedOut = errors.New("empty choices"), false
				continue
			}
			metrics.LLMCalls.WithLabelValues(op, "ok").Inc()
			return resp.Choices[0].Message.Content, nil
		}

		if ctx.Err() != nil {
			metrics.LLMCalls.WithLabelValues(op, "timeout").Inc()
			return "", apperrors.NewLLMTimeoutError(err)
		}
		lastErr, timedOut = err, isTimeout(err)
		if !timedOut && !retryable(err) {
			break
		}
		c.logger.Warn("llm call failed, retrying", map[string]interface{}{
			"operation": op,
			"attempt":   attempt + 1,
			"error":     err.Error(),
		})
	}

	if timedOut {
		metrics.LLMCalls.WithLabelValues(op, "timeout").Inc()
		return "", apperrors.NewLLMTimeoutError(lastErr)
	}
	metrics.LLMCalls.WithLabelValues(op, "error").Inc()
	return "", apperrors.NewLLMRequestFailedError(lastErr)
}

// CompleteJSON requests a JSON object, validates it against schema and
// decodes it into out. Replies that fail validation are asked for again.
func (c *Client) CompleteJSON(ctx context.Context, req ChatRequest, schema *validation.Schema, out interface{}) error {
	req.JSON = true

	var lastDetails string
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		text, err := c.Complete(ctx, req)
		if err != nil {
			return err
		}

		raw := []byte(extractJSON(text))
		result, err := schema.ValidateJSON(raw)
		switch {
		case err != nil:
			lastDetails = err.Error()
		case !result.Valid:
			lastDetails = result.Error()
		default:
			if err := json.Unmarshal(raw, out); err != nil {
				lastDetails = err.Error()
				break
			}
			return nil
		}

		c.logger.Warn("llm reply rejected", map[string]interface{}{
			"operation": req.Operation,
			"attempt":   attempt + 1,
			"details":   lastDetails,
		})
	}
	metrics.LLMCalls.WithLabelValues(req.Operation, "malformed").Inc()
	return apperrors.NewLLMMalformedOutputError(lastDetails)
}

func (c *Client) messages(req ChatRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, h := range req.History {
		role := openai.ChatMessageRoleUser
		if h.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: h.Content})
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// retryable is false for 4xx replies other than 408 and 429.
func retryable(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 {
		return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	}
	return true
}

// extractJSON strips a markdown code fence some models wrap JSON in.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func formatIntents(intents []models.Intent) string {
	var b strings.Builder
	for _, in := range intents {
		if in.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", in.Name, in.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", in.Name)
		}
	}
	return b.String()
}

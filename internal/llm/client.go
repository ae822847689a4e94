// Package llm wraps the OpenAI-compatible chat completion endpoint
// used for summarization, entity extraction, lesson mining, and
// vision-based document parsing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openclaw/memoryd/internal/apperr"
)

// Config holds client configuration for the chat provider.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Timeout     time.Duration
	// VisionTimeout covers image calls, which run much longer.
	VisionTimeout time.Duration
	// RequestsPerSecond throttles outbound calls (0 = unlimited).
	RequestsPerSecond float64
}

// Client calls the chat completion API.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates an LLM client with the given configuration.
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.VisionTimeout == 0 {
		config.VisionTimeout = 120 * time.Second
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.VisionModel == "" {
		config.VisionModel = "gpt-4o"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.VisionTimeout},
		limiter:    limiter,
		logger:     logger,
	}
}

// Message is one chat turn. Content is a string for text calls or a
// structured part list for vision calls.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// TaskOptions selects the model parameters for one call. Zero values
// fall back to client defaults.
type TaskOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete performs one chat completion call and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, opts TaskOptions, messages []Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = c.config.Model
	}
	reqBody := completionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperr.Ef(apperr.KindUpstream, "chat completion returned %d: %s", resp.StatusCode, string(body))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "failed to decode completion response", err)
	}
	if len(result.Choices) == 0 {
		return "", apperr.E(apperr.KindUpstream, "completion response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// Summarize runs a summarization prompt at low temperature.
func (c *Client) Summarize(ctx context.Context, prompt string, opts TaskOptions) (string, error) {
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	return c.Complete(ctx, opts, []Message{
		{Role: "user", Content: prompt},
	})
}

// ExtractFromImage asks the vision model to transcribe an image. The
// image travels inline as a data URL; nothing is uploaded anywhere.
func (c *Client) ExtractFromImage(ctx context.Context, mimeType, dataB64, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, dataB64)
	reqBody := completionRequest{
		Model: c.config.VisionModel,
		Messages: []Message{
			{
				Role: "user",
				Content: []map[string]interface{}{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
				},
			},
		},
		MaxTokens:   4000,
		Temperature: 0.1,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.VisionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "vision request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperr.Ef(apperr.KindUpstream, "vision call returned %d: %s", resp.StatusCode, string(body))
	}

	var result completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "failed to decode vision response", err)
	}
	if len(result.Choices) == 0 {
		return "", apperr.E(apperr.KindUpstream, "vision response has no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// Package chat wraps an OpenAI-compatible chat completion endpoint
// (OpenAI, Groq, a local server) for prompts that must answer in JSON.
package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
)

const (
	// DefaultModel is used when none is configured
	DefaultModel = "llama-3.3-70b-versatile"

	defaultTemperature = 0.1
	defaultTimeout     = 60 * time.Second
)

// Config holds chat client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float32 // nil = 0.1
	Timeout     time.Duration
	Logger      *zap.SugaredLogger
}

// Client sends single-turn prompts
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.SugaredLogger
}

// NewClient creates a chat client. BaseURL overrides the OpenAI default.
func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	c := &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: defaultTemperature,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if cfg.Temperature != nil {
		c.temperature = *cfg.Temperature
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	return c
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Complete sends prompt as a user message and returns the reply text
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrapf(err, "chat completion with %s failed", c.model)
	}
	if len(resp.Choices) == 0 {
		return "", errors.Newf("chat completion with %s returned no choices", c.model)
	}

	c.logger.Debugw("Chat completion",
		"model", c.model,
		"finish_reason", resp.Choices[0].FinishReason,
		"tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds())

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// CompleteJSON sends prompt and decodes the reply into v. Markdown code
// fences around the JSON are tolerated.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, v interface{}) error {
	text, err := c.Complete(ctx, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(ExtractJSON(text)), v); err != nil {
		return errors.WithDetail(
			errors.Wrap(errors.ErrMalformedInput, "model returned invalid JSON"),
			text)
	}
	return nil
}

// ExtractJSON returns the outermost JSON object in text, stripping any
// surrounding prose or code fences. Text without braces is returned as is.
func ExtractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

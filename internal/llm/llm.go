package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/teemow/inboxpilot/internal/fault"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
)

// Completer is the narrow slice of a language model the planner needs:
// one system prompt, one user prompt, one text completion.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds the connection settings for the model backend.
type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint for OpenAI-compatible backends.
	BaseURL   string
	MaxTokens int
}

// Client wraps a langchaingo chat model behind the Completer interface.
type Client struct {
	model     llms.Model
	maxTokens int
	logger    *slog.Logger
}

// New builds a client for the configured OpenAI-compatible backend.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fault.New(fault.KindAuth, "llm api key not configured")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fault.Wrapf(fault.KindUpstream, err, "create llm client")
	}
	return NewFromModel(model, cfg.MaxTokens), nil
}

// NewFromModel wraps an existing model, used by tests to inject fakes.
func NewFromModel(model llms.Model, maxTokens int) *Client {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &Client{
		model:     model,
		maxTokens: maxTokens,
		logger:    logging.WithService(slog.Default(), "llm"),
	}
}

// Complete sends one system and one user message and returns the text
// of the first choice. Temperature is pinned to zero so plans stay
// deterministic for a given prompt.
func (c *Client) Complete(ctx context.Context, system, prompt string) (text string, err error) {
	ctx, span := instrumentation.StartUpstreamSpan(ctx, instrumentation.ServiceLLM, instrumentation.OperationComplete)
	defer func() { instrumentation.EndUpstreamSpan(span, err) }()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(c.maxTokens),
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", mapErr(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fault.New(fault.KindUpstream, "llm returned an empty completion")
	}

	c.logger.DebugContext(ctx, "completion finished",
		slog.Int("prompt_chars", len(prompt)),
		slog.Int("completion_chars", len(resp.Choices[0].Content)),
		slog.Duration(logging.KeyDuration, time.Since(start)),
	)
	return resp.Choices[0].Content, nil
}

// mapErr classifies model backend failures. The langchaingo client
// surfaces HTTP failures as flat error strings, so status codes are
// matched textually.
func mapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrapf(fault.KindTimeout, err, "llm completion")
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "invalid_api_key") || strings.Contains(msg, "incorrect api key"):
		return fault.Wrapf(fault.KindAuth, err, "llm completion")
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return fault.Wrapf(fault.KindRateLimited, err, "llm completion")
	}
	return fault.Wrapf(fault.KindUpstream, err, "llm completion")
}

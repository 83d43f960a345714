// Package langchain adapts langchaingo chat models (OpenAI-compatible servers such as vLLM,
// Ollama or LM Studio) to the domain.Completer contract.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

const provider = "langchain"

// Config holds the chat model endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string // "none" is sent when empty; local servers ignore it
	Model   string
	Logger  *zap.Logger
}

// Completer implements domain.Completer over an llms.Model.
type Completer struct {
	model  llms.Model
	name   string
	logger *zap.Logger
}

// New creates a completer backed by langchaingo's OpenAI-compatible client.
func New(cfg Config) (*Completer, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain client: %w", err)
	}
	return NewWithModel(client, cfg.Model, cfg.Logger), nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(m llms.Model, name string, logger *zap.Logger) *Completer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{model: m, name: name, logger: logger}
}

// Complete implements domain.Completer.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.User),
	}

	opts := []llms.CallOption{llms.WithTemperature(float64(req.Temperature))}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, content, opts...)
	metrics.CompletionDuration.WithLabelValues(provider, c.name).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return domain.CompletionResult{}, fmt.Errorf("completion cancelled: %w", ctxErr)
		}
		return domain.CompletionResult{}, fmt.Errorf("generate content: %w: %w", domain.ErrProviderUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return domain.CompletionResult{}, fmt.Errorf("generate content returned no choices: %w",
			domain.ErrProviderUnavailable)
	}

	choice := resp.Choices[0]
	prompt := intInfo(choice.GenerationInfo, "PromptTokens")
	completion := intInfo(choice.GenerationInfo, "CompletionTokens")
	metrics.CompletionTokensTotal.WithLabelValues(provider, c.name, "prompt").Add(float64(prompt))
	metrics.CompletionTokensTotal.WithLabelValues(provider, c.name, "completion").Add(float64(completion))

	c.logger.Debug("Completion finished",
		zap.String("model", c.name),
		zap.String("stop_reason", choice.StopReason),
		zap.Int("completion_tokens", completion),
	)

	return domain.CompletionResult{
		Content:          choice.Content,
		PromptTokens:     prompt,
		CompletionTokens: completion,
	}, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

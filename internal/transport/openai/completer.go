package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

// Completer is a chat-completion client for filter extraction.
type Completer struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completer. Dimensions is ignored.
func NewCompleter(cfg *Config) *Completer {
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{
		client:   newClient(cfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: provider,
		logger:   logger,
	}
}

// Complete implements domain.Completer.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		User:        c.user,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	metrics.CompletionDuration.WithLabelValues(c.provider, c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		return domain.CompletionResult{}, parseAPIError(ctx, "completion", err)
	}
	if len(resp.Choices) == 0 {
		return domain.CompletionResult{}, fmt.Errorf("completion returned no choices: %w", domain.ErrProviderUnavailable)
	}

	metrics.CompletionTokensTotal.WithLabelValues(c.provider, c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.CompletionTokensTotal.WithLabelValues(c.provider, c.model, "completion").
		Add(float64(resp.Usage.CompletionTokens))

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		c.logger.Warn("Completion truncated by max_tokens",
			zap.String("model", c.model), zap.Int("max_tokens", req.MaxTokens))
	}

	return domain.CompletionResult{
		Content:          choice.Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (c *Completer) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", errors.Join(err, domain.ErrProviderUnavailable))
	}
	return nil
}

// Package extraction turns a natural-language query into structured search filters with a language model.
package extraction

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
	"github.com/kailas-cloud/propsearch/internal/logger"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

// Defaults for Config.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 400
	DefaultTimeout     = 10 * time.Second
)

// Config tunes the completion call.
type Config struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// Amenities is the allowed amenity id vocabulary; empty means DefaultAmenities.
	Amenities []string
}

// Extractor is the filter extractor. Extract never fails: every problem resolves to a degraded outcome.
type Extractor struct {
	completer    domain.Completer
	cfg          Config
	systemPrompt string
	vocabulary   map[string]struct{}
	logger       *zap.Logger
}

// New creates an extractor over a completion backend.
func New(c domain.Completer, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Amenities) == 0 {
		cfg.Amenities = DefaultAmenities
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	vocab := make(map[string]struct{}, len(cfg.Amenities))
	for _, a := range cfg.Amenities {
		vocab[a] = struct{}{}
	}

	return &Extractor{
		completer:    c,
		cfg:          cfg,
		systemPrompt: buildSystemPrompt(cfg.Amenities),
		vocabulary:   vocab,
		logger:       logger,
	}
}

// Extract resolves query to Parsed, Degraded or Skipped. Filters of a non-parsed outcome are empty.
func (e *Extractor) Extract(ctx context.Context, query string, loc domain.Locale) extracted.Outcome {
	query = strings.TrimSpace(query)
	if query == "" {
		metrics.ExtractionTotal.WithLabelValues(string(extracted.StateSkipped), "").Inc()
		return extracted.Skipped()
	}

	out := e.run(ctx, query, loc)

	reason := ""
	switch {
	case out.Err == nil:
	case errors.Is(out.Err, domain.ErrMalformedModelOutput):
		reason = "malformed_output"
	case errors.Is(out.Err, context.Canceled):
		reason = "cancelled"
	default:
		reason = "provider_unavailable"
	}
	metrics.ExtractionTotal.WithLabelValues(string(out.State), reason).Inc()

	if out.IsDegraded() {
		logger.FromContextOr(ctx, e.logger).Warn("filter_extraction degraded",
			zap.String("reason", reason),
			zap.String("locale", string(loc)),
			zap.Error(out.Err),
		)
	}
	return out
}

func (e *Extractor) run(ctx context.Context, query string, loc domain.Locale) extracted.Outcome {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	res, err := e.completer.Complete(callCtx, domain.CompletionRequest{
		System:      e.systemPrompt,
		User:        buildUserPrompt(query, loc),
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return extracted.Degraded(ctxErr)
		}
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			err = errors.Join(domain.ErrProviderUnavailable, err)
		}
		return extracted.Degraded(err)
	}

	filters, err := parseFilters(res.Content, e.vocabulary)
	if err != nil {
		logger.FromContextOr(ctx, e.logger).Debug("Unparsable extraction response",
			zap.String("content", truncate(res.Content, 200)))
		return extracted.Degraded(err)
	}

	logger.FromContextOr(ctx, e.logger).Debug("Filters extracted",
		zap.Any("filters", filters),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens),
	)
	return extracted.Parsed(filters)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

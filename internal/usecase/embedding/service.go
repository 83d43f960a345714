// Package embedding implements the embedding provider used by search and backfill.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

// DefaultMaxAPIBatchSize: максимальный размер батча для одного API-запроса.
const DefaultMaxAPIBatchSize = 256

// Defaults for Options.
const (
	DefaultTimeout      = 5 * time.Second
	DefaultBatchTimeout = 30 * time.Second
)

// Options configure the provider.
type Options struct {
	Mode         domain.EmbeddingMode
	Model        string
	Dimensions   int
	Timeout      time.Duration
	BatchTimeout time.Duration
}

// Service turns text into unit-length vectors of a fixed dimensionality.
// The inner embedder (live API or HashEmbedder) is chosen at startup.
type Service struct {
	inner  domain.Embedder
	opts   Options
	logger *zap.Logger
}

// NewService wraps inner with trimming, timeouts, validation and normalization.
func NewService(inner domain.Embedder, opts Options, logger *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	if opts.Mode == "" {
		opts.Mode = domain.EmbeddingSemantic
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, m := range []domain.EmbeddingMode{domain.EmbeddingSemantic, domain.EmbeddingNonSemantic} {
		v := 0.0
		if m == opts.Mode {
			v = 1
		}
		metrics.EmbeddingMode.WithLabelValues(string(m)).Set(v)
	}

	return &Service{inner: inner, opts: opts, logger: logger}
}

// Mode reports whether vectors carry meaning.
func (s *Service) Mode() domain.EmbeddingMode { return s.opts.Mode }

// Model is the model id vectors are produced by. Part of every stored source hash.
func (s *Service) Model() string { return s.opts.Model }

// Dimensions is the fixed vector length.
func (s *Service) Dimensions() int { return s.opts.Dimensions }

// Embed returns the unit vector for text. Blank text yields nil and no error.
// Provider failures and timeouts are ErrProviderUnavailable; cancellation of ctx is returned as is.
func (s *Service) Embed(ctx context.Context, text string, loc domain.Locale) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	res, err := s.inner.Embed(callCtx, text)
	if err != nil {
		err = s.mapError(ctx, err)
		s.logger.Warn("Embedding failed",
			zap.String("locale", string(loc)),
			zap.String("mode", string(s.opts.Mode)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	vec, err := s.finish(res.Embedding)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Embedding completed",
		zap.String("locale", string(loc)),
		zap.String("mode", string(s.opts.Mode)),
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return vec, nil
}

// BatchEmbed embeds texts in sub-batches of DefaultMaxAPIBatchSize. Texts must be non-blank.
func (s *Service) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		end := min(offset+DefaultMaxAPIBatchSize, len(texts))
		chunk := texts[offset:end]

		res, err := s.embedChunk(ctx, chunk)
		if err != nil {
			s.logger.Error("Batch embedding request failed",
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("batch embed: %w", err)
		}
		if len(res.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("batch embed: got %d vectors for %d texts: %w",
				len(res.Embeddings), len(chunk), domain.ErrProviderUnavailable)
		}

		for _, e := range res.Embeddings {
			vec, err := s.finish(e)
			if err != nil {
				return nil, err
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

func (s *Service) embedChunk(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.BatchTimeout)
	defer cancel()

	var (
		res domain.BatchEmbeddingResult
		err error
	)
	if be, ok := s.inner.(domain.BatchEmbedder); ok {
		res, err = be.BatchEmbed(callCtx, texts)
	} else {
		res, err = domain.BatchFallback(callCtx, s.inner, texts)
	}
	if err != nil {
		return domain.BatchEmbeddingResult{}, s.mapError(ctx, err)
	}
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports it.
func (s *Service) HealthCheck(ctx context.Context) error {
	hc, ok := s.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health: %w", err)
	}
	return nil
}

func (s *Service) finish(raw []float32) ([]float32, error) {
	if s.opts.Dimensions > 0 && len(raw) != s.opts.Dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d: %w",
			len(raw), s.opts.Dimensions, domain.ErrProviderUnavailable)
	}
	vec, ok := domain.Normalize(raw)
	if !ok {
		return nil, fmt.Errorf("embedding is zero or not finite: %w", domain.ErrProviderUnavailable)
	}
	return vec, nil
}

// mapError keeps caller cancellation distinct from provider failure.
func (s *Service) mapError(parent context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return fmt.Errorf("embed: %w", parentErr)
	}
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return fmt.Errorf("embed: %w", err)
	}
	return fmt.Errorf("embed: %w: %w", domain.ErrProviderUnavailable, err)
}

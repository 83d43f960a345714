// Package backfill computes missing and stale property embeddings out of the request path.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

// Defaults for Config.
const (
	DefaultBatchSize      = 50
	DefaultPause          = time.Second
	DefaultWorkers        = 4
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Config tunes batching, pacing and retries.
type Config struct {
	BatchSize      int
	Pause          time.Duration
	Workers        int
	MaxRetries     int
	RetryBaseDelay time.Duration
	// Locales to embed; empty means all supported locales.
	Locales []domain.Locale
}

// Report summarizes one backfill run. Counts are per property and locale.
type Report struct {
	RunID         string
	Scanned       int
	Embedded      int
	Skipped       int
	Failed        int
	Batches       int
	ProviderCalls int
	Duration      time.Duration
}

// ProgressFunc receives the number of scanned properties and the catalog size after each batch.
type ProgressFunc func(scanned, total int)

// Service runs backfills. Re-running it on an unchanged catalog makes no provider calls.
type Service struct {
	catalog  Catalog
	embedder Embedder
	cfg      Config
	progress ProgressFunc
	logger   *zap.Logger
}

// New creates a backfill service.
func New(catalog Catalog, embedder Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if len(cfg.Locales) == 0 {
		cfg.Locales = domain.Locales()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, embedder: embedder, cfg: cfg, logger: logger}
}

// WithProgress sets a callback invoked after every batch.
func (s *Service) WithProgress(fn ProgressFunc) *Service {
	s.progress = fn
	return s
}

// job is one stale (property, locale) pair.
type job struct {
	id   string
	loc  domain.Locale
	text string
	hash string
}

// Run walks the catalog once. Catalog read failures and cancellation abort the run;
// provider and write failures are counted and the run continues.
func (s *Service) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.NewString()}
	log := s.logger.With(zap.String("run_id", report.RunID), zap.String("model", s.embedder.Model()))

	pool, err := ants.NewPool(s.cfg.Workers)
	if err != nil {
		return report, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	log.Info("Backfill started",
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Duration("pause", s.cfg.Pause),
		zap.Int("workers", s.cfg.Workers),
	)

	for offset := 0; ; {
		props, total, err := s.catalog.List(ctx, offset, s.cfg.BatchSize)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("list catalog at %d: %w", offset, err)
		}
		if len(props) == 0 {
			break
		}

		report.Batches++
		report.Scanned += len(props)
		offset += len(props)

		called, err := s.processBatch(ctx, pool, props, &report, log)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		if s.progress != nil {
			s.progress(report.Scanned, total)
		}
		if offset >= total {
			break
		}
		if called {
			if err := sleep(ctx, s.cfg.Pause); err != nil {
				report.Duration = time.Since(start)
				return report, fmt.Errorf("backfill: %w", err)
			}
		}
	}

	report.Duration = time.Since(start)
	log.Info("Backfill finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("embedded", report.Embedded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("provider_calls", report.ProviderCalls),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// processBatch embeds the stale texts of one page and writes them. called reports a provider call.
func (s *Service) processBatch(
	ctx context.Context, pool *ants.Pool, props []property.Property, report *Report, log *zap.Logger,
) (called bool, err error) {
	model := s.embedder.Model()

	var jobs []job
	for i := range props {
		p := &props[i]
		for _, loc := range s.cfg.Locales {
			text := p.EmbeddingText(loc)
			if text == "" {
				report.Skipped++
				metrics.BackfillRowsTotal.WithLabelValues(string(loc), "skipped").Inc()
				continue
			}
			hash := property.SourceHash(model, text)
			if p.EmbeddingCurrent(loc, hash) {
				report.Skipped++
				metrics.BackfillRowsTotal.WithLabelValues(string(loc), "skipped").Inc()
				continue
			}
			jobs = append(jobs, job{id: p.ID, loc: loc, text: text, hash: hash})
		}
	}
	if len(jobs) == 0 {
		return false, nil
	}

	texts := make([]string, len(jobs))
	for i, j := range jobs {
		texts[i] = j.text
	}

	vecs, calls, err := s.embedWithRetry(ctx, texts)
	report.ProviderCalls += calls
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, fmt.Errorf("backfill: %w", ctxErr)
		}
		log.Error("Embedding batch failed", zap.Int("texts", len(texts)), zap.Error(err))
		report.Failed += len(jobs)
		for _, j := range jobs {
			metrics.BackfillRowsTotal.WithLabelValues(string(j.loc), "failed").Inc()
		}
		return true, nil
	}

	embedded, failed := s.write(ctx, pool, jobs, vecs, log)
	report.Embedded += embedded
	report.Failed += failed
	return true, nil
}

// write stores vectors through the worker pool.
func (s *Service) write(
	ctx context.Context, pool *ants.Pool, jobs []job, vecs [][]float32, log *zap.Logger,
) (embedded, failed int) {
	var (
		wg        sync.WaitGroup
		nEmbedded atomic.Int64
		nFailed   atomic.Int64
	)

	for i, j := range jobs {
		vec := vecs[i]
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := s.catalog.SetEmbedding(ctx, j.id, j.loc, vec, j.hash); err != nil {
				nFailed.Add(1)
				metrics.BackfillRowsTotal.WithLabelValues(string(j.loc), "failed").Inc()
				log.Warn("Store embedding failed",
					zap.String("property_id", j.id),
					zap.String("locale", string(j.loc)),
					zap.Error(err),
				)
				return
			}
			nEmbedded.Add(1)
			metrics.BackfillRowsTotal.WithLabelValues(string(j.loc), "embedded").Inc()
		})
		if submitErr != nil {
			wg.Done()
			nFailed.Add(1)
			metrics.BackfillRowsTotal.WithLabelValues(string(j.loc), "failed").Inc()
			log.Error("Submit write task failed", zap.String("property_id", j.id), zap.Error(submitErr))
		}
	}
	wg.Wait()

	return int(nEmbedded.Load()), int(nFailed.Load())
}

// embedWithRetry retries provider failures with exponential backoff. calls counts provider calls made.
func (s *Service) embedWithRetry(ctx context.Context, texts []string) (vecs [][]float32, calls int, err error) {
	delay := s.cfg.RetryBaseDelay
	for attempt := 0; ; attempt++ {
		calls++
		metrics.BackfillProviderCallsTotal.Inc()

		vecs, err = s.embedder.BatchEmbed(ctx, texts)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, calls, fmt.Errorf("got %d vectors for %d texts: %w",
					len(vecs), len(texts), domain.ErrProviderUnavailable)
			}
			return vecs, calls, nil
		}
		if ctx.Err() != nil || !errors.Is(err, domain.ErrProviderUnavailable) || attempt >= s.cfg.MaxRetries {
			return nil, calls, err
		}

		s.logger.Warn("Embedding batch failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return nil, calls, sleepErr
		}
		delay *= 2
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package search orchestrates filter extraction, catalog queries and ranking for one search request.
package search

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/component"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
	"github.com/kailas-cloud/propsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/propsearch/internal/domain/search/request"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	"github.com/kailas-cloud/propsearch/internal/domain/search/strategy"
	"github.com/kailas-cloud/propsearch/internal/logger"
	"github.com/kailas-cloud/propsearch/internal/metrics"
	"github.com/kailas-cloud/propsearch/internal/usecase/ranking"
)

// Defaults for Config.
const (
	DefaultCandidateLimit = 200
	DefaultMinScore       = 0.6
)

// Config tunes candidate retrieval.
type Config struct {
	// CandidateLimit caps how many filter matches and similarity hits feed vector and hybrid ranking.
	CandidateLimit int
	// MinScore is the similarity floor for similarity hits.
	MinScore float64
}

// Service is the search orchestrator. It holds no per-request state.
type Service struct {
	store     CandidateStore
	extractor FilterExtractor
	embedder  EmbeddingProvider
	rankers   *ranking.Registry
	cfg       Config
	logger    *zap.Logger
}

// New creates a search orchestrator. A nil extractor or embedder makes that component always degrade.
func New(
	store CandidateStore,
	extractor FilterExtractor,
	embedder EmbeddingProvider,
	rankers *ranking.Registry,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.MinScore <= 0 {
		cfg.MinScore = DefaultMinScore
	}
	if rankers == nil {
		rankers = ranking.DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		rankers:   rankers,
		cfg:       cfg,
		logger:    logger,
	}
}

// run collects what each branch produced.
type run struct {
	outcome   extracted.Outcome
	expr      filter.Expression
	filtered  []property.Property
	total     int
	paged     bool
	vectorRan bool
	vectorErr error
	similar   []result.Candidate
}

// Search runs the pipeline for req. Only catalog failures (ErrCatalog) and caller cancellation are errors;
// extraction and embedding failures degrade the request.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.SearchResult, error) {
	start := time.Now()
	log := logger.FromContextOr(ctx, s.logger)

	res, err := s.search(ctx, req, log)

	status := "ok"
	if err != nil {
		status = "error"
	}
	strat := string(res.Metadata.RankingStrategy)
	if err != nil {
		strat = string(req.Ranking())
	}
	if strat == "" {
		strat = "auto"
	}
	metrics.SearchRequestsTotal.WithLabelValues(strat, status).Inc()
	metrics.SearchDuration.WithLabelValues(strat).Observe(time.Since(start).Seconds())

	return res, err
}

func (s *Service) search(ctx context.Context, req *request.Request, log *zap.Logger) (result.SearchResult, error) {
	wantFilter := req.Components().Has(component.FilterExtraction)
	wantVector := req.Components().Has(component.VectorSearch)

	// Basic ranking pages in the store; vector and hybrid rank a candidate window in memory.
	paged := strategy.Resolve(req.Ranking(), wantFilter, wantVector) == strategy.Basic

	r := &run{paged: paged}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.filterBranch(gctx, req, wantFilter, r, log)
	})
	if wantVector {
		g.Go(func() error {
			return s.vectorBranch(gctx, req, r, log)
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result.SearchResult{}, fmt.Errorf("search: %w", ctxErr)
		}
		return result.SearchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return result.SearchResult{}, fmt.Errorf("search: %w", err)
	}

	effective := strategy.Resolve(req.Ranking(), wantFilter, r.vectorRan)

	hits, pagination, err := s.rank(ctx, req, effective, r)
	if err != nil {
		return result.SearchResult{}, err
	}

	meta := s.metadata(req, effective, wantFilter, wantVector, r)
	for _, c := range meta.DegradedComponents {
		metrics.SearchDegradedTotal.WithLabelValues(string(c)).Inc()
	}
	if meta.VectorSearch != nil && meta.VectorSearch.ResultsCount > 0 {
		metrics.SearchTopScore.Observe(meta.VectorSearch.TopScore)
	}

	log.Debug("Search completed",
		zap.String("strategy", string(effective)),
		zap.Int("total", pagination.Total),
		zap.Int("returned", len(hits)),
		zap.Bool("vector_ran", r.vectorRan),
		zap.String("extraction", string(r.outcome.State)),
	)

	return result.SearchResult{Hits: hits, Pagination: pagination, Metadata: meta}, nil
}

// filterBranch extracts filters when selected, then always queries the catalog with them.
func (s *Service) filterBranch(
	ctx context.Context, req *request.Request, wantFilter bool, r *run, log *zap.Logger,
) error {
	var expr filter.Expression
	if wantFilter {
		r.outcome = s.extract(ctx, req)
		e, err := r.outcome.Filters.Expression()
		if err != nil {
			log.Warn("filter_extraction degraded", zap.String("cause", "invalid filters"), zap.Error(err))
			r.outcome = extracted.Degraded(fmt.Errorf("%w: %w", domain.ErrMalformedModelOutput, err))
		} else {
			expr = e
		}
	}

	offset, limit := 0, s.cfg.CandidateLimit
	if r.paged {
		offset, limit = req.Offset(), req.PerPage()
	}

	props, total, err := s.store.FilterSearch(ctx, expr, offset, limit)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCatalog, err)
	}
	r.expr, r.filtered, r.total = expr, props, total
	return nil
}

func (s *Service) extract(ctx context.Context, req *request.Request) extracted.Outcome {
	if s.extractor == nil {
		return extracted.Degraded(fmt.Errorf("no extractor configured: %w", domain.ErrProviderUnavailable))
	}
	return s.extractor.Extract(ctx, req.Query(), req.Locale())
}

// vectorBranch embeds the query and runs similarity search. Embedding problems skip the branch.
func (s *Service) vectorBranch(ctx context.Context, req *request.Request, r *run, log *zap.Logger) error {
	if s.embedder == nil {
		r.vectorErr = fmt.Errorf("no embedder configured: %w", domain.ErrProviderUnavailable)
		log.Warn("vector_search skipped", zap.Error(r.vectorErr))
		return nil
	}

	vec, err := s.embedder.Embed(ctx, req.Query(), req.Locale())
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		r.vectorErr = err
		log.Warn("vector_search skipped",
			zap.String("cause", "embedding failed"),
			zap.String("embedding_mode", string(s.embedder.Mode())),
			zap.Error(err),
		)
		return nil
	}
	if vec == nil {
		log.Debug("vector_search skipped", zap.String("cause", "blank query"))
		return nil
	}

	similar, err := s.store.SimilaritySearch(ctx, vec, req.Locale(), s.cfg.MinScore, s.cfg.CandidateLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCatalog, err)
	}
	r.similar = similar
	r.vectorRan = true
	return nil
}

func (s *Service) rank(
	ctx context.Context, req *request.Request, effective strategy.Strategy, r *run,
) ([]result.Hit, result.Pagination, error) {
	if effective == strategy.Basic {
		return s.rankBasic(ctx, req, r)
	}

	ranker, ok := s.rankers.Get(effective)
	if !ok {
		return nil, result.Pagination{}, fmt.Errorf("ranking strategy %q is not registered", effective)
	}
	if effective == strategy.Hybrid {
		return s.rankHybrid(ctx, req, ranker, r)
	}

	ranked := ranker.Rank(ranking.Input{FilterMatches: r.filtered, Similar: r.similar})
	pagination := result.NewPagination(len(ranked), req.Page(), req.PerPage())
	from, to := pagination.Window(len(ranked))
	return ranked[from:to], pagination, nil
}

// rankBasic returns catalog order with the store's exact total. A candidate window that does not cover
// the requested page is replaced by a paged catalog query.
func (s *Service) rankBasic(
	ctx context.Context, req *request.Request, r *run,
) ([]result.Hit, result.Pagination, error) {
	basic, ok := s.rankers.Get(strategy.Basic)
	if !ok {
		basic = ranking.Basic{}
	}
	pagination := result.NewPagination(r.total, req.Page(), req.PerPage())

	if r.paged {
		return basic.Rank(ranking.Input{FilterMatches: r.filtered}), pagination, nil
	}

	ranked := basic.Rank(ranking.Input{FilterMatches: r.filtered})
	if end := req.Offset() + req.PerPage(); end <= len(ranked) || len(ranked) >= r.total {
		from, to := pagination.Window(len(ranked))
		return ranked[from:to], pagination, nil
	}

	props, total, err := s.store.FilterSearch(ctx, r.expr, req.Offset(), req.PerPage())
	if err != nil {
		return nil, result.Pagination{}, fmt.Errorf("%w: %w", domain.ErrCatalog, err)
	}
	return basic.Rank(ranking.Input{FilterMatches: props}),
		result.NewPagination(total, req.Page(), req.PerPage()), nil
}

// rankHybrid pages the fused list over every filter match, not just the candidate window.
// The list is laid out as filter matches with a similarity score, then the remaining
// r.total filter matches in catalog order, then similarity-only hits.
func (s *Service) rankHybrid(
	ctx context.Context, req *request.Request, ranker ranking.Strategy, r *run,
) ([]result.Hit, result.Pagination, error) {
	similar, err := s.markFilterMatches(ctx, r.expr, r.similar)
	if err != nil {
		return nil, result.Pagination{}, err
	}

	scored := make(map[string]struct{}, len(similar))
	similarOnly := 0
	for _, c := range similar {
		if c.FilterMatch {
			scored[c.Property.ID] = struct{}{}
		} else {
			similarOnly++
		}
	}
	// Catalog writes between the two queries can make the counts disagree.
	unscored := max(r.total-len(scored), 0)

	total := len(scored) + unscored + similarOnly
	pagination := result.NewPagination(total, req.Page(), req.PerPage())
	from, to := pagination.Window(total)

	uFrom := min(max(from-len(scored), 0), unscored)
	uTo := min(max(to-len(scored), 0), unscored)
	page, err := s.unscoredMatches(ctx, r, scored, uFrom, uTo)
	if err != nil {
		return nil, result.Pagination{}, err
	}

	// Filter matches rank above similarity-only hits, and a similarity bonus keeps scored
	// matches above unscored ones, so ranked is scored, then page, then similarity-only.
	ranked := ranker.Rank(ranking.Input{FilterMatches: page, Similar: similar})

	hits := make([]result.Hit, 0, to-from)
	for pos := from; pos < to; pos++ {
		var i int
		switch {
		case pos < len(scored):
			i = pos
		case pos < len(scored)+unscored:
			j := pos - len(scored) - uFrom
			if j >= len(page) {
				continue
			}
			i = len(scored) + j
		default:
			i = len(scored) + len(page) + pos - len(scored) - unscored
		}
		if i < len(ranked) {
			hits = append(hits, ranked[i])
		}
	}
	return hits, pagination, nil
}

// markFilterMatches sets FilterMatch on similarity hits that satisfy expr, asking the store
// rather than the candidate window so matches outside the window keep their base score.
func (s *Service) markFilterMatches(
	ctx context.Context, expr filter.Expression, similar []result.Candidate,
) ([]result.Candidate, error) {
	out := slices.Clone(similar)
	if len(out) == 0 {
		return out, nil
	}
	// No filters: every searchable row matches, and similarity search only returns searchable rows.
	if expr.IsEmpty() {
		for i := range out {
			out[i].FilterMatch = true
		}
		return out, nil
	}

	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.Property.ID
	}
	byID, err := filter.AnyOf(property.FieldID, ids)
	if err != nil {
		return nil, fmt.Errorf("filter by id: %w", err)
	}
	members, _, err := s.store.FilterSearch(ctx, expr.And(byID), 0, len(ids))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalog, err)
	}

	matched := make(map[string]struct{}, len(members))
	for _, p := range members {
		matched[p.ID] = struct{}{}
	}
	for i := range out {
		_, out[i].FilterMatch = matched[out[i].Property.ID]
	}
	return out, nil
}

// unscoredMatches returns positions [from, to) of the filter matches not in scored, in catalog order.
// The candidate window serves the range when it covers it; otherwise the store is paged with
// the scored ids excluded.
func (s *Service) unscoredMatches(
	ctx context.Context, r *run, scored map[string]struct{}, from, to int,
) ([]property.Property, error) {
	if from >= to {
		return nil, nil
	}

	window := make([]property.Property, 0, len(r.filtered))
	for _, p := range r.filtered {
		if _, ok := scored[p.ID]; !ok {
			window = append(window, p)
		}
	}
	if to <= len(window) || len(r.filtered) >= r.total {
		return window[min(from, len(window)):min(to, len(window))], nil
	}

	expr := r.expr
	if len(scored) > 0 {
		exclude, err := filter.AnyOf(property.FieldID, slices.Sorted(maps.Keys(scored)))
		if err != nil {
			return nil, fmt.Errorf("filter by id: %w", err)
		}
		expr = expr.AndNot(exclude)
	}
	props, _, err := s.store.FilterSearch(ctx, expr, from, to-from)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalog, err)
	}
	return props, nil
}

func (s *Service) metadata(
	req *request.Request, effective strategy.Strategy, wantFilter, wantVector bool, r *run,
) result.Metadata {
	meta := result.Metadata{
		Query:           req.Query(),
		RankingStrategy: effective,
	}

	if wantFilter {
		filters := r.outcome.Filters
		meta.ExtractedFilters = &filters
		if r.outcome.IsDegraded() {
			meta.DegradedComponents = append(meta.DegradedComponents, component.FilterExtraction)
		} else {
			meta.ComponentsUsed = append(meta.ComponentsUsed, component.FilterExtraction)
		}
	}

	if wantVector {
		switch {
		case r.vectorRan:
			meta.ComponentsUsed = append(meta.ComponentsUsed, component.VectorSearch)
			stats := &result.VectorStats{ResultsCount: len(r.similar), Mode: s.embedder.Mode()}
			if len(r.similar) > 0 {
				stats.TopScore = r.similar[0].Similarity
			}
			meta.VectorSearch = stats
		case r.vectorErr != nil:
			meta.DegradedComponents = append(meta.DegradedComponents, component.VectorSearch)
		}
	}
	return meta
}

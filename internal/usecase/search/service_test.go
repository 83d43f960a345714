package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/component"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
	"github.com/kailas-cloud/propsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/propsearch/internal/domain/search/request"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	"github.com/kailas-cloud/propsearch/internal/domain/search/strategy"
	"github.com/kailas-cloud/propsearch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type filterCall struct {
	expr          filter.Expression
	offset, limit int
}

type mockStore struct {
	mu           sync.Mutex
	filterFn     func(expr filter.Expression, offset, limit int) ([]property.Property, int, error)
	similarFn    func(vec []float32, loc domain.Locale, minScore float64, limit int) ([]result.Candidate, error)
	filterCalls  []filterCall
	similarCalls int
}

func (m *mockStore) FilterSearch(
	_ context.Context, expr filter.Expression, offset, limit int,
) ([]property.Property, int, error) {
	m.mu.Lock()
	m.filterCalls = append(m.filterCalls, filterCall{expr: expr, offset: offset, limit: limit})
	m.mu.Unlock()
	if m.filterFn == nil {
		return nil, 0, nil
	}
	return m.filterFn(expr, offset, limit)
}

func (m *mockStore) SimilaritySearch(
	_ context.Context, vec []float32, loc domain.Locale, minScore float64, limit int,
) ([]result.Candidate, error) {
	m.mu.Lock()
	m.similarCalls++
	m.mu.Unlock()
	if m.similarFn == nil {
		return nil, nil
	}
	return m.similarFn(vec, loc, minScore, limit)
}

type mockExtractor struct {
	extractFn func(ctx context.Context, query string) extracted.Outcome
	calls     int
}

func (m *mockExtractor) Extract(ctx context.Context, query string, _ domain.Locale) extracted.Outcome {
	m.calls++
	return m.extractFn(ctx, query)
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
	mode    domain.EmbeddingMode
}

func (m *mockEmbedder) Embed(ctx context.Context, text string, _ domain.Locale) ([]float32, error) {
	return m.embedFn(ctx, text)
}

func (m *mockEmbedder) Mode() domain.EmbeddingMode {
	if m.mode == "" {
		return domain.EmbeddingSemantic
	}
	return m.mode
}

// --- Helpers ---

var epoch = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func prop(id string, ageDays int) property.Property {
	return property.Property{ID: id, Published: true, CreatedAt: epoch.AddDate(0, 0, -ageDays)}
}

func catalog(n int) []property.Property {
	out := make([]property.Property, n)
	for i := range out {
		out[i] = prop(string(rune('a'+i)), i)
	}
	return out
}

// pagedCatalog serves props as a store would, honoring offset and limit.
func pagedCatalog(props []property.Property) func(filter.Expression, int, int) ([]property.Property, int, error) {
	return func(_ filter.Expression, offset, limit int) ([]property.Property, int, error) {
		from := min(offset, len(props))
		to := min(from+limit, len(props))
		return props[from:to], len(props), nil
	}
}

// matchingCatalog serves matches as the filter-match set. Id conditions added by the
// orchestrator are honored; every other condition is assumed to hold for all matches.
func matchingCatalog(matches []property.Property) func(filter.Expression, int, int) ([]property.Property, int, error) {
	return func(expr filter.Expression, offset, limit int) ([]property.Property, int, error) {
		var hit []property.Property
		for _, p := range matches {
			if idAllowed(expr, p.ID) {
				hit = append(hit, p)
			}
		}
		from := min(offset, len(hit))
		to := min(from+limit, len(hit))
		return hit[from:to], len(hit), nil
	}
}

func idAllowed(expr filter.Expression, id string) bool {
	for _, c := range expr.Must() {
		if c.Key() == property.FieldID && !slices.Contains(c.Values(), id) {
			return false
		}
	}
	for _, c := range expr.MustNot() {
		if c.Key() == property.FieldID && slices.Contains(c.Values(), id) {
			return false
		}
	}
	return true
}

func idCondition(conds []filter.Condition) (filter.Condition, bool) {
	for _, c := range conds {
		if c.Key() == property.FieldID {
			return c, true
		}
	}
	return filter.Condition{}, false
}

func numbered(prefix string, n int) []property.Property {
	out := make([]property.Property, n)
	for i := range out {
		out[i] = prop(fmt.Sprintf("%s%02d", prefix, i), i)
	}
	return out
}

func parsed(f extracted.Filters) *mockExtractor {
	return &mockExtractor{extractFn: func(context.Context, string) extracted.Outcome { return extracted.Parsed(f) }}
}

func vectorOf(v ...float32) *mockEmbedder {
	return &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) { return v, nil }}
}

func newRequest(t *testing.T, query string, ranking strategy.Strategy, comps ...component.Component) *request.Request {
	t.Helper()
	set := component.Default()
	if len(comps) > 0 {
		var err error
		set, err = component.NewSet(comps...)
		if err != nil {
			t.Fatalf("component set: %v", err)
		}
	}
	req, err := request.New(query, domain.LocaleEN, 1, 20, set, ranking)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return &req
}

func hitIDs(hits []result.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Property.ID
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// --- Tests ---

func TestSearch_HybridBothComponents(t *testing.T) {
	a, b, c := prop("a", 1), prop("b", 2), prop("c", 3)
	store := &mockStore{
		filterFn: matchingCatalog([]property.Property{a, b}),
		similarFn: func([]float32, domain.Locale, float64, int) ([]result.Candidate, error) {
			return []result.Candidate{{Property: c, Similarity: 0.95}, {Property: b, Similarity: 0.7}}, nil
		},
	}
	svc := New(store, parsed(extracted.Filters{PropertyType: ptr(property.Villa)}), vectorOf(1, 0), nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "villa", strategy.Hybrid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := hitIDs(res.Hits); !slices.Equal(got, []string{"b", "a", "c"}) {
		t.Errorf("order = %v, want [b a c]", got)
	}
	if math.Abs(res.Hits[0].Score-1.7) > 1e-9 {
		t.Errorf("b score = %v, want 1.7", res.Hits[0].Score)
	}
	if res.Pagination.Total != 3 || res.Pagination.Pages != 1 {
		t.Errorf("pagination = %+v", res.Pagination)
	}

	m := res.Metadata
	if m.RankingStrategy != strategy.Hybrid {
		t.Errorf("strategy = %q", m.RankingStrategy)
	}
	if !slices.Equal(m.ComponentsUsed, []component.Component{component.FilterExtraction, component.VectorSearch}) {
		t.Errorf("components used = %v", m.ComponentsUsed)
	}
	if len(m.DegradedComponents) != 0 {
		t.Errorf("degraded = %v", m.DegradedComponents)
	}
	if m.ExtractedFilters == nil || *m.ExtractedFilters.PropertyType != property.Villa {
		t.Errorf("extracted filters = %+v", m.ExtractedFilters)
	}
	if m.VectorSearch == nil || m.VectorSearch.ResultsCount != 2 || m.VectorSearch.TopScore != 0.95 {
		t.Errorf("vector stats = %+v", m.VectorSearch)
	}

	// Window mode: candidate limit, not the page. Then one membership check for the similarity hits.
	if len(store.filterCalls) != 2 || store.filterCalls[0].limit != DefaultCandidateLimit {
		t.Fatalf("filter calls = %+v", store.filterCalls)
	}
	if cond, ok := idCondition(store.filterCalls[1].expr.Must()); !ok || len(cond.Values()) != 2 {
		t.Errorf("membership check = %+v", store.filterCalls[1])
	}
}

func TestSearch_HybridPagesPastCandidateWindow(t *testing.T) {
	matches := numbered("m", 10)
	s1, s2 := prop("s1", 40), prop("s2", 41)
	store := &mockStore{
		filterFn: matchingCatalog(matches),
		similarFn: func([]float32, domain.Locale, float64, int) ([]result.Candidate, error) {
			return []result.Candidate{{Property: s1, Similarity: 0.9}, {Property: s2, Similarity: 0.8}}, nil
		},
	}
	ext := parsed(extracted.Filters{PropertyType: ptr(property.Villa)})
	svc := New(store, ext, vectorOf(1, 0), nil, Config{CandidateLimit: 4}, nil)

	var got []string
	for page := 1; page <= 6; page++ {
		req, err := request.New("villa", domain.LocaleEN, page, 2, component.Default(), strategy.Hybrid)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		res, err := svc.Search(context.Background(), &req)
		if err != nil {
			t.Fatalf("page %d: unexpected error: %v", page, err)
		}
		if res.Pagination.Total != 12 || res.Pagination.Pages != 6 {
			t.Fatalf("page %d: pagination = %+v, want 12 results", page, res.Pagination)
		}
		if res.Metadata.RankingStrategy != strategy.Hybrid {
			t.Fatalf("page %d: strategy = %q", page, res.Metadata.RankingStrategy)
		}
		for _, h := range res.Hits {
			want := 1.0
			switch h.Property.ID {
			case "s1":
				want = 0.9
			case "s2":
				want = 0.8
			}
			if math.Abs(h.Score-want) > 1e-9 {
				t.Errorf("%s score = %v, want %v", h.Property.ID, h.Score, want)
			}
		}
		got = append(got, hitIDs(res.Hits)...)
	}

	want := make([]string, 0, 12)
	for _, p := range matches {
		want = append(want, p.ID)
	}
	want = append(want, "s1", "s2")
	if !slices.Equal(got, want) {
		t.Errorf("pages = %v, want %v", got, want)
	}
}

func TestSearch_HybridScoresFilterMatchOutsideWindow(t *testing.T) {
	matches := numbered("m", 10)
	s1 := prop("s1", 40)
	store := &mockStore{
		filterFn: matchingCatalog(matches),
		similarFn: func([]float32, domain.Locale, float64, int) ([]result.Candidate, error) {
			return []result.Candidate{{Property: matches[5], Similarity: 0.95}, {Property: s1, Similarity: 0.9}}, nil
		},
	}
	ext := parsed(extracted.Filters{PropertyType: ptr(property.Villa)})
	svc := New(store, ext, vectorOf(1, 0), nil, Config{CandidateLimit: 4}, nil)

	search := func(page int) result.SearchResult {
		t.Helper()
		req, err := request.New("villa", domain.LocaleEN, page, 3, component.Default(), strategy.Hybrid)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		res, err := svc.Search(context.Background(), &req)
		if err != nil {
			t.Fatalf("page %d: unexpected error: %v", page, err)
		}
		return res
	}

	first := search(1)
	if got := hitIDs(first.Hits); !slices.Equal(got, []string{"m05", "m00", "m01"}) {
		t.Errorf("page 1 = %v, want [m05 m00 m01]", got)
	}
	if math.Abs(first.Hits[0].Score-1.95) > 1e-9 {
		t.Errorf("m05 score = %v, want 1.95", first.Hits[0].Score)
	}
	if first.Pagination.Total != 11 {
		t.Errorf("total = %d, want 11", first.Pagination.Total)
	}

	last := search(4)
	if got := hitIDs(last.Hits); !slices.Equal(got, []string{"m09", "s1"}) {
		t.Errorf("page 4 = %v, want [m09 s1]", got)
	}
	if last.Hits[1].Score != 0.9 {
		t.Errorf("s1 score = %v, want 0.9", last.Hits[1].Score)
	}

	call := store.filterCalls[len(store.filterCalls)-1]
	if call.offset != 8 || call.limit != 1 {
		t.Errorf("catalog page call = %+v, want offset 8 limit 1", call)
	}
	if cond, ok := idCondition(call.expr.MustNot()); !ok || !slices.Equal(cond.Values(), []string{"m05"}) {
		t.Errorf("scored match must be excluded from the catalog page, got %+v", call.expr.MustNot())
	}
}

func TestSearch_HybridWithoutFiltersSkipsMembershipCheck(t *testing.T) {
	props := catalog(3)
	store := &mockStore{
		filterFn: matchingCatalog(props),
		similarFn: func([]float32, domain.Locale, float64, int) ([]result.Candidate, error) {
			return []result.Candidate{{Property: props[2], Similarity: 0.9}}, nil
		},
	}
	svc := New(store, parsed(extracted.Filters{}), vectorOf(1, 0), nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "anything", strategy.Hybrid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hitIDs(res.Hits); !slices.Equal(got, []string{"c", "a", "b"}) {
		t.Errorf("hits = %v, want [c a b]", got)
	}
	if math.Abs(res.Hits[0].Score-1.9) > 1e-9 || res.Pagination.Total != 3 {
		t.Errorf("score = %v total = %d", res.Hits[0].Score, res.Pagination.Total)
	}
	if len(store.filterCalls) != 1 {
		t.Errorf("filter calls = %+v, want only the candidate window", store.filterCalls)
	}
}

func TestSearch_SimpleQueryFiltersReachStore(t *testing.T) {
	store := &mockStore{}
	ext := parsed(extracted.Filters{PropertyType: ptr(property.Villa), Bedrooms: ptr(2)})
	svc := New(store, ext, nil, nil, Config{}, nil)

	_, err := svc.Search(context.Background(), newRequest(t, "2BR villa", strategy.Auto, component.FilterExtraction))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	must := store.filterCalls[0].expr.Must()
	keys := make([]string, 0, len(must))
	for _, c := range must {
		keys = append(keys, c.Key())
	}
	if !slices.Contains(keys, property.FieldPropertyType) || !slices.Contains(keys, property.FieldBedrooms) {
		t.Errorf("filter keys = %v", keys)
	}
}

func TestSearch_ExtractionUnavailableDegrades(t *testing.T) {
	store := &mockStore{filterFn: pagedCatalog(catalog(3))}
	ext := &mockExtractor{extractFn: func(context.Context, string) extracted.Outcome {
		return extracted.Degraded(domain.ErrProviderUnavailable)
	}}
	svc := New(store, ext, nil, nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "2BR villa", strategy.Auto, component.FilterExtraction))
	if err != nil {
		t.Fatalf("degraded extraction must not fail the request: %v", err)
	}

	m := res.Metadata
	if m.ExtractedFilters == nil || !m.ExtractedFilters.IsEmpty() {
		t.Errorf("extracted filters = %+v, want empty", m.ExtractedFilters)
	}
	if !slices.Equal(m.DegradedComponents, []component.Component{component.FilterExtraction}) {
		t.Errorf("degraded = %v", m.DegradedComponents)
	}
	if len(m.ComponentsUsed) != 0 {
		t.Errorf("components used = %v", m.ComponentsUsed)
	}
	if m.RankingStrategy != strategy.Basic {
		t.Errorf("strategy = %q", m.RankingStrategy)
	}
	if len(res.Hits) != 3 || res.Pagination.Total != 3 {
		t.Errorf("hits = %v total = %d", hitIDs(res.Hits), res.Pagination.Total)
	}
	if !store.filterCalls[0].expr.IsEmpty() {
		t.Error("degraded extraction must query the unfiltered catalog")
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	props := catalog(5)
	store := &mockStore{filterFn: pagedCatalog(props)}
	ext := &mockExtractor{extractFn: func(context.Context, string) extracted.Outcome { return extracted.Skipped() }}
	emb := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) { return nil, nil }}
	svc := New(store, ext, emb, nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "", strategy.Auto))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Metadata.ExtractedFilters == nil || !res.Metadata.ExtractedFilters.IsEmpty() {
		t.Errorf("extracted filters = %+v", res.Metadata.ExtractedFilters)
	}
	if got := hitIDs(res.Hits); !slices.Equal(got, []string{"a", "b", "c", "d", "e"}) {
		t.Errorf("hits = %v, want unfiltered catalog page", got)
	}
	if res.Metadata.RankingStrategy != strategy.Basic || res.Metadata.VectorSearch != nil {
		t.Errorf("metadata = %+v", res.Metadata)
	}
	if len(res.Metadata.DegradedComponents) != 0 {
		t.Errorf("blank query is not a degradation: %v", res.Metadata.DegradedComponents)
	}
	if store.similarCalls != 0 {
		t.Error("similarity search must not run without a vector")
	}
}

func TestSearch_VectorOnlyNoEmbeddings(t *testing.T) {
	store := &mockStore{filterFn: pagedCatalog(catalog(4))}
	svc := New(store, nil, vectorOf(1, 0), nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "mountains", strategy.Auto, component.VectorSearch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Metadata.VectorSearch == nil || res.Metadata.VectorSearch.ResultsCount != 0 {
		t.Fatalf("vector stats = %+v", res.Metadata.VectorSearch)
	}
	if res.Pagination.Total != 0 || len(res.Hits) != 0 {
		t.Errorf("pagination = %+v hits = %v", res.Pagination, hitIDs(res.Hits))
	}
	if res.Metadata.RankingStrategy != strategy.Vector {
		t.Errorf("strategy = %q", res.Metadata.RankingStrategy)
	}
	if res.Metadata.ExtractedFilters != nil {
		t.Error("extracted filters must be omitted when extraction was not selected")
	}
}

func TestSearch_EmbeddingFailureSkipsVector(t *testing.T) {
	store := &mockStore{filterFn: pagedCatalog(catalog(2))}
	emb := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return nil, domain.ErrProviderUnavailable
	}}
	svc := New(store, parsed(extracted.Filters{}), emb, nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "quiet", strategy.Hybrid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Metadata.RankingStrategy != strategy.Basic {
		t.Errorf("strategy = %q, want basic", res.Metadata.RankingStrategy)
	}
	if !slices.Equal(res.Metadata.DegradedComponents, []component.Component{component.VectorSearch}) {
		t.Errorf("degraded = %v", res.Metadata.DegradedComponents)
	}
	if res.Metadata.VectorSearch != nil || store.similarCalls != 0 {
		t.Error("similarity search must be skipped")
	}
	if len(res.Hits) != 2 {
		t.Errorf("hits = %v", hitIDs(res.Hits))
	}
}

func TestSearch_NonSemanticModeReported(t *testing.T) {
	emb := vectorOf(1, 0)
	emb.mode = domain.EmbeddingNonSemantic
	svc := New(&mockStore{}, nil, emb, nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "villa", strategy.Auto, component.VectorSearch))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Metadata.VectorSearch.Mode != domain.EmbeddingNonSemantic {
		t.Errorf("mode = %q", res.Metadata.VectorSearch.Mode)
	}
}

func TestSearch_BasicPagesInStore(t *testing.T) {
	store := &mockStore{filterFn: pagedCatalog(catalog(7))}
	svc := New(store, parsed(extracted.Filters{}), vectorOf(1, 0), nil, Config{}, nil)

	req, err := request.New("villa", domain.LocaleEN, 2, 3, component.Default(), strategy.Basic)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := svc.Search(context.Background(), &req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c := store.filterCalls[0]; c.offset != 3 || c.limit != 3 {
		t.Errorf("filter call = %+v, want offset 3 limit 3", c)
	}
	if got := hitIDs(res.Hits); !slices.Equal(got, []string{"d", "e", "f"}) {
		t.Errorf("hits = %v", got)
	}
	if res.Pagination.Total != 7 || res.Pagination.Pages != 3 {
		t.Errorf("pagination = %+v", res.Pagination)
	}
	if res.Metadata.RankingStrategy != strategy.Basic {
		t.Errorf("strategy = %q", res.Metadata.RankingStrategy)
	}
}

func TestSearch_WindowTooSmallForBasicRequeries(t *testing.T) {
	store := &mockStore{filterFn: pagedCatalog(catalog(10))}
	emb := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		return nil, domain.ErrProviderUnavailable
	}}
	svc := New(store, parsed(extracted.Filters{}), emb, nil, Config{CandidateLimit: 4}, nil)

	req, err := request.New("villa", domain.LocaleEN, 3, 3, component.Default(), strategy.Hybrid)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := svc.Search(context.Background(), &req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.filterCalls) != 2 {
		t.Fatalf("filter calls = %+v, want window then page", store.filterCalls)
	}
	if got := hitIDs(res.Hits); !slices.Equal(got, []string{"g", "h", "i"}) {
		t.Errorf("hits = %v", got)
	}
	if res.Pagination.Total != 10 {
		t.Errorf("total = %d", res.Pagination.Total)
	}
}

func TestSearch_InMemoryPagination(t *testing.T) {
	var similar []result.Candidate
	for i, p := range catalog(5) {
		similar = append(similar, result.Candidate{Property: p, Similarity: 0.9 - float64(i)*0.05})
	}
	store := &mockStore{similarFn: func([]float32, domain.Locale, float64, int) ([]result.Candidate, error) {
		return similar, nil
	}}
	svc := New(store, nil, vectorOf(1, 0), nil, Config{}, nil)

	req, err := request.New("q", domain.LocaleEN, 2, 2, component.Default(), strategy.Vector)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err := svc.Search(context.Background(), &req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hitIDs(res.Hits); !slices.Equal(got, []string{"c", "d"}) {
		t.Errorf("hits = %v", got)
	}
	if res.Pagination.Total != 5 || res.Pagination.Pages != 3 {
		t.Errorf("pagination = %+v", res.Pagination)
	}
}

func TestSearch_MinScoreAndLimitPassed(t *testing.T) {
	var gotMin float64
	var gotLimit int
	store := &mockStore{similarFn: func(_ []float32, _ domain.Locale, minScore float64, limit int) ([]result.Candidate, error) {
		gotMin, gotLimit = minScore, limit
		return nil, nil
	}}
	svc := New(store, nil, vectorOf(1, 0), nil, Config{CandidateLimit: 50, MinScore: 0.75}, nil)

	if _, err := svc.Search(context.Background(), newRequest(t, "q", strategy.Auto, component.VectorSearch)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMin != 0.75 || gotLimit != 50 {
		t.Errorf("minScore = %v limit = %d", gotMin, gotLimit)
	}
}

func TestSearch_CatalogErrors(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("filter search", func(t *testing.T) {
		store := &mockStore{filterFn: func(filter.Expression, int, int) ([]property.Property, int, error) {
			return nil, 0, boom
		}}
		svc := New(store, parsed(extracted.Filters{}), nil, nil, Config{}, nil)

		_, err := svc.Search(context.Background(), newRequest(t, "q", strategy.Auto, component.FilterExtraction))
		if !errors.Is(err, domain.ErrCatalog) || !errors.Is(err, boom) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("similarity search", func(t *testing.T) {
		store := &mockStore{similarFn: func([]float32, domain.Locale, float64, int) ([]result.Candidate, error) {
			return nil, boom
		}}
		svc := New(store, nil, vectorOf(1, 0), nil, Config{}, nil)

		_, err := svc.Search(context.Background(), newRequest(t, "q", strategy.Auto, component.VectorSearch))
		if !errors.Is(err, domain.ErrCatalog) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestSearch_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emb := &mockEmbedder{embedFn: func(ctx context.Context, _ string) ([]float32, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := New(&mockStore{}, nil, emb, nil, Config{}, nil)

	_, err := svc.Search(ctx, newRequest(t, "q", strategy.Auto, component.VectorSearch))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSearch_BranchesRunConcurrently(t *testing.T) {
	embedStarted := make(chan struct{})
	ext := &mockExtractor{extractFn: func(_ context.Context, _ string) extracted.Outcome {
		select {
		case <-embedStarted:
			return extracted.Parsed(extracted.Filters{})
		case <-time.After(2 * time.Second):
			return extracted.Degraded(errors.New("embedding never started"))
		}
	}}
	emb := &mockEmbedder{embedFn: func(context.Context, string) ([]float32, error) {
		close(embedStarted)
		return []float32{1, 0}, nil
	}}
	svc := New(&mockStore{}, ext, emb, nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "q", strategy.Auto))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Metadata.DegradedComponents) != 0 {
		t.Fatalf("branches did not overlap: %v", res.Metadata.DegradedComponents)
	}
}

func TestSearch_NilExtractorDegrades(t *testing.T) {
	svc := New(&mockStore{}, nil, nil, nil, Config{}, nil)

	res, err := svc.Search(context.Background(), newRequest(t, "q", strategy.Auto))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []component.Component{component.FilterExtraction, component.VectorSearch}
	if !slices.Equal(res.Metadata.DegradedComponents, want) {
		t.Errorf("degraded = %v, want %v", res.Metadata.DegradedComponents, want)
	}
}

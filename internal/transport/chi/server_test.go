package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/component"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
	"github.com/kailas-cloud/propsearch/internal/domain/search/request"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	"github.com/kailas-cloud/propsearch/internal/domain/search/strategy"
	healthuc "github.com/kailas-cloud/propsearch/internal/usecase/health"
)

// --- mocks ---

type mockSearcher struct {
	searchFn func(ctx context.Context, req *request.Request) (result.SearchResult, error)
	got      *request.Request
}

func (m *mockSearcher) Search(ctx context.Context, req *request.Request) (result.SearchResult, error) {
	m.got = req
	if m.searchFn != nil {
		return m.searchFn(ctx, req)
	}
	return result.SearchResult{Pagination: result.NewPagination(0, req.Page(), req.PerPage())}, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- helpers ---

func newTestRouter(s Searcher, h HealthChecker) http.Handler {
	if h == nil {
		h = &mockHealth{report: healthuc.Report{Status: healthuc.Healthy}}
	}
	r := chi.NewRouter()
	NewServer(s, h, zap.NewNop()).Register(r)
	return r
}

func doSearch(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func villa() property.Property {
	return property.Property{
		ID: "p-1",
		Title: map[domain.Locale]string{
			domain.LocaleEN: "Hillside villa",
			domain.LocaleTH: "วิลล่าบนเนินเขา",
		},
		Description:     map[domain.Locale]string{domain.LocaleEN: "Quiet villa with a view"},
		TransactionType: property.Rent,
		Type:            property.Villa,
		Bedrooms:        2,
		Bathrooms:       2,
		Area:            180,
		Price:           65000,
		Province:        "Chiang Mai",
		District:        "Mae Rim",
		Amenities:       []property.Label{{ID: "pets_allowed"}, {ID: "pool"}},
		Tags:            []property.Label{{ID: "mountain"}},
		Published:       true,
	}
}

// --- search ---

func TestSearch_Defaults(t *testing.T) {
	ms := &mockSearcher{}
	rr := doSearch(t, newTestRouter(ms, nil), `{"query":"2BR villa"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if ms.got == nil {
		t.Fatal("searcher not called")
	}
	if ms.got.Query() != "2BR villa" {
		t.Errorf("query: got %q", ms.got.Query())
	}
	if ms.got.Locale() != domain.LocaleEN {
		t.Errorf("locale: got %q, want en", ms.got.Locale())
	}
	if ms.got.Page() != request.DefaultPage || ms.got.PerPage() != request.DefaultPerPage {
		t.Errorf("paging: got %d/%d", ms.got.Page(), ms.got.PerPage())
	}
	comps := ms.got.Components()
	if !comps.Has(component.FilterExtraction) || !comps.Has(component.VectorSearch) {
		t.Errorf("components: want both selected by default")
	}
	if ms.got.Ranking() != strategy.Hybrid {
		t.Errorf("ranking: got %q, want hybrid", ms.got.Ranking())
	}
}

func TestSearch_ExplicitParameters(t *testing.T) {
	ms := &mockSearcher{}
	body := `{"query":"condo","locale":"th","page":3,"per_page":5,
		"components":["vector_search"],"ranking":"vector"}`
	rr := doSearch(t, newTestRouter(ms, nil), body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d (%s)", rr.Code, rr.Body.String())
	}
	if ms.got.Locale() != domain.LocaleTH || ms.got.Page() != 3 || ms.got.PerPage() != 5 {
		t.Errorf("got locale=%s page=%d per_page=%d", ms.got.Locale(), ms.got.Page(), ms.got.PerPage())
	}
	if ms.got.Components().Has(component.FilterExtraction) {
		t.Error("filter_extraction should not be selected")
	}
	if ms.got.Ranking() != strategy.Vector {
		t.Errorf("ranking: got %q", ms.got.Ranking())
	}
}

func TestSearch_EmptyQueryAccepted(t *testing.T) {
	ms := &mockSearcher{}
	rr := doSearch(t, newTestRouter(ms, nil), `{"query":""}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
}

func TestSearch_ResponseShape(t *testing.T) {
	bedrooms := 2
	villaType := property.Villa
	ms := &mockSearcher{searchFn: func(_ context.Context, req *request.Request) (result.SearchResult, error) {
		return result.SearchResult{
			Hits:       []result.Hit{{Property: villa(), Score: 1.82}},
			Pagination: result.NewPagination(21, req.Page(), req.PerPage()),
			Metadata: result.Metadata{
				Query:           req.Query(),
				ComponentsUsed:  []component.Component{component.FilterExtraction, component.VectorSearch},
				RankingStrategy: strategy.Hybrid,
				ExtractedFilters: &extracted.Filters{
					PropertyType: &villaType,
					Bedrooms:     &bedrooms,
				},
				VectorSearch: &result.VectorStats{ResultsCount: 7, TopScore: 0.82, Mode: domain.EmbeddingSemantic},
			},
		}, nil
	}}

	rr := doSearch(t, newTestRouter(ms, nil), `{"query":"2BR villa","locale":"th"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}

	var resp struct {
		Properties []map[string]any `json:"properties"`
		Pagination map[string]int   `json:"pagination"`
		Metadata   map[string]any   `json:"metadata"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(resp.Properties) != 1 {
		t.Fatalf("properties: got %d, want 1", len(resp.Properties))
	}
	p := resp.Properties[0]
	if p["id"] != "p-1" || p["title"] != "วิลล่าบนเนินเขา" {
		t.Errorf("property: got id=%v title=%v", p["id"], p["title"])
	}
	// th description missing, falls back to en
	if p["description"] != "Quiet villa with a view" {
		t.Errorf("description fallback: got %v", p["description"])
	}
	if p["property_type"] != "villa" || p["transaction_type"] != "rent" {
		t.Errorf("types: got %v/%v", p["property_type"], p["transaction_type"])
	}
	if p["score"] != 1.82 {
		t.Errorf("score: got %v", p["score"])
	}
	if am, ok := p["amenities"].([]any); !ok || len(am) != 2 || am[0] != "pets_allowed" {
		t.Errorf("amenities: got %v", p["amenities"])
	}

	want := map[string]int{"total": 21, "page": 1, "per_page": 20, "pages": 2}
	for k, v := range want {
		if resp.Pagination[k] != v {
			t.Errorf("pagination %s: got %d, want %d", k, resp.Pagination[k], v)
		}
	}

	if resp.Metadata["ranking_strategy"] != "hybrid" {
		t.Errorf("ranking_strategy: got %v", resp.Metadata["ranking_strategy"])
	}
	if _, ok := resp.Metadata["degraded_components"]; ok {
		t.Error("degraded_components should be omitted")
	}
	ef, ok := resp.Metadata["extracted_filters"].(map[string]any)
	if !ok || ef["property_type"] != "villa" || ef["bedrooms"] != float64(2) || len(ef) != 2 {
		t.Errorf("extracted_filters: got %v", resp.Metadata["extracted_filters"])
	}
	vs, ok := resp.Metadata["vector_search"].(map[string]any)
	if !ok || vs["results_count"] != float64(7) || vs["top_score"] != 0.82 || vs["embedding_mode"] != "semantic" {
		t.Errorf("vector_search: got %v", resp.Metadata["vector_search"])
	}
}

func TestSearch_DegradedMetadata(t *testing.T) {
	ms := &mockSearcher{searchFn: func(_ context.Context, req *request.Request) (result.SearchResult, error) {
		return result.SearchResult{
			Pagination: result.NewPagination(0, req.Page(), req.PerPage()),
			Metadata: result.Metadata{
				Query:              req.Query(),
				ComponentsUsed:     []component.Component{},
				DegradedComponents: []component.Component{component.FilterExtraction},
				RankingStrategy:    strategy.Basic,
				ExtractedFilters:   &extracted.Filters{},
			},
		}, nil
	}}

	rr := doSearch(t, newTestRouter(ms, nil), `{"query":"2BR villa","components":["filter_extraction"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`"extracted_filters":{}`,
		`"degraded_components":["filter_extraction"]`,
		`"components_used":[]`,
		`"properties":[]`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
	if strings.Contains(body, `"vector_search"`) {
		t.Errorf("vector_search should be omitted: %s", body)
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing query", `{}`, "query"},
		{"query too long", fmt.Sprintf(`{"query":%q}`, strings.Repeat("a", 1001)), "query"},
		{"unknown locale", `{"query":"x","locale":"ru"}`, "locale"},
		{"page zero", `{"query":"x","page":0}`, "page"},
		{"per_page too large", `{"query":"x","per_page":101}`, "per_page"},
		{"per_page zero", `{"query":"x","per_page":0}`, "per_page"},
		{"empty components", `{"query":"x","components":[]}`, "components"},
		{"unknown component", `{"query":"x","components":["geo"]}`, "components"},
		{"unknown ranking", `{"query":"x","ranking":"rrf"}`, "ranking"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockSearcher{}
			rr := doSearch(t, newTestRouter(ms, nil), tt.body)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rr.Code)
			}
			if ms.got != nil {
				t.Error("searcher should not be called")
			}
			resp := decodeError(t, rr)
			if resp.Code != codeValidationFailed {
				t.Errorf("code: got %s", resp.Code)
			}
			found := false
			for _, f := range resp.Fields {
				if f.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("fields %+v missing %q", resp.Fields, tt.field)
			}
		})
	}
}

func TestSearch_MultipleFieldErrors(t *testing.T) {
	rr := doSearch(t, newTestRouter(&mockSearcher{}, nil), `{"page":0,"per_page":500}`)
	resp := decodeError(t, rr)
	if len(resp.Fields) != 3 {
		t.Errorf("fields: got %+v, want query, page, per_page", resp.Fields)
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	for _, body := range []string{``, `{"query":`, `[]`, `{"page":"one","query":"x"}`} {
		rr := doSearch(t, newTestRouter(&mockSearcher{}, nil), body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%q: got %d, want 400", body, rr.Code)
			continue
		}
		if resp := decodeError(t, rr); resp.Code != codeBadRequest {
			t.Errorf("%q: code %s, want %s", body, resp.Code, codeBadRequest)
		}
	}
}

func TestSearch_BodyTooLarge(t *testing.T) {
	body := `{"query":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rr := doSearch(t, newTestRouter(&mockSearcher{}, nil), body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Message != "request body too large" {
		t.Errorf("message: got %q", resp.Message)
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   errorCode
	}{
		{"catalog", fmt.Errorf("filter search: %w: %w", domain.ErrCatalog, errors.New("conn refused")),
			http.StatusServiceUnavailable, codeCatalogUnavailable},
		{"cancelled", context.Canceled, statusClientClosedRequest, codeRequestCancelled},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockSearcher{searchFn: func(context.Context, *request.Request) (result.SearchResult, error) {
				return result.SearchResult{}, tt.err
			}}
			rr := doSearch(t, newTestRouter(ms, nil), `{"query":"x"}`)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.status)
			}
			resp := decodeError(t, rr)
			if resp.Code != tt.code {
				t.Errorf("code: got %s, want %s", resp.Code, tt.code)
			}
			if strings.Contains(resp.Message, "conn refused") || strings.Contains(resp.Message, "boom") {
				t.Errorf("message leaks internals: %q", resp.Message)
			}
		})
	}
}

// --- health, routing ---

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			h := &mockHealth{report: healthuc.Report{
				Status: tt.status,
				Checks: map[string]healthuc.CheckResult{healthuc.CheckDatabase: healthuc.CheckOK},
			}}
			rr := httptest.NewRecorder()
			newTestRouter(&mockSearcher{}, h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			var resp healthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != string(tt.status) || resp.Checks[healthuc.CheckDatabase] != "ok" {
				t.Errorf("got %+v", resp)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(&mockSearcher{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d", rr.Code)
	}
}

func TestRouting_NotFoundAndMethod(t *testing.T) {
	h := newTestRouter(&mockSearcher{}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/nope", http.NoBody))
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != codeNotFound {
		t.Errorf("unknown route: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/search", http.NoBody))
	if rr.Code != http.StatusMethodNotAllowed || decodeError(t, rr).Code != codeMethodNotAllowed {
		t.Errorf("wrong method: got %d", rr.Code)
	}
}

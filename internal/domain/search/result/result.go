package result

import (
	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/component"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
	"github.com/kailas-cloud/propsearch/internal/domain/search/strategy"
)

// Candidate is a property seen by one request's pipeline.
// Similarity is in [0,1] and only meaningful when the property came from similarity search.
type Candidate struct {
	Property    property.Property
	Similarity  float64
	FilterMatch bool
}

// Hit is a ranked property with its combined score.
type Hit struct {
	Property property.Property
	Score    float64
}

// Pagination describes the returned page.
type Pagination struct {
	Total   int
	Page    int
	PerPage int
	Pages   int
}

// NewPagination computes the page count for total results.
func NewPagination(total, page, perPage int) Pagination {
	pages := 0
	if perPage > 0 && total > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{Total: total, Page: page, PerPage: perPage, Pages: pages}
}

// Window returns the [start, end) slice bounds of the page within n items.
func (p Pagination) Window(n int) (start, end int) {
	start = (p.Page - 1) * p.PerPage
	if start > n {
		start = n
	}
	end = start + p.PerPage
	if end > n {
		end = n
	}
	return start, end
}

// VectorStats summarizes the similarity stage.
type VectorStats struct {
	ResultsCount int
	TopScore     float64
	Mode         domain.EmbeddingMode
}

// Metadata records what actually ran for a request.
type Metadata struct {
	Query              string
	ComponentsUsed     []component.Component
	DegradedComponents []component.Component
	RankingStrategy    strategy.Strategy
	// ExtractedFilters is nil when filter extraction was not selected.
	ExtractedFilters *extracted.Filters
	// VectorSearch is nil when similarity search did not run.
	VectorSearch *VectorStats
}

// SearchResult is the full response of one search.
type SearchResult struct {
	Hits       []Hit
	Pagination Pagination
	Metadata   Metadata
}

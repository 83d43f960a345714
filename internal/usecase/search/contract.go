package search

import (
	"context"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
	"github.com/kailas-cloud/propsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
)

// CandidateStore reads the property catalog in its two query modes.
type CandidateStore interface {
	FilterSearch(
		ctx context.Context, filters filter.Expression, offset, limit int,
	) ([]property.Property, int, error)

	SimilaritySearch(
		ctx context.Context, vec []float32, loc domain.Locale, minScore float64, limit int,
	) ([]result.Candidate, error)
}

// FilterExtractor turns query text into filters. It never fails.
type FilterExtractor interface {
	Extract(ctx context.Context, query string, loc domain.Locale) extracted.Outcome
}

// EmbeddingProvider turns query text into a unit vector; nil for blank text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, loc domain.Locale) ([]float32, error)
	Mode() domain.EmbeddingMode
}

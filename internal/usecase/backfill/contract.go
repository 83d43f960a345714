package backfill

import (
	"context"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
)

// Catalog pages through properties and stores their vectors.
type Catalog interface {
	List(ctx context.Context, offset, limit int) ([]property.Property, int, error)
	SetEmbedding(ctx context.Context, id string, loc domain.Locale, vec []float32, hash string) error
}

// Embedder vectorizes texts in one provider call and names the model that produced them.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

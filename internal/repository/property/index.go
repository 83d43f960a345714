package property

import (
	"fmt"

	"github.com/kailas-cloud/propsearch/internal/db"
	"github.com/kailas-cloud/propsearch/internal/domain"
	domprop "github.com/kailas-cloud/propsearch/internal/domain/property"
)

// VectorIndexConfig selects the vector index algorithm and its tuning.
// FLAT scans every vector and suits small catalogs; HNSW is approximate.
type VectorIndexConfig struct {
	Algorithm   db.VectorAlgorithm
	M           int
	EFConstruct int
	BlockSize   int
}

// buildIndex declares the catalog schema: categorical TAGs, numeric ranges, one vector per locale.
func buildIndex(name, prefix string, dims int, vec VectorIndexConfig) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).
		Prefix(prefix).
		Tag(domprop.FieldID).
		Tag(domprop.FieldTransactionType).
		Tag(domprop.FieldPropertyType).
		Tag(domprop.FieldProvince).
		Tag(domprop.FieldDistrict).
		TagWithOpts(domprop.FieldAmenities, labelSeparator, false).
		TagWithOpts(domprop.FieldTags, labelSeparator, false).
		Tag(domprop.FieldPublished).
		Tag(domprop.FieldDeleted).
		Numeric(domprop.FieldBedrooms).
		Numeric(domprop.FieldBathrooms).
		Numeric(domprop.FieldArea).
		Numeric(domprop.FieldPrice).
		Numeric(domprop.FieldPriority).
		Numeric(domprop.FieldCreatedAt).
		NumericSortable(domprop.FieldSortKey)

	for _, loc := range domain.Locales() {
		switch vec.Algorithm {
		case db.VectorFlat:
			b = b.VectorFlat(domprop.VectorField(loc), dims, db.DistanceCosine, vec.BlockSize)
		case db.VectorHNSW, "":
			b = b.VectorHNSW(domprop.VectorField(loc), dims, db.DistanceCosine, vec.M, vec.EFConstruct)
		default:
			return nil, fmt.Errorf("unknown vector algorithm %q", vec.Algorithm)
		}
	}

	def, err := b.Build()
	if err != nil {
		return nil, err //nolint:wrapcheck // builder errors are already descriptive
	}
	return def, nil
}

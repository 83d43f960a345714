package property

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/propsearch/internal/db"
	"github.com/kailas-cloud/propsearch/internal/domain"
	domprop "github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
)

// store is the consumer interface for the catalog (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchFilter(ctx context.Context, q *db.FilterQuery) (*db.SearchResult, error)
}

// Config describes where and how the catalog is stored.
type Config struct {
	IndexName  string
	KeyPrefix  string
	Dimensions int
	Vector     VectorIndexConfig
}

// Repo is the property CandidateStore backed by one FT index over hashes.
type Repo struct {
	store store
	cfg   Config
}

// New creates a property repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// EnsureIndex creates the catalog index when it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.cfg.IndexName, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(r.cfg.IndexName, r.cfg.KeyPrefix, r.cfg.Dimensions, r.cfg.Vector)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	return nil
}

// DropIndex removes the catalog index; stored hashes are kept.
func (r *Repo) DropIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.cfg.IndexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.cfg.IndexName, err)
	}
	return nil
}

// FilterSearch returns one page of searchable properties matching filters,
// ordered by priority then recency, together with the total match count.
func (r *Repo) FilterSearch(
	ctx context.Context, filters filter.Expression, offset, limit int,
) ([]domprop.Property, int, error) {
	q := &db.FilterQuery{
		IndexName:    r.cfg.IndexName,
		Filters:      searchableGuard(filters),
		SortBy:       domprop.FieldSortKey,
		SortDesc:     true,
		Offset:       offset,
		Limit:        limit,
		ReturnFields: metaFields(),
	}

	sr, err := r.store.SearchFilter(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("filter search: %w", err)
	}
	if sr == nil {
		return nil, 0, nil
	}

	props := r.toProperties(sr.Entries)
	slices.SortStableFunc(props, func(a, b domprop.Property) int {
		return domprop.CompareCatalogOrder(&a, &b)
	})
	return props, sr.Total, nil
}

// SimilaritySearch ranks searchable properties by cosine similarity of their locale vector to vec.
// Only rows scoring above minScore are returned, best first, at most limit.
// Rows without a stored vector for loc are not part of the vector index and never appear.
func (r *Repo) SimilaritySearch(
	ctx context.Context, vec []float32, loc domain.Locale, minScore float64, limit int,
) ([]result.Candidate, error) {
	if limit <= 0 || len(vec) == 0 {
		return nil, nil
	}

	q := &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		VectorField:  domprop.VectorField(loc),
		Filters:      searchableGuard(filter.Expression{}),
		Vector:       vec,
		K:            limit,
		ReturnFields: metaFields(),
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("similarity search %s: %w", loc, err)
	}
	if sr == nil {
		return nil, nil
	}

	out := make([]result.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		if e.Score <= minScore {
			continue
		}
		out = append(out, result.Candidate{
			Property:   fromHash(r.idFromKey(e.Key), e.Fields),
			Similarity: e.Score,
		})
	}

	slices.SortStableFunc(out, func(a, b result.Candidate) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return domprop.CompareCatalogOrder(&a.Property, &b.Property)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns a property by id, vectors included.
func (r *Repo) Get(ctx context.Context, id string) (domprop.Property, error) {
	m, err := r.store.HGetAll(ctx, r.key(id))
	if err != nil {
		return domprop.Property{}, fmt.Errorf("hgetall %s: %w", id, err)
	}
	if len(m) == 0 {
		return domprop.Property{}, domain.ErrNotFound
	}
	return fromHash(id, m), nil
}

// Upsert writes the catalog attributes of p. A locale vector whose source text changed
// (per the model's source hash) is removed so it can never be served stale.
// Returns true when the property did not exist before.
func (r *Repo) Upsert(ctx context.Context, p *domprop.Property, model string) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, domain.NewValidationError(domain.FieldError{Field: "property", Message: err.Error()})
	}
	key := r.key(p.ID)

	existing, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return false, fmt.Errorf("hgetall %s: %w", p.ID, err)
	}

	if err := r.store.HSet(ctx, key, toHash(p)); err != nil {
		return false, fmt.Errorf("hset %s: %w", p.ID, err)
	}

	var stale []string
	for _, loc := range domain.Locales() {
		stored := existing[domprop.VectorHashField(loc)]
		if stored == "" {
			continue
		}
		if stored != domprop.SourceHash(model, p.EmbeddingText(loc)) {
			stale = append(stale, domprop.VectorField(loc), domprop.VectorHashField(loc))
		}
	}
	if err := r.store.HDel(ctx, key, stale...); err != nil {
		return false, fmt.Errorf("drop stale vectors %s: %w", p.ID, err)
	}

	return len(existing) == 0, nil
}

// Delete removes a property hash.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.key(id)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", id, err)
	}
	return nil
}

// List pages through all non-deleted properties (published or not) in catalog order,
// vectors included. Used by backfill.
func (r *Repo) List(ctx context.Context, offset, limit int) ([]domprop.Property, int, error) {
	deleted, err := filter.Match(domprop.FieldDeleted, "true")
	if err != nil {
		return nil, 0, fmt.Errorf("build filter: %w", err)
	}

	sr, err := r.store.SearchFilter(ctx, &db.FilterQuery{
		IndexName: r.cfg.IndexName,
		Filters:   filter.Expression{}.AndNot(deleted),
		SortBy:    domprop.FieldSortKey,
		SortDesc:  true,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list: %w", err)
	}
	if sr == nil {
		return nil, 0, nil
	}
	return r.toProperties(sr.Entries), sr.Total, nil
}

// SetEmbedding stores the vector for loc together with the hash of the text it came from.
func (r *Repo) SetEmbedding(ctx context.Context, id string, loc domain.Locale, vec []float32, hash string) error {
	if len(vec) != r.cfg.Dimensions {
		return fmt.Errorf("vector for %s has %d dimensions, index expects %d", id, len(vec), r.cfg.Dimensions)
	}
	key := r.key(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	fields := map[string]string{
		domprop.VectorField(loc):     vectorToBytes(vec),
		domprop.VectorHashField(loc): hash,
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset embedding %s/%s: %w", id, loc, err)
	}
	return nil
}

func (r *Repo) toProperties(entries []db.SearchEntry) []domprop.Property {
	props := make([]domprop.Property, 0, len(entries))
	for _, e := range entries {
		props = append(props, fromHash(r.idFromKey(e.Key), e.Fields))
	}
	return props
}

func (r *Repo) key(id string) string {
	return r.cfg.KeyPrefix + id
}

func (r *Repo) idFromKey(key string) string {
	return strings.TrimPrefix(key, r.cfg.KeyPrefix)
}

// searchableGuard restricts an expression to published, non-deleted rows.
func searchableGuard(expr filter.Expression) filter.Expression {
	published, _ := filter.Match(domprop.FieldPublished, "true")
	deleted, _ := filter.Match(domprop.FieldDeleted, "true")
	return expr.And(published).AndNot(deleted)
}

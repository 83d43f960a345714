package property

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/propsearch/internal/db"
	"github.com/kailas-cloud/propsearch/internal/domain"
	domprop "github.com/kailas-cloud/propsearch/internal/domain/property"
)

const (
	testDims   = 4
	testPrefix = "propsearch:property:"
	testIndex  = "propsearch:properties:idx"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hdelFn         func(ctx context.Context, key string, fields ...string) error
	delFn          func(ctx context.Context, key string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn    func(ctx context.Context, name string) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
	searchKNNFn    func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchFilterFn func(ctx context.Context, q *db.FilterQuery) (*db.SearchResult, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HDel(ctx context.Context, key string, fields ...string) error {
	if m.hdelFn != nil {
		return m.hdelFn(ctx, key, fields...)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchFilter(ctx context.Context, q *db.FilterQuery) (*db.SearchResult, error) {
	if m.searchFilterFn != nil {
		return m.searchFilterFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, Config{
		IndexName:  testIndex,
		KeyPrefix:  testPrefix,
		Dimensions: testDims,
		Vector:     VectorIndexConfig{Algorithm: db.VectorHNSW, M: 16, EFConstruct: 200},
	})
	return repo, ms
}

func testProperty(t *testing.T) domprop.Property {
	t.Helper()
	return domprop.Property{
		ID:              "villa-1",
		Title:           map[domain.Locale]string{domain.LocaleEN: "Mountain villa", domain.LocaleTH: "วิลล่าบนภูเขา"},
		Description:     map[domain.Locale]string{domain.LocaleEN: "Quiet villa with a garden"},
		TransactionType: domprop.Rent,
		Type:            domprop.Villa,
		Bedrooms:        2,
		Bathrooms:       2,
		Area:            180.5,
		Price:           45000,
		Province:        "Chiang Mai",
		District:        "Mae Rim",
		Amenities: []domprop.Label{
			{ID: "pets_allowed", Names: map[domain.Locale]string{domain.LocaleEN: "Pets allowed"}},
			{ID: "pool", Names: map[domain.Locale]string{domain.LocaleEN: "Pool"}},
		},
		Tags:      []domprop.Label{{ID: "mountain-view", Names: map[domain.Locale]string{domain.LocaleEN: "Mountain view"}}},
		Published: true,
		Priority:  1,
		CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

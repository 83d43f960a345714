// Package ranking fuses filter matches and similarity hits into one ordered list.
package ranking

import (
	"cmp"
	"slices"

	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	"github.com/kailas-cloud/propsearch/internal/domain/search/strategy"
)

// DefaultBaseScore is the score every filter match starts from in hybrid ranking.
const DefaultBaseScore = 1.0

// Input carries the result sets of one request. Either may be empty.
type Input struct {
	// FilterMatches are in catalog order.
	FilterMatches []property.Property
	// Similar are similarity hits, highest first. A hit with FilterMatch set is known
	// to satisfy the filters even when it is absent from FilterMatches.
	Similar []result.Candidate
}

// Strategy orders candidates into scored hits.
type Strategy interface {
	Name() strategy.Strategy
	Rank(in Input) []result.Hit
}

// Basic keeps catalog order of the filter matches. Every hit scores DefaultBaseScore.
type Basic struct{}

// Name implements Strategy.
func (Basic) Name() strategy.Strategy { return strategy.Basic }

// Rank implements Strategy.
func (Basic) Rank(in Input) []result.Hit {
	hits := make([]result.Hit, 0, len(in.FilterMatches))
	for _, p := range in.FilterMatches {
		hits = append(hits, result.Hit{Property: p, Score: DefaultBaseScore})
	}
	slices.SortStableFunc(hits, func(a, b result.Hit) int {
		return property.CompareCatalogOrder(&a.Property, &b.Property)
	})
	return hits
}

// Vector orders similarity hits by score, ties in catalog order.
type Vector struct{}

// Name implements Strategy.
func (Vector) Name() strategy.Strategy { return strategy.Vector }

// Rank implements Strategy.
func (Vector) Rank(in Input) []result.Hit {
	hits := make([]result.Hit, 0, len(in.Similar))
	for _, c := range in.Similar {
		hits = append(hits, result.Hit{Property: c.Property, Score: c.Similarity})
	}
	slices.SortStableFunc(hits, func(a, b result.Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return property.CompareCatalogOrder(&a.Property, &b.Property)
	})
	return hits
}

// Hybrid adds similarity to a base score for filter matches.
// Similarity-only candidates score their raw similarity and always rank below every filter match.
type Hybrid struct {
	BaseScore float64
}

// NewHybrid returns a hybrid strategy with DefaultBaseScore.
func NewHybrid() Hybrid { return Hybrid{BaseScore: DefaultBaseScore} }

// Name implements Strategy.
func (Hybrid) Name() strategy.Strategy { return strategy.Hybrid }

// Rank implements Strategy.
func (h Hybrid) Rank(in Input) []result.Hit {
	merged := make(map[string]*result.Candidate, len(in.FilterMatches)+len(in.Similar))
	order := make([]string, 0, len(in.FilterMatches)+len(in.Similar))

	for _, p := range in.FilterMatches {
		if _, ok := merged[p.ID]; ok {
			continue
		}
		merged[p.ID] = &result.Candidate{Property: p, FilterMatch: true}
		order = append(order, p.ID)
	}
	for _, c := range in.Similar {
		if existing, ok := merged[c.Property.ID]; ok {
			existing.Similarity = max(existing.Similarity, c.Similarity)
			existing.FilterMatch = existing.FilterMatch || c.FilterMatch
			continue
		}
		merged[c.Property.ID] = &result.Candidate{
			Property:    c.Property,
			Similarity:  c.Similarity,
			FilterMatch: c.FilterMatch,
		}
		order = append(order, c.Property.ID)
	}

	candidates := make([]*result.Candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, merged[id])
	}

	slices.SortStableFunc(candidates, func(a, b *result.Candidate) int {
		if a.FilterMatch != b.FilterMatch {
			if a.FilterMatch {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(h.score(b), h.score(a)); c != 0 {
			return c
		}
		return property.CompareCatalogOrder(&a.Property, &b.Property)
	})

	hits := make([]result.Hit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, result.Hit{Property: c.Property, Score: h.score(c)})
	}
	return hits
}

func (h Hybrid) score(c *result.Candidate) float64 {
	if c.FilterMatch {
		return h.BaseScore + c.Similarity
	}
	return c.Similarity
}

// Registry maps strategy names to implementations.
type Registry struct {
	strategies map[strategy.Strategy]Strategy
}

// NewRegistry registers strategies by Name. Later entries replace earlier ones.
func NewRegistry(ss ...Strategy) *Registry {
	r := &Registry{strategies: make(map[strategy.Strategy]Strategy, len(ss))}
	for _, s := range ss {
		r.strategies[s.Name()] = s
	}
	return r
}

// DefaultRegistry holds Basic, Vector and a Hybrid with the default base score.
func DefaultRegistry() *Registry {
	return NewRegistry(Basic{}, Vector{}, NewHybrid())
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name strategy.Strategy) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

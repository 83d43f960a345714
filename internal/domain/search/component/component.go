// Package component names the optional pipeline stages a search may run.
package component

import "fmt"

// Component is a selectable search stage.
type Component string

// Search components.
const (
	FilterExtraction Component = "filter_extraction"
	VectorSearch     Component = "vector_search"
)

// All returns every component in pipeline order.
func All() []Component {
	return []Component{FilterExtraction, VectorSearch}
}

// IsValid checks if the component is known.
func (c Component) IsValid() bool {
	return c == FilterExtraction || c == VectorSearch
}

// Set is a selection of components.
type Set struct {
	filter bool
	vector bool
}

// NewSet builds a set from components, rejecting unknown names.
func NewSet(cs ...Component) (Set, error) {
	var s Set
	for _, c := range cs {
		switch c {
		case FilterExtraction:
			s.filter = true
		case VectorSearch:
			s.vector = true
		default:
			return Set{}, fmt.Errorf("unknown component %q", c)
		}
	}
	return s, nil
}

// Parse builds a set from raw names.
func Parse(names []string) (Set, error) {
	cs := make([]Component, len(names))
	for i, n := range names {
		cs[i] = Component(n)
	}
	return NewSet(cs...)
}

// Default selects every component.
func Default() Set {
	return Set{filter: true, vector: true}
}

// Has reports whether c is selected.
func (s Set) Has(c Component) bool {
	switch c {
	case FilterExtraction:
		return s.filter
	case VectorSearch:
		return s.vector
	default:
		return false
	}
}

// IsEmpty reports whether nothing is selected.
func (s Set) IsEmpty() bool { return !s.filter && !s.vector }

// List returns the selected components in pipeline order.
func (s Set) List() []Component {
	out := make([]Component, 0, 2)
	for _, c := range All() {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

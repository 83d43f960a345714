// Package filter is the storage-neutral predicate tree applied to catalog queries.
package filter

import (
	"errors"
	"fmt"
)

// MaxConditions is the maximum number of conditions per group.
const MaxConditions = 32

// Expression is an AND of must conditions and negated must-not conditions.
type Expression struct {
	must    []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditions {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditions)
	}
	if len(mustNot) > MaxConditions {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditions)
	}
	return Expression{must: must, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.mustNot) == 0
}

// And returns a copy of e with conds appended to the must group.
func (e Expression) And(conds ...Condition) Expression {
	must := make([]Condition, 0, len(e.must)+len(conds))
	must = append(must, e.must...)
	must = append(must, conds...)
	return Expression{must: must, mustNot: e.mustNot}
}

// AndNot returns a copy of e with conds appended to the must-not group.
func (e Expression) AndNot(conds ...Condition) Expression {
	mustNot := make([]Condition, 0, len(e.mustNot)+len(conds))
	mustNot = append(mustNot, e.mustNot...)
	mustNot = append(mustNot, conds...)
	return Expression{must: e.must, mustNot: mustNot}
}

// Kind discriminates condition variants.
type Kind int

const (
	// KindMatch is categorical equality.
	KindMatch Kind = iota + 1
	// KindAnyOf matches when the field shares at least one value with the list.
	KindAnyOf
	// KindRange is an inclusive numeric range.
	KindRange
)

// Condition is a single filter clause.
type Condition struct {
	key    string
	kind   Kind
	values []string
	rng    Range
}

// Match creates an exact categorical match condition.
func Match(key, value string) (Condition, error) {
	if key == "" {
		return Condition{}, errors.New("filter key is required")
	}
	if value == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, kind: KindMatch, values: []string{value}}, nil
}

// AnyOf creates an overlap condition. Empty and duplicate values are dropped.
func AnyOf(key string, values []string) (Condition, error) {
	if key == "" {
		return Condition{}, errors.New("filter key is required")
	}
	seen := make(map[string]struct{}, len(values))
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		clean = append(clean, v)
	}
	if len(clean) == 0 {
		return Condition{}, fmt.Errorf("at least one value is required for key %q", key)
	}
	return Condition{key: key, kind: KindAnyOf, values: clean}, nil
}

// InRange creates a numeric range condition.
func InRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, errors.New("filter key is required")
	}
	return Condition{key: key, kind: KindRange, rng: r}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Kind returns the condition variant.
func (c Condition) Kind() Kind { return c.kind }

// Values returns the match or overlap values.
func (c Condition) Values() []string { return c.values }

// Range returns the numeric range.
func (c Condition) Range() Range { return c.rng }

// Range is an inclusive numeric range; a nil bound is open.
type Range struct {
	min *float64
	max *float64
}

// NewRange validates and creates a Range. At least one bound is required and min must not exceed max.
func NewRange(minVal, maxVal *float64) (Range, error) {
	if minVal == nil && maxVal == nil {
		return Range{}, errors.New("at least one range bound is required")
	}
	if minVal != nil && maxVal != nil && *minVal > *maxVal {
		return Range{}, fmt.Errorf("range min %g exceeds max %g", *minVal, *maxVal)
	}
	return Range{min: minVal, max: maxVal}, nil
}

// Exactly creates a single-point range.
func Exactly(v float64) Range {
	return Range{min: &v, max: &v}
}

// Min returns the lower bound.
func (r Range) Min() *float64 { return r.min }

// Max returns the upper bound.
func (r Range) Max() *float64 { return r.max }

// Package extracted holds the structured filters produced from a natural-language query.
package extracted

import (
	"fmt"

	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/filter"
)

// Filters mirrors the filterable property attributes. Every field is optional; nil means unconstrained.
type Filters struct {
	TransactionType *property.TransactionType `json:"transaction_type,omitempty"`
	PropertyType    *property.Type            `json:"property_type,omitempty"`
	Bedrooms        *int                      `json:"bedrooms,omitempty"`
	MinBedrooms     *int                      `json:"min_bedrooms,omitempty"`
	Bathrooms       *int                      `json:"bathrooms,omitempty"`
	MinPrice        *float64                  `json:"min_price,omitempty"`
	MaxPrice        *float64                  `json:"max_price,omitempty"`
	MinArea         *float64                  `json:"min_area,omitempty"`
	MaxArea         *float64                  `json:"max_area,omitempty"`
	Province        *string                   `json:"province,omitempty"`
	District        *string                   `json:"district,omitempty"`
	Amenities       []string                  `json:"amenities,omitempty"`
	Tags            []string                  `json:"tags,omitempty"`
}

// IsEmpty reports whether no field is set.
func (f *Filters) IsEmpty() bool {
	return f.TransactionType == nil && f.PropertyType == nil &&
		f.Bedrooms == nil && f.MinBedrooms == nil && f.Bathrooms == nil &&
		f.MinPrice == nil && f.MaxPrice == nil && f.MinArea == nil && f.MaxArea == nil &&
		f.Province == nil && f.District == nil &&
		len(f.Amenities) == 0 && len(f.Tags) == 0
}

// Expression converts present fields into AND-combined predicates.
// Categorical fields become matches, counts and bounds become ranges, lists become overlaps.
func (f *Filters) Expression() (filter.Expression, error) {
	var conds []filter.Condition

	add := func(c filter.Condition, err error) error {
		if err != nil {
			return err
		}
		conds = append(conds, c)
		return nil
	}

	if f.TransactionType != nil {
		if err := add(filter.Match(property.FieldTransactionType, string(*f.TransactionType))); err != nil {
			return filter.Expression{}, err
		}
	}
	if f.PropertyType != nil {
		if err := add(filter.Match(property.FieldPropertyType, string(*f.PropertyType))); err != nil {
			return filter.Expression{}, err
		}
	}
	if f.Province != nil {
		if err := add(filter.Match(property.FieldProvince, *f.Province)); err != nil {
			return filter.Expression{}, err
		}
	}
	if f.District != nil {
		if err := add(filter.Match(property.FieldDistrict, *f.District)); err != nil {
			return filter.Expression{}, err
		}
	}

	switch {
	case f.Bedrooms != nil:
		if err := add(filter.InRange(property.FieldBedrooms, filter.Exactly(float64(*f.Bedrooms)))); err != nil {
			return filter.Expression{}, err
		}
	case f.MinBedrooms != nil:
		if err := addRange(&conds, property.FieldBedrooms, intToFloat(f.MinBedrooms), nil); err != nil {
			return filter.Expression{}, err
		}
	}
	if f.Bathrooms != nil {
		if err := add(filter.InRange(property.FieldBathrooms, filter.Exactly(float64(*f.Bathrooms)))); err != nil {
			return filter.Expression{}, err
		}
	}
	if err := addRange(&conds, property.FieldPrice, f.MinPrice, f.MaxPrice); err != nil {
		return filter.Expression{}, err
	}
	if err := addRange(&conds, property.FieldArea, f.MinArea, f.MaxArea); err != nil {
		return filter.Expression{}, err
	}

	if len(f.Amenities) > 0 {
		if err := add(filter.AnyOf(property.FieldAmenities, f.Amenities)); err != nil {
			return filter.Expression{}, err
		}
	}
	if len(f.Tags) > 0 {
		if err := add(filter.AnyOf(property.FieldTags, f.Tags)); err != nil {
			return filter.Expression{}, err
		}
	}

	expr, err := filter.NewExpression(conds, nil)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filters expression: %w", err)
	}
	return expr, nil
}

func addRange(conds *[]filter.Condition, key string, minVal, maxVal *float64) error {
	if minVal == nil && maxVal == nil {
		return nil
	}
	r, err := filter.NewRange(minVal, maxVal)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	c, err := filter.InRange(key, r)
	if err != nil {
		return err
	}
	*conds = append(*conds, c)
	return nil
}

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

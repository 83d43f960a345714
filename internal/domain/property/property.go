// Package property holds the catalog entity the search pipeline reads.
package property

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

// TransactionType is how a listing is offered.
type TransactionType string

// Transaction types.
const (
	Sale TransactionType = "sale"
	Rent TransactionType = "rent"
)

// IsValid checks if the transaction type is known.
func (t TransactionType) IsValid() bool {
	return t == Sale || t == Rent
}

// Type is the kind of property.
type Type string

// Property types.
const (
	Condo      Type = "condo"
	House      Type = "house"
	Villa      Type = "villa"
	Townhouse  Type = "townhouse"
	Apartment  Type = "apartment"
	Land       Type = "land"
	Commercial Type = "commercial"
)

// Types returns all property types in a stable order.
func Types() []Type {
	return []Type{Condo, House, Villa, Townhouse, Apartment, Land, Commercial}
}

// IsValid checks if the property type is known.
func (t Type) IsValid() bool {
	for _, v := range Types() {
		if t == v {
			return true
		}
	}
	return false
}

// Label is an amenity or tag with its per-locale display names.
type Label struct {
	ID    string                   `yaml:"id" json:"id"`
	Names map[domain.Locale]string `yaml:"names" json:"names,omitempty"`
}

// Name returns the label text for the locale, or "" when missing.
func (l Label) Name(loc domain.Locale) string {
	return strings.TrimSpace(l.Names[loc])
}

// Embedding is a stored vector together with the hash of the text it was computed from.
type Embedding struct {
	Vector     []float32
	SourceHash string
}

// Property is a catalog listing.
type Property struct {
	ID              string
	Title           map[domain.Locale]string
	Description     map[domain.Locale]string
	TransactionType TransactionType
	Type            Type
	Bedrooms        int
	Bathrooms       int
	Area            float64
	Price           float64
	Province        string
	District        string
	Amenities       []Label
	Tags            []Label
	Published       bool
	Deleted         bool
	Priority        int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Embeddings      map[domain.Locale]Embedding
}

// Validate checks the catalog invariants needed for indexing.
func (p *Property) Validate() error {
	if p.ID == "" {
		return errors.New("property id is required")
	}
	if !domain.IsValidKeyPart(p.ID) {
		return fmt.Errorf("property id %q contains invalid characters", p.ID)
	}
	if p.TransactionType != "" && !p.TransactionType.IsValid() {
		return fmt.Errorf("invalid transaction type %q", p.TransactionType)
	}
	if p.Type != "" && !p.Type.IsValid() {
		return fmt.Errorf("invalid property type %q", p.Type)
	}
	if p.Bedrooms < 0 || p.Bathrooms < 0 || p.Area < 0 || p.Price < 0 {
		return errors.New("numeric attributes must not be negative")
	}
	return nil
}

// Searchable reports whether the listing may appear in search results.
func (p *Property) Searchable() bool {
	return p.Published && !p.Deleted
}

// AmenityIDs returns amenity identifiers in catalog order.
func (p *Property) AmenityIDs() []string { return labelIDs(p.Amenities) }

// TagIDs returns tag identifiers in catalog order.
func (p *Property) TagIDs() []string { return labelIDs(p.Tags) }

// LocalizedTitle returns the title for loc, falling back to the default locale.
func (p *Property) LocalizedTitle(loc domain.Locale) string {
	return localized(p.Title, loc)
}

// LocalizedDescription returns the description for loc, falling back to the default locale.
func (p *Property) LocalizedDescription(loc domain.Locale) string {
	return localized(p.Description, loc)
}

// SortKey encodes priority-then-recency as one descending numeric key.
func (p *Property) SortKey() float64 {
	var created int64
	if !p.CreatedAt.IsZero() {
		created = p.CreatedAt.Unix()
	}
	return float64(p.Priority)*1e10 + float64(created)
}

// CompareCatalogOrder orders a before b when a has higher priority, then is newer, then has the lower id.
func CompareCatalogOrder(a, b *Property) int {
	if c := cmp.Compare(b.SortKey(), a.SortKey()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func labelIDs(labels []Label) []string {
	if len(labels) == 0 {
		return nil
	}
	ids := make([]string, 0, len(labels))
	for _, l := range labels {
		if l.ID != "" {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

func localized(m map[domain.Locale]string, loc domain.Locale) string {
	if v := strings.TrimSpace(m[loc]); v != "" {
		return v
	}
	return strings.TrimSpace(m[domain.DefaultLocale])
}

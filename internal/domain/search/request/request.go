package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/search/component"
	"github.com/kailas-cloud/propsearch/internal/domain/search/strategy"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in characters.
	MaxQueryLength = 1000
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Request is a validated search query.
type Request struct {
	query      string
	locale     domain.Locale
	page       int
	perPage    int
	components component.Set
	ranking    strategy.Strategy
}

// New validates search parameters. Out-of-range values are rejected, never clamped.
// An empty locale means the default locale; an empty strategy means auto.
func New(
	query string,
	loc domain.Locale,
	page, perPage int,
	components component.Set,
	ranking strategy.Strategy,
) (Request, error) {
	var fields []domain.FieldError

	if utf8.RuneCountInString(query) > MaxQueryLength {
		fields = append(fields, domain.FieldError{
			Field: "query", Message: fmt.Sprintf("must be at most %d characters", MaxQueryLength),
		})
	}
	if loc == "" {
		loc = domain.DefaultLocale
	}
	if !loc.IsValid() {
		fields = append(fields, domain.FieldError{Field: "locale", Message: "must be one of en, th"})
	}
	if page < 1 {
		fields = append(fields, domain.FieldError{Field: "page", Message: "must be >= 1"})
	}
	if perPage < 1 || perPage > MaxPerPage {
		fields = append(fields, domain.FieldError{
			Field: "per_page", Message: fmt.Sprintf("must be between 1 and %d", MaxPerPage),
		})
	}
	if components.IsEmpty() {
		fields = append(fields, domain.FieldError{Field: "components", Message: "must select at least one component"})
	}
	if !ranking.IsValid() {
		fields = append(fields, domain.FieldError{Field: "ranking", Message: "must be one of basic, vector, hybrid"})
	}

	if len(fields) > 0 {
		return Request{}, domain.NewValidationError(fields...)
	}

	return Request{
		query:      strings.TrimSpace(query),
		locale:     loc,
		page:       page,
		perPage:    perPage,
		components: components,
		ranking:    ranking,
	}, nil
}

// Query returns the trimmed query text.
func (r *Request) Query() string { return r.query }

// Locale returns the content locale.
func (r *Request) Locale() domain.Locale { return r.locale }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// PerPage returns the page size.
func (r *Request) PerPage() int { return r.perPage }

// Components returns the selected stages.
func (r *Request) Components() component.Set { return r.components }

// Ranking returns the requested strategy.
func (r *Request) Ranking() strategy.Strategy { return r.ranking }

// Offset returns the zero-based index of the first result on the page.
func (r *Request) Offset() int { return (r.page - 1) * r.perPage }

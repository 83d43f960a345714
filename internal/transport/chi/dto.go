package chi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/search/component"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
	"github.com/kailas-cloud/propsearch/internal/domain/search/request"
	"github.com/kailas-cloud/propsearch/internal/domain/search/result"
	"github.com/kailas-cloud/propsearch/internal/domain/search/strategy"
)

// searchRequest is the body of POST /v1/search.
type searchRequest struct {
	Query      *string  `json:"query" validate:"omitnil,max=1000"`
	Locale     string   `json:"locale" validate:"omitempty,oneof=en th"`
	Page       *int     `json:"page" validate:"omitnil,min=1"`
	PerPage    *int     `json:"per_page" validate:"omitnil,min=1,max=100"`
	Components []string `json:"components" validate:"omitnil,min=1,dive,oneof=filter_extraction vector_search"`
	Ranking    string   `json:"ranking" validate:"omitempty,oneof=basic vector hybrid"`
}

type searchResponse struct {
	Properties []propertyItem `json:"properties"`
	Pagination paginationDTO  `json:"pagination"`
	Metadata   metadataDTO    `json:"metadata"`
}

type propertyItem struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	TransactionType string   `json:"transaction_type"`
	PropertyType    string   `json:"property_type"`
	Bedrooms        int      `json:"bedrooms"`
	Bathrooms       int      `json:"bathrooms"`
	Area            float64  `json:"area"`
	Price           float64  `json:"price"`
	Province        string   `json:"province,omitempty"`
	District        string   `json:"district,omitempty"`
	Amenities       []string `json:"amenities"`
	Tags            []string `json:"tags"`
	Score           float64  `json:"score"`
}

type paginationDTO struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

type metadataDTO struct {
	Query              string             `json:"query"`
	ComponentsUsed     []string           `json:"components_used"`
	DegradedComponents []string           `json:"degraded_components,omitempty"`
	RankingStrategy    string             `json:"ranking_strategy"`
	ExtractedFilters   *extracted.Filters `json:"extracted_filters,omitempty"`
	VectorSearch       *vectorStatsDTO    `json:"vector_search,omitempty"`
}

type vectorStatsDTO struct {
	ResultsCount  int     `json:"results_count"`
	TopScore      float64 `json:"top_score"`
	EmbeddingMode string  `json:"embedding_mode"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// toDomain validates the body and applies defaults.
func (r *searchRequest) toDomain(v *validator.Validate) (request.Request, error) {
	var fields []domain.FieldError
	// An empty query is valid, an absent one is not.
	if r.Query == nil {
		fields = append(fields, domain.FieldError{Field: "query", Message: "is required"})
	}
	if err := v.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return request.Request{}, fmt.Errorf("validate request: %w", err)
		}
		fields = append(fields, fieldErrors(verrs)...)
	}
	if len(fields) > 0 {
		return request.Request{}, domain.NewValidationError(fields...)
	}

	page, perPage := request.DefaultPage, request.DefaultPerPage
	if r.Page != nil {
		page = *r.Page
	}
	if r.PerPage != nil {
		perPage = *r.PerPage
	}

	comps := component.Default()
	if r.Components != nil {
		var err error
		if comps, err = component.Parse(r.Components); err != nil {
			return request.Request{}, domain.NewValidationError(domain.FieldError{
				Field: "components", Message: err.Error(),
			})
		}
	}

	ranking := strategy.Hybrid
	if r.Ranking != "" {
		ranking = strategy.Strategy(r.Ranking)
	}

	return request.New(*r.Query, domain.Locale(r.Locale), page, perPage, comps, ranking)
}

func fieldErrors(verrs validator.ValidationErrors) []domain.FieldError {
	out := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		out = append(out, domain.FieldError{Field: field, Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must select at least " + fe.Param()
		}
		return "must be >= " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

func searchResponseFrom(res *result.SearchResult, loc domain.Locale) searchResponse {
	items := make([]propertyItem, 0, len(res.Hits))
	for i := range res.Hits {
		items = append(items, propertyItemFrom(&res.Hits[i], loc))
	}

	m := res.Metadata
	meta := metadataDTO{
		Query:              m.Query,
		ComponentsUsed:     componentNames(m.ComponentsUsed),
		DegradedComponents: componentNames(m.DegradedComponents),
		RankingStrategy:    string(m.RankingStrategy),
		ExtractedFilters:   m.ExtractedFilters,
	}
	if len(meta.DegradedComponents) == 0 {
		meta.DegradedComponents = nil
	}
	if m.VectorSearch != nil {
		meta.VectorSearch = &vectorStatsDTO{
			ResultsCount:  m.VectorSearch.ResultsCount,
			TopScore:      m.VectorSearch.TopScore,
			EmbeddingMode: string(m.VectorSearch.Mode),
		}
	}

	return searchResponse{
		Properties: items,
		Pagination: paginationDTO{
			Total:   res.Pagination.Total,
			Page:    res.Pagination.Page,
			PerPage: res.Pagination.PerPage,
			Pages:   res.Pagination.Pages,
		},
		Metadata: meta,
	}
}

func propertyItemFrom(h *result.Hit, loc domain.Locale) propertyItem {
	p := &h.Property
	amenities := p.AmenityIDs()
	if amenities == nil {
		amenities = []string{}
	}
	tags := p.TagIDs()
	if tags == nil {
		tags = []string{}
	}
	return propertyItem{
		ID:              p.ID,
		Title:           p.LocalizedTitle(loc),
		Description:     p.LocalizedDescription(loc),
		TransactionType: string(p.TransactionType),
		PropertyType:    string(p.Type),
		Bedrooms:        p.Bedrooms,
		Bathrooms:       p.Bathrooms,
		Area:            p.Area,
		Price:           p.Price,
		Province:        p.Province,
		District:        p.District,
		Amenities:       amenities,
		Tags:            tags,
		Score:           h.Score,
	}
}

func componentNames(cs []component.Component) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}

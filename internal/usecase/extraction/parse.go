package extraction

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
	"github.com/kailas-cloud/propsearch/internal/domain/search/extracted"
)

const (
	maxTags     = 10
	maxRooms    = 50
	maxPlaceLen = 100
)

var transactionSynonyms = map[string]property.TransactionType{
	"sale":     property.Sale,
	"sell":     property.Sale,
	"buy":      property.Sale,
	"purchase": property.Sale,
	"for sale": property.Sale,
	"rent":     property.Rent,
	"rental":   property.Rent,
	"lease":    property.Rent,
	"let":      property.Rent,
	"for rent": property.Rent,
}

var typeSynonyms = map[string]property.Type{
	"condominium": property.Condo,
	"flat":        property.Apartment,
	"home":        property.House,
	"bungalow":    property.House,
	"townhome":    property.Townhouse,
	"shophouse":   property.Commercial,
	"office":      property.Commercial,
	"plot":        property.Land,
}

// stripFences removes markdown code fences around a model response.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseFilters decodes a model response. A response that is not a JSON object is ErrMalformedModelOutput;
// invalid individual fields are dropped.
func parseFilters(content string, vocabulary map[string]struct{}) (extracted.Filters, error) {
	body := stripFences(content)
	if body == "" {
		return extracted.Filters{}, fmt.Errorf("empty response: %w", domain.ErrMalformedModelOutput)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return extracted.Filters{}, fmt.Errorf("decode response: %w: %w", domain.ErrMalformedModelOutput, err)
	}
	if raw == nil {
		return extracted.Filters{}, fmt.Errorf("response is null: %w", domain.ErrMalformedModelOutput)
	}

	var f extracted.Filters
	f.TransactionType = coerceTransaction(raw["transaction_type"])
	f.PropertyType = coerceType(raw["property_type"])
	f.Bedrooms = coerceCount(raw["bedrooms"])
	f.MinBedrooms = coerceCount(raw["min_bedrooms"])
	if f.Bedrooms != nil {
		f.MinBedrooms = nil
	}
	f.Bathrooms = coerceCount(raw["bathrooms"])
	f.MinPrice, f.MaxPrice = coerceBounds(raw["min_price"], raw["max_price"])
	f.MinArea, f.MaxArea = coerceBounds(raw["min_area"], raw["max_area"])
	f.Province = coercePlace(raw["province"])
	f.District = coercePlace(raw["district"])
	f.Amenities = coerceAmenities(raw["amenities"], vocabulary)
	f.Tags = coerceTags(raw["tags"])

	return f, nil
}

func coerceTransaction(v any) *property.TransactionType {
	s, ok := lowerString(v)
	if !ok {
		return nil
	}
	t, ok := transactionSynonyms[s]
	if !ok {
		return nil
	}
	return &t
}

func coerceType(v any) *property.Type {
	s, ok := lowerString(v)
	if !ok {
		return nil
	}
	t := property.Type(s)
	if !t.IsValid() {
		syn, found := typeSynonyms[s]
		if !found {
			return nil
		}
		t = syn
	}
	return &t
}

func coerceCount(v any) *int {
	n, ok := number(v)
	if !ok || n < 0 || n > maxRooms || n != math.Trunc(n) {
		return nil
	}
	i := int(n)
	return &i
}

// coerceBounds drops negative bounds and an inverted pair as a whole.
func coerceBounds(minRaw, maxRaw any) (minVal, maxVal *float64) {
	if n, ok := number(minRaw); ok && n >= 0 {
		minVal = &n
	}
	if n, ok := number(maxRaw); ok && n >= 0 {
		maxVal = &n
	}
	if minVal != nil && maxVal != nil && *minVal > *maxVal {
		return nil, nil
	}
	return minVal, maxVal
}

func coercePlace(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || len(s) > maxPlaceLen || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func coerceAmenities(v any, vocabulary map[string]struct{}) []string {
	var out []string
	for _, s := range stringList(v) {
		id := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
		id = strings.ReplaceAll(id, "-", "_")
		if _, ok := vocabulary[id]; !ok || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func coerceTags(v any) []string {
	var out []string
	for _, s := range stringList(v) {
		tag := slugify(s)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// slugify lower-cases s and joins runs of letters, marks and digits with "-".
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

func lowerString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	return s, s != ""
}

// number accepts JSON numbers and numeric strings.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", ""), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// stringList accepts a list of strings or a single string; other items are ignored.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

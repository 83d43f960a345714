package extraction

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/domain/property"
)

// DefaultAmenities is the amenity vocabulary used when none is configured.
var DefaultAmenities = []string{
	"pets_allowed", "pool", "gym", "parking", "garden", "balcony", "security",
	"furnished", "air_conditioning", "elevator", "kitchen", "wifi", "coworking",
	"sea_view", "mountain_view",
}

const schemaTemplate = `{
  "transaction_type": "sale" | "rent" | null,
  "property_type": %s | null,
  "bedrooms": integer | null,
  "min_bedrooms": integer | null,
  "bathrooms": integer | null,
  "min_price": number | null,
  "max_price": number | null,
  "min_area": number | null,
  "max_area": number | null,
  "province": string | null,
  "district": string | null,
  "amenities": [string],
  "tags": [string]
}`

const systemPromptTemplate = `You turn a real-estate search query into search filters.

Output ONLY one JSON object that follows this schema. No preamble, no explanation, no code fences.
Omit a field or set it to null when the query does not constrain it. Never guess a value you cannot infer.

%s

Rules:
- transaction_type: "sale" for buy/purchase, "rent" for rent/rental/lease. Omit when unclear.
- bedrooms is an exact count, min_bedrooms is a lower bound. Set at most one of them.
- Occupancy hints: a couple, partner, girlfriend, boyfriend, wife or husband means bedrooms 2;
  a family or kids means min_bedrooms 3; solo, single or "just me" means bedrooms 1.
- Prices are in Thai baht. "5M" means 5000000, "20k" means 20000.
- Area is in square meters.
- province and district are place names written in English, e.g. "Chiang Mai", "Phuket".
- amenities must only use these ids: %s.
  Pets (dog, cat, puppy, pet) mean "pets_allowed".
- tags are short lowercase keywords for setting and lifestyle: mountain, beach, city, quiet, nature,
  nightlife, family-friendly, luxury. At most 10.
- These inferences are hints for ranking, not hard requirements; keep them minimal.
- The query may be written in English or Thai. Output values in English.

Example:
Input: "2BR villa with pool in Phuket, quiet"
Output: {"property_type":"villa","bedrooms":2,"province":"Phuket","amenities":["pool"],"tags":["quiet"]}

Example:
Input: "big space for gf and dog, mountains"
Output: {"bedrooms":2,"amenities":["pets_allowed"],"tags":["mountain"]}`

// buildSystemPrompt renders the instructions for the given amenity vocabulary.
func buildSystemPrompt(amenities []string) string {
	types := make([]string, 0, len(property.Types()))
	for _, t := range property.Types() {
		types = append(types, fmt.Sprintf("%q", string(t)))
	}
	schema := fmt.Sprintf(schemaTemplate, strings.Join(types, " | "))
	return fmt.Sprintf(systemPromptTemplate, schema, strings.Join(amenities, ", "))
}

func buildUserPrompt(query string, loc domain.Locale) string {
	return fmt.Sprintf("Locale: %s\nInput: %q", loc, query)
}

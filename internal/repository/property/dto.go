package property

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/propsearch/internal/domain"
	domprop "github.com/kailas-cloud/propsearch/internal/domain/property"
)

const (
	labelSeparator = ","

	fieldAmenityNames = "amenities_json"
	fieldTagNames     = "tags_json"
	fieldUpdatedAt    = "updated_at"
)

func titleField(loc domain.Locale) string       { return "title_" + string(loc) }
func descriptionField(loc domain.Locale) string { return "description_" + string(loc) }

// metaFields lists every stored attribute except raw vectors (RETURN clause for listing queries).
func metaFields() []string {
	fields := []string{
		domprop.FieldID,
		domprop.FieldTransactionType, domprop.FieldPropertyType,
		domprop.FieldBedrooms, domprop.FieldBathrooms, domprop.FieldArea, domprop.FieldPrice,
		domprop.FieldProvince, domprop.FieldDistrict,
		domprop.FieldAmenities, fieldAmenityNames, domprop.FieldTags, fieldTagNames,
		domprop.FieldPublished, domprop.FieldDeleted, domprop.FieldPriority,
		domprop.FieldCreatedAt, fieldUpdatedAt, domprop.FieldSortKey,
	}
	for _, loc := range domain.Locales() {
		fields = append(fields, titleField(loc), descriptionField(loc), domprop.VectorHashField(loc))
	}
	return fields
}

// toHash flattens a property into HSET fields. Vectors are written separately.
func toHash(p *domprop.Property) map[string]string {
	m := map[string]string{
		domprop.FieldID:              p.ID,
		domprop.FieldTransactionType: string(p.TransactionType),
		domprop.FieldPropertyType:    string(p.Type),
		domprop.FieldBedrooms:        strconv.Itoa(p.Bedrooms),
		domprop.FieldBathrooms:       strconv.Itoa(p.Bathrooms),
		domprop.FieldArea:            formatFloat(p.Area),
		domprop.FieldPrice:           formatFloat(p.Price),
		domprop.FieldProvince:        p.Province,
		domprop.FieldDistrict:        p.District,
		domprop.FieldAmenities:       strings.Join(p.AmenityIDs(), labelSeparator),
		fieldAmenityNames:            marshalLabels(p.Amenities),
		domprop.FieldTags:            strings.Join(p.TagIDs(), labelSeparator),
		fieldTagNames:                marshalLabels(p.Tags),
		domprop.FieldPublished:       strconv.FormatBool(p.Published),
		domprop.FieldDeleted:         strconv.FormatBool(p.Deleted),
		domprop.FieldPriority:        strconv.Itoa(p.Priority),
		domprop.FieldCreatedAt:       formatUnix(p.CreatedAt),
		fieldUpdatedAt:               formatUnix(p.UpdatedAt),
		domprop.FieldSortKey:         formatFloat(p.SortKey()),
	}
	for _, loc := range domain.Locales() {
		m[titleField(loc)] = p.Title[loc]
		m[descriptionField(loc)] = p.Description[loc]
	}
	return m
}

// fromHash rebuilds a property from hash or FT.SEARCH fields. Missing fields stay zero.
func fromHash(id string, m map[string]string) domprop.Property {
	p := domprop.Property{
		ID:              id,
		Title:           make(map[domain.Locale]string, 2),
		Description:     make(map[domain.Locale]string, 2),
		TransactionType: domprop.TransactionType(m[domprop.FieldTransactionType]),
		Type:            domprop.Type(m[domprop.FieldPropertyType]),
		Bedrooms:        atoi(m[domprop.FieldBedrooms]),
		Bathrooms:       atoi(m[domprop.FieldBathrooms]),
		Area:            atof(m[domprop.FieldArea]),
		Price:           atof(m[domprop.FieldPrice]),
		Province:        m[domprop.FieldProvince],
		District:        m[domprop.FieldDistrict],
		Amenities:       unmarshalLabels(m[fieldAmenityNames], m[domprop.FieldAmenities]),
		Tags:            unmarshalLabels(m[fieldTagNames], m[domprop.FieldTags]),
		Published:       m[domprop.FieldPublished] == "true",
		Deleted:         m[domprop.FieldDeleted] == "true",
		Priority:        atoi(m[domprop.FieldPriority]),
		CreatedAt:       parseUnix(m[domprop.FieldCreatedAt]),
		UpdatedAt:       parseUnix(m[fieldUpdatedAt]),
	}
	if stored := m[domprop.FieldID]; stored != "" {
		p.ID = stored
	}

	for _, loc := range domain.Locales() {
		if v := m[titleField(loc)]; v != "" {
			p.Title[loc] = v
		}
		if v := m[descriptionField(loc)]; v != "" {
			p.Description[loc] = v
		}
		hash := m[domprop.VectorHashField(loc)]
		raw, hasVec := m[domprop.VectorField(loc)]
		if hash == "" && !hasVec {
			continue
		}
		if p.Embeddings == nil {
			p.Embeddings = make(map[domain.Locale]domprop.Embedding, 2)
		}
		p.Embeddings[loc] = domprop.Embedding{Vector: bytesToVector(raw), SourceHash: hash}
	}
	return p
}

func marshalLabels(labels []domprop.Label) string {
	if len(labels) == 0 {
		return ""
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return ""
	}
	return string(b)
}

// unmarshalLabels prefers the JSON names blob and falls back to bare ids from the TAG field.
func unmarshalLabels(blob, ids string) []domprop.Label {
	if blob != "" {
		var labels []domprop.Label
		if err := json.Unmarshal([]byte(blob), &labels); err == nil {
			return labels
		}
	}
	if ids == "" {
		return nil
	}
	parts := strings.Split(ids, labelSeparator)
	labels := make([]domprop.Label, 0, len(parts))
	for _, id := range parts {
		if id = strings.TrimSpace(id); id != "" {
			labels = append(labels, domprop.Label{ID: id})
		}
	}
	return labels
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

func bytesToVector(s string) []float32 {
	if len(s) == 0 || len(s)%4 != 0 {
		return nil
	}
	b := []byte(s)
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatUnix(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

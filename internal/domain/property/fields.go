package property

import "github.com/kailas-cloud/propsearch/internal/domain"

// Attribute names shared by filters and storage.
const (
	FieldID              = "id"
	FieldTransactionType = "transaction_type"
	FieldPropertyType    = "property_type"
	FieldBedrooms        = "bedrooms"
	FieldBathrooms       = "bathrooms"
	FieldArea            = "area"
	FieldPrice           = "price"
	FieldProvince        = "province"
	FieldDistrict        = "district"
	FieldAmenities       = "amenities"
	FieldTags            = "tags"
	FieldPublished       = "published"
	FieldDeleted         = "deleted"
	FieldPriority        = "priority"
	FieldCreatedAt       = "created_at"
	FieldSortKey         = "sort_key"
)

// VectorField is the stored vector attribute for a locale.
func VectorField(loc domain.Locale) string {
	return "vec_" + string(loc)
}

// VectorHashField is the freshness hash stored next to a locale's vector.
func VectorHashField(loc domain.Locale) string {
	return "vec_" + string(loc) + "_hash"
}

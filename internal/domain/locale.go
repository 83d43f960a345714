package domain

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "propsearch:"

// Locale is a supported content language.
type Locale string

// Supported locales.
const (
	LocaleEN Locale = "en"
	LocaleTH Locale = "th"
)

// DefaultLocale is used when a request omits the locale.
const DefaultLocale = LocaleEN

// Locales returns all supported locales in a stable order.
func Locales() []Locale {
	return []Locale{LocaleEN, LocaleTH}
}

// IsValid checks if the locale is supported.
func (l Locale) IsValid() bool {
	return l == LocaleEN || l == LocaleTH
}

package property

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

// EmbeddingText composes the locale-specific text a property is embedded from:
// title, description, amenity labels and tag labels. Missing parts are skipped.
func (p *Property) EmbeddingText(loc domain.Locale) string {
	parts := make([]string, 0, 4)

	if t := strings.TrimSpace(p.Title[loc]); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(p.Description[loc]); d != "" {
		parts = append(parts, d)
	}
	if names := labelNames(p.Amenities, loc); len(names) > 0 {
		parts = append(parts, "Amenities: "+strings.Join(names, ", "))
	}
	if names := labelNames(p.Tags, loc); len(names) > 0 {
		parts = append(parts, "Tags: "+strings.Join(names, ", "))
	}

	return strings.Join(parts, "\n")
}

// SourceHash fingerprints the embedding input together with the model that embeds it.
func SourceHash(model, text string) string {
	h := sha256.Sum256([]byte(model + "\n" + text))
	return hex.EncodeToString(h[:])
}

// EmbeddingCurrent reports whether the stored vector for loc was computed from text with hash.
func (p *Property) EmbeddingCurrent(loc domain.Locale, hash string) bool {
	e, ok := p.Embeddings[loc]
	return ok && len(e.Vector) > 0 && e.SourceHash == hash
}

func labelNames(labels []Label, loc domain.Locale) []string {
	var names []string
	for _, l := range labels {
		if n := l.Name(loc); n != "" {
			names = append(names, n)
		}
	}
	return names
}

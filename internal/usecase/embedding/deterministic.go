package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

// HashModel is the model id recorded for hash-derived vectors.
const HashModel = "sha256-hash-v1"

// HashEmbedder derives a reproducible pseudo-random unit vector from the text.
// The vectors are stable but carry no meaning.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a deterministic embedder producing dims-length vectors.
func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{dims: dims}
}

// Embed implements domain.Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	vec, _ := domain.Normalize(h.raw(text))
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// BatchEmbed implements domain.BatchEmbedder.
func (h *HashEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchFallback(ctx, h, texts)
}

// HealthCheck always succeeds.
func (h *HashEmbedder) HealthCheck(context.Context) error { return nil }

// raw expands sha256(canonical text) into dims values in [-1, 1] with a counter-mode sha256 stream.
func (h *HashEmbedder) raw(text string) []float32 {
	seed := sha256.Sum256([]byte(canonical(text)))

	out := make([]float32, 0, h.dims)
	block := make([]byte, len(seed)+4)
	copy(block, seed[:])

	for counter := uint32(0); len(out) < h.dims; counter++ {
		binary.BigEndian.PutUint32(block[len(seed):], counter)
		sum := sha256.Sum256(block)
		for i := 0; i+4 <= len(sum) && len(out) < h.dims; i += 4 {
			u := binary.BigEndian.Uint32(sum[i : i+4])
			out = append(out, float32(float64(u)/math.MaxUint32*2-1))
		}
	}
	return out
}

// canonical lower-cases text and collapses whitespace.
func canonical(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// OfflineModelName identifies vectors produced by the offline embedder, so
// cached cloud embeddings are never mixed with hashed ones.
const OfflineModelName = "offline-hash-v1"

// OfflineService produces deterministic embeddings with no network access.
// Tokens are hashed into buckets with a hash-derived sign and the resulting
// vector is L2-normalized. Identical texts map to identical vectors and
// token overlap yields nearby vectors, which is enough for catalog search
// in local runs and tests.
type OfflineService struct {
	dimension int
}

// NewOfflineService creates a deterministic embedder with the given
// dimensionality.
func NewOfflineService(dimension int) *OfflineService {
	return &OfflineService{dimension: dimension}
}

// GenerateEmbedding hashes the text tokens into a normalized vector.
func (s *OfflineService) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, s.dimension)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(s.dimension))
		if sum&(1<<63) != 0 {
			vector[bucket] -= 1
		} else {
			vector[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector, nil
}

// Dimension returns the configured output dimensionality.
func (s *OfflineService) Dimension() int {
	return s.dimension
}

// ModelName returns the offline embedder identifier.
func (s *OfflineService) ModelName() string {
	return OfflineModelName
}

// Close is a no-op for the offline embedder.
func (s *OfflineService) Close() error {
	return nil
}

// tokenize lowercases the text and splits it on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

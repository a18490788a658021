package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// HashEmbedder generates deterministic pseudo-random unit vectors from a
// text hash. It carries no semantics; it exists so the server runs fully
// offline and so tests get a stable Embedder without model files.
type HashEmbedder struct {
	dimensions int
}

// NewHash returns a hash embedder with the given dimensionality.
// Dimension 384 matches all-MiniLM-L6-v2 so swapping to a real model
// leaves cached sizes plausible.
func NewHash(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	hasher := fnv.New64a()
	hasher.Write([]byte(text))
	seed := hasher.Sum64()

	vec := make([]float32, h.dimensions)
	for i := range vec {
		// LCG stream seeded by the text hash keeps output deterministic.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return Normalize(vec), nil
}

func (h *HashEmbedder) Dimensions() int { return h.dimensions }

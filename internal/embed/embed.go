// Package embed defines the text-to-vector boundary used by retrieval.
//
// An Embedder is a pure function from the caller's perspective: the same
// text always yields the same vector, and concurrent calls are safe. The
// first call may be slow (model load); everything after is stateless.
package embed

import (
	"context"
	"math"
)

// Embedder maps a text string to a fixed-dimension embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Normalize scales vec to unit length in place-safe fashion. A zero
// vector comes back unchanged.
func Normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

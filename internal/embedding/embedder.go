// Package embedding turns free text into fixed-length vectors. Two
// implementations are provided: a deterministic feature-hashing embedder
// that needs no model files, and a client for a remote embeddings service.
package embedding

import (
	"context"
	"math"
)

// Embedder maps a single string to a vector of length Dimension().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// Normalize scales v to unit length in place. A zero vector is left as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
	return v
}

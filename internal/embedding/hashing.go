package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	apperrors "github.com/chameleon-ai/chameleon/pkg/errors"
)

const bigramWeight = 0.5

// Hashing is a signed feature-hashing embedder over stemmed unigrams and
// adjacent-term bigrams. Output is L2-normalised and fully deterministic.
type Hashing struct {
	dim int
}

// NewHashing returns a hashing embedder producing dim-length vectors.
func NewHashing(dim int) (*Hashing, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hashing embedder dimension must be positive, got %d", dim)
	}
	return &Hashing{dim: dim}, nil
}

func (h *Hashing) Name() string   { return "hashing" }
func (h *Hashing) Dimension() int { return h.dim }

// Embed returns ErrEncoding when text has no usable terms.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := Terms(text)
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: no terms in input", apperrors.ErrEncoding)
	}
	vec := make([]float32, h.dim)
	for i, term := range terms {
		h.add(vec, term, 1)
		if i > 0 {
			h.add(vec, terms[i-1]+" "+term, bigramWeight)
		}
	}
	return Normalize(vec), nil
}

func (h *Hashing) add(vec []float32, feature string, weight float32) {
	f := fnv.New64a()
	f.Write([]byte(feature))
	sum := f.Sum64()
	bucket := sum % uint64(h.dim)
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// Package classifier scores embedding vectors against a fixed set of topic
// classes. Implementations are batch oriented: Predict takes N rows of
// InputDim() values and returns N rows of NumClasses() probabilities.
package classifier

import (
	"context"
	"fmt"
	"math"
)

// Classifier maps vectors to class probability distributions.
type Classifier interface {
	Predict(ctx context.Context, batch [][]float32) ([][]float64, error)
	InputDim() int
	NumClasses() int
}

// Argmax returns the index of the largest value. Ties go to the lowest
// index. It returns -1 for an empty slice.
func Argmax(probs []float64) int {
	best := -1
	for i, p := range probs {
		if best == -1 || p > probs[best] {
			best = i
		}
	}
	return best
}

// ValidateProbabilities checks that out is a single row of k finite values.
func ValidateProbabilities(out [][]float64, k int) error {
	if len(out) != 1 {
		return fmt.Errorf("expected 1 output row, got %d", len(out))
	}
	if len(out[0]) != k {
		return fmt.Errorf("expected %d class scores, got %d", k, len(out[0]))
	}
	for i, p := range out[0] {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("class %d score is not finite: %v", i, p)
		}
	}
	return nil
}

func checkBatch(batch [][]float32, dim int) error {
	if len(batch) == 0 {
		return fmt.Errorf("empty batch")
	}
	for i, row := range batch {
		if len(row) != dim {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), dim)
		}
	}
	return nil
}

// softmax writes the normalised exponentials of in to a new slice.
func softmax(in []float64) []float64 {
	out := make([]float64, len(in))
	if len(in) == 0 {
		return out
	}
	maxV := in[0]
	for _, v := range in[1:] {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range in {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

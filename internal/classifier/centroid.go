package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/chameleon-ai/chameleon/internal/corpus"
	"github.com/chameleon-ai/chameleon/internal/embedding"
)

// Centroid scores a vector by cosine similarity to the mean embedding of
// each topic's documents, scaled by temperature and passed through softmax.
type Centroid struct {
	centroids   [][]float64
	dim         int
	temperature float64
}

// NewCentroid embeds every document in store and averages them per topic.
// A topic without documents gets a zero centroid and always scores 0.
func NewCentroid(ctx context.Context, emb embedding.Embedder, store *corpus.Store, k int, temperature float64) (*Centroid, error) {
	if k <= 0 {
		return nil, fmt.Errorf("centroid classifier needs at least one class")
	}
	if temperature <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %v", temperature)
	}
	dim := emb.Dimension()
	centroids := make([][]float64, k)
	for i := range centroids {
		centroids[i] = make([]float64, dim)
	}
	for i, doc := range store.All() {
		if doc.TopicIndex < 0 || doc.TopicIndex >= k {
			return nil, fmt.Errorf("document %d: topic index %d out of range [0, %d)", i, doc.TopicIndex, k)
		}
		vec, err := emb.Embed(ctx, doc.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding document %d: %w", i, err)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("document %d embedded to %d values, want %d", i, len(vec), dim)
		}
		c := centroids[doc.TopicIndex]
		for j, v := range vec {
			c[j] += float64(v)
		}
	}
	for _, c := range centroids {
		normalize64(c)
	}
	return NewCentroidFromVectors(centroids, temperature)
}

// NewCentroidFromVectors builds a classifier from precomputed centroids.
func NewCentroidFromVectors(centroids [][]float64, temperature float64) (*Centroid, error) {
	if len(centroids) == 0 || len(centroids[0]) == 0 {
		return nil, fmt.Errorf("no centroids")
	}
	dim := len(centroids[0])
	for i, c := range centroids {
		if len(c) != dim {
			return nil, fmt.Errorf("centroid %d has %d values, want %d", i, len(c), dim)
		}
	}
	return &Centroid{centroids: centroids, dim: dim, temperature: temperature}, nil
}

func (c *Centroid) InputDim() int   { return c.dim }
func (c *Centroid) NumClasses() int { return len(c.centroids) }

func (c *Centroid) Predict(ctx context.Context, batch [][]float32) ([][]float64, error) {
	if err := checkBatch(batch, c.dim); err != nil {
		return nil, err
	}
	out := make([][]float64, len(batch))
	for i, row := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rowNorm float64
		for _, v := range row {
			rowNorm += float64(v) * float64(v)
		}
		rowNorm = math.Sqrt(rowNorm)
		scores := make([]float64, len(c.centroids))
		for k, centroid := range c.centroids {
			if rowNorm == 0 {
				break
			}
			var dot float64
			for j, v := range row {
				dot += float64(v) * centroid[j]
			}
			scores[k] = c.temperature * dot / rowNorm
		}
		out[i] = softmax(scores)
	}
	return out, nil
}

func normalize64(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}

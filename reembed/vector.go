package reembed

import (
	"fmt"
	"math"

	"github.com/poiesic/snapq/core"
)

// NormalizeVector scales v to unit length and returns a new slice.
// A zero vector stays zero.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sum)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// normalizeAll normalizes a batch of embeddings after checking that every
// one has the dimension of space.
func normalizeAll(space core.EmbeddingSpace, vectors [][]float32) ([][]float32, error) {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != space.Dimension {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, %s produces %d",
				core.ErrEmbeddingSpaceMismatch, i, len(v), space.Model, space.Dimension)
		}
		out[i] = NormalizeVector(v)
	}
	return out, nil
}

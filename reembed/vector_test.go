package reembed

import (
	"math"
	"testing"

	"github.com/poiesic/snapq/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	inv := float32(1 / math.Sqrt(2))
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{"unit vector unchanged", []float32{1, 0, 0}, []float32{1, 0, 0}},
		{"scales non-unit vector", []float32{3, 4}, []float32{0.6, 0.8}},
		{"negative values", []float32{-1, 1}, []float32{-inv, inv}},
		{"small values", []float32{0.001, 0.002, 0.002}, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeVector(tt.input)
			require.Len(t, result, len(tt.expected))
			for i := range result {
				assert.InDelta(t, tt.expected[i], result[i], 1e-6, "element %d", i)
			}
			assert.InDelta(t, 1.0, magnitude(result), 1e-6)
		})
	}

	t.Run("input is not modified", func(t *testing.T) {
		in := []float32{3, 4}
		NormalizeVector(in)
		assert.Equal(t, []float32{3, 4}, in)
	})

	t.Run("zero vector", func(t *testing.T) {
		assert.Equal(t, []float32{0, 0, 0}, NormalizeVector([]float32{0, 0, 0}))
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.Empty(t, NormalizeVector([]float32{}))
	})
}

func TestNormalizeAll(t *testing.T) {
	space := core.EmbeddingSpace{Model: "m", Dimension: 2}

	out, err := normalizeAll(space, [][]float32{{3, 4}, {0, 2}})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, out[0], 1e-6)
	assert.InDeltaSlice(t, []float32{0, 1}, out[1], 1e-6)

	_, err = normalizeAll(space, [][]float32{{1, 0}, {1, 0, 0}})
	assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)
}

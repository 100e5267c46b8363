package storage

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/snapq/core"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 1}, []float32{-1, -1}), 1e-6)
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestRanker_OrderAndTieBreak(t *testing.T) {
	r := NewRanker([]float32{1, 0}, 10)

	require.NoError(t, r.Offer([]float32{1, 1}, "b-seq2", 2, "B", "src-b"))
	require.NoError(t, r.Offer([]float32{1, 0}, "best", 5, "A", "src-a"))
	require.NoError(t, r.Offer([]float32{1, 1}, "a-seq2", 2, "A", "src-a"))
	require.NoError(t, r.Offer([]float32{1, 1}, "c-seq1", 1, "C", "src-c"))
	require.NoError(t, r.Offer([]float32{0, 1}, "worst", 0, "A", "src-a"))

	var texts []string
	for _, h := range r.Results() {
		texts = append(texts, h.Text)
	}
	assert.Equal(t, []string{"best", "c-seq1", "a-seq2", "b-seq2", "worst"}, texts)
}

func TestRanker_Limit(t *testing.T) {
	r := NewRanker([]float32{1, 0}, 3)
	// Unit vectors whose cosine with the query is i/500.
	for i := 0; i < 500; i++ {
		x := float64(i) / 500
		v := []float32{float32(x), float32(math.Sqrt(1 - x*x))}
		require.NoError(t, r.Offer(v, fmt.Sprint(i), 0, "t", fmt.Sprintf("s%03d", i)))
	}

	hits := r.Results()
	require.Len(t, hits, 3)
	assert.Equal(t, "499", hits[0].Text)
	assert.Equal(t, "498", hits[1].Text)
	assert.Equal(t, "497", hits[2].Text)
}

func TestRanker_DefaultLimit(t *testing.T) {
	r := NewRanker([]float32{1}, 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Offer([]float32{1}, "x", i, "t", "s"))
	}
	assert.Len(t, r.Results(), DefaultLimit)
}

func TestRanker_DimensionMismatch(t *testing.T) {
	r := NewRanker([]float32{1, 0}, 5)
	err := r.Offer([]float32{1, 0, 0}, "x", 0, "t", "s")
	assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)
}

func TestCompareHits(t *testing.T) {
	a := &core.SearchHit{Similarity: 0.5, Seq: 1, SourceID: "a"}
	b := &core.SearchHit{Similarity: 0.5, Seq: 1, SourceID: "b"}
	assert.Negative(t, CompareHits(a, b))
	assert.Positive(t, CompareHits(b, a))
	assert.Zero(t, CompareHits(a, a))
}

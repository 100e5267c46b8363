package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunker(t *testing.T, opts ...Option) *Chunker {
	t.Helper()
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

// sentencesOf recovers the original sentence units from a chunk sequence.
func sentencesOf(chunks []Chunk) []string {
	var out []string
	for i, c := range chunks {
		text := c.Text
		if i < len(chunks)-1 {
			text = strings.TrimSuffix(text, ".")
		}
		out = append(out, strings.Split(text, sentenceSeparator)...)
	}
	return out
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := newChunker(t)
		assert.Equal(t, DefaultMaxTokens, c.MaxTokens())
		assert.IsType(t, CharEstimator{}, c.estimator)
	})

	t.Run("custom max tokens", func(t *testing.T) {
		c := newChunker(t, WithMaxTokens(42))
		assert.Equal(t, 42, c.MaxTokens())
	})

	t.Run("invalid max tokens", func(t *testing.T) {
		_, err := New(WithMaxTokens(0))
		assert.ErrorIs(t, err, ErrInvalidMaxTokens)
	})

	t.Run("nil estimator keeps default", func(t *testing.T) {
		c := newChunker(t, WithEstimator(nil))
		assert.IsType(t, CharEstimator{}, c.estimator)
	})
}

func TestChunker_Chunk_ShortText(t *testing.T) {
	c := newChunker(t)

	chunks := c.Chunk("A. B. C.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A. B. C.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, 0, chunks[0].TokenEstimate)
}

func TestChunker_Chunk_OversizedSentence(t *testing.T) {
	c := newChunker(t, WithMaxTokens(10))

	sentence := strings.Repeat("x", 3000)
	chunks := c.Chunk(sentence)
	require.Len(t, chunks, 1)
	assert.Equal(t, sentence, chunks[0].Text)
	assert.Equal(t, 750, chunks[0].TokenEstimate)
}

func TestChunker_Chunk_OversizedSentenceInMiddle(t *testing.T) {
	c := newChunker(t, WithMaxTokens(10))

	huge := strings.Repeat("y", 400)
	chunks := c.Chunk("aaaa. " + huge + ". bbbb")
	require.Len(t, chunks, 3)
	assert.Equal(t, "aaaa.", chunks[0].Text)
	assert.Equal(t, huge+".", chunks[1].Text)
	assert.Equal(t, 100, chunks[1].TokenEstimate)
	assert.Equal(t, "bbbb", chunks[2].Text)
}

func TestChunker_Chunk_FlushBoundaries(t *testing.T) {
	c := newChunker(t, WithMaxTokens(25))

	// Each sentence estimates to 10 tokens, so two fit per chunk.
	s := make([]string, 5)
	for i := range s {
		s[i] = strings.Repeat(string(rune('a'+i)), 40)
	}
	chunks := c.Chunk(strings.Join(s, ". "))

	require.Len(t, chunks, 3)
	assert.Equal(t, s[0]+". "+s[1]+".", chunks[0].Text)
	assert.Equal(t, 20, chunks[0].TokenEstimate)
	assert.Equal(t, s[2]+". "+s[3]+".", chunks[1].Text)
	assert.Equal(t, s[4], chunks[2].Text)
	assert.Equal(t, 10, chunks[2].TokenEstimate)
}

func TestChunker_Chunk_Properties(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200) +
		"Replace the filter by sliding it out. Then close the cover"

	for _, maxTokens := range []int{1, 5, 50, 500, 5000} {
		c := newChunker(t, WithMaxTokens(maxTokens))
		chunks := c.Chunk(text)

		require.NotEmpty(t, chunks, "max_tokens=%d", maxTokens)
		for i, ch := range chunks {
			assert.Equal(t, i, ch.Seq, "seq must be contiguous")
		}
		assert.Equal(t, strings.Split(text, ". "), sentencesOf(chunks), "sentences must survive in order")

		again := c.Chunk(text)
		assert.Equal(t, chunks, again, "chunking must be deterministic")
	}
}

func TestChunker_Chunk_Blank(t *testing.T) {
	c := newChunker(t)
	assert.Empty(t, c.Chunk(""))

	chunks := c.Chunk("  \n\t ")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, "  \n\t ", chunks[0].Text)
}

func TestChunker_Chunk_CustomEstimator(t *testing.T) {
	words := EstimatorFunc(func(s string) int { return len(strings.Fields(s)) })
	c := newChunker(t, WithMaxTokens(4), WithEstimator(words))

	chunks := c.Chunk("one two three. four five. six")
	require.Len(t, chunks, 2)
	assert.Equal(t, "one two three.", chunks[0].Text)
	assert.Equal(t, 3, chunks[0].TokenEstimate)
	assert.Equal(t, "four five. six", chunks[1].Text)
	assert.Equal(t, 3, chunks[1].TokenEstimate)
}

func TestCharEstimator(t *testing.T) {
	e := CharEstimator{}
	assert.Equal(t, 0, e.Estimate("abc"))
	assert.Equal(t, 1, e.Estimate("abcd"))
	assert.Equal(t, 2, e.Estimate("éééééééé"), "counts characters, not bytes")
}

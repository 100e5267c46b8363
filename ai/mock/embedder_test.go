package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Defaults(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	b, err := m.EmbedTexts(ctx, []string{"hello", "world"})
	require.NoError(t, err)

	assert.Len(t, a, DefaultDimension)
	assert.Equal(t, a, b[0])
	assert.NotEqual(t, b[0], b[1])
	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, "mock", m.Space().Model)
}

func TestMockEmbedder_InjectedBehavior(t *testing.T) {
	m := NewMockEmbedderWithDimension(3)
	m.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("offline")
	}

	_, err := m.EmbedTexts(context.Background(), []string{"x"})
	assert.EqualError(t, err, "offline")

	m.Reset()
	assert.Zero(t, m.CallCount())
	v, err := m.EmbedTexts(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, v[0], 3)
}

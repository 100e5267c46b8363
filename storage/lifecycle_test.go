package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/snapq/core"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRegistration(t *testing.T) {
	incoming := core.NewDocument("acme", "src-1", "v2.pdf", "/uploads/v2")

	t.Run("new document", func(t *testing.T) {
		doc, err := Registration(nil, incoming, now)
		require.NoError(t, err)
		assert.Equal(t, core.StatusQueued, doc.Status)
		assert.Equal(t, core.DocumentID("acme", "src-1"), doc.ID)
		assert.Equal(t, now, doc.CreatedAt)
	})

	t.Run("invalid document", func(t *testing.T) {
		bad := *incoming
		bad.TenantID = ""
		_, err := Registration(nil, &bad, now)
		assert.ErrorIs(t, err, core.ErrEmptyTenant)
	})

	for _, status := range []core.DocumentStatus{core.StatusQueued, core.StatusProcessing} {
		t.Run("duplicate while "+string(status), func(t *testing.T) {
			existing := core.NewDocument("acme", "src-1", "v1.pdf", "/uploads/v1")
			existing.Status = status
			_, err := Registration(existing, incoming, now)
			assert.ErrorIs(t, err, core.ErrDuplicateSource)
		})
	}

	for _, status := range []core.DocumentStatus{core.StatusCompleted, core.StatusFailed} {
		t.Run("re-registration after "+string(status), func(t *testing.T) {
			existing := core.NewDocument("acme", "src-1", "v1.pdf", "/uploads/v1")
			existing.Status = status
			existing.Attempts = 1
			existing.ChunkCount = 4

			doc, err := Registration(existing, incoming, now)
			require.NoError(t, err)
			assert.Equal(t, status, doc.Status, "status changes only when the retry starts")
			assert.Equal(t, "v2.pdf", doc.Filename)
			assert.Equal(t, "/uploads/v2", doc.Location)
			assert.Equal(t, 1, doc.Attempts)
			assert.Equal(t, 4, doc.ChunkCount)
		})
	}
}

func TestApplyTransition(t *testing.T) {
	t.Run("queued to processing", func(t *testing.T) {
		doc := core.NewDocument("acme", "s", "a.txt", "")
		clear, err := ApplyTransition(doc, core.StatusProcessing, "", now)
		require.NoError(t, err)
		assert.False(t, clear)
		assert.Equal(t, 1, doc.Attempts)
		assert.Equal(t, core.StatusProcessing, doc.Status)
	})

	t.Run("retry clears chunks and error", func(t *testing.T) {
		doc := core.NewDocument("acme", "s", "a.txt", "")
		doc.Status = core.StatusFailed
		doc.ErrorMessage = "boom"
		doc.ChunkCount = 3
		doc.Attempts = 1

		clear, err := ApplyTransition(doc, core.StatusProcessing, "", now)
		require.NoError(t, err)
		assert.True(t, clear)
		assert.Zero(t, doc.ChunkCount)
		assert.Empty(t, doc.ErrorMessage)
		assert.Equal(t, 2, doc.Attempts)
	})

	t.Run("failure records message", func(t *testing.T) {
		doc := core.NewDocument("acme", "s", "a.txt", "")
		doc.Status = core.StatusProcessing
		_, err := ApplyTransition(doc, core.StatusFailed, "unsupported file type", now)
		require.NoError(t, err)
		assert.Equal(t, "unsupported file type", doc.ErrorMessage)
		assert.Equal(t, now, doc.UpdatedAt)
	})

	t.Run("concurrent attempt rejected", func(t *testing.T) {
		doc := core.NewDocument("acme", "s", "a.txt", "")
		doc.Status = core.StatusProcessing
		_, err := ApplyTransition(doc, core.StatusProcessing, "", now)
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
		assert.Equal(t, 0, doc.Attempts, "rejected transition must not mutate")
	})

	t.Run("completed only through commit", func(t *testing.T) {
		doc := core.NewDocument("acme", "s", "a.txt", "")
		doc.Status = core.StatusProcessing
		_, err := ApplyTransition(doc, core.StatusCompleted, "", now)
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
	})
}

func TestApplyCommit(t *testing.T) {
	space := core.EmbeddingSpace{Model: "m", Dimension: 2}
	chunks := func() []*core.Chunk {
		return []*core.Chunk{
			{Seq: 0, Text: "a", Vector: []float32{1, 0}},
			{Seq: 1, Text: "b", Vector: []float32{0, 1}},
		}
	}
	processing := func() *core.Document {
		doc := core.NewDocument("acme", "s", "a.txt", "")
		doc.Status = core.StatusProcessing
		doc.Attempts = 1
		return doc
	}

	t.Run("pins first space", func(t *testing.T) {
		doc := processing()
		cs := chunks()
		pinned, err := ApplyCommit(doc, 1, core.EmbeddingSpace{}, space, cs, now)
		require.NoError(t, err)
		assert.Equal(t, space, pinned)
		assert.Equal(t, core.StatusCompleted, doc.Status)
		assert.Equal(t, 2, doc.ChunkCount)
		assert.Equal(t, doc.ID, cs[1].DocumentID)
		assert.Equal(t, "acme", cs[1].TenantID)
	})

	t.Run("not processing", func(t *testing.T) {
		doc := processing()
		doc.Status = core.StatusFailed
		_, err := ApplyCommit(doc, 1, space, space, chunks(), now)
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
	})

	t.Run("superseded attempt", func(t *testing.T) {
		doc := processing()
		doc.Attempts = 2
		pinned, err := ApplyCommit(doc, 1, space, space, chunks(), now)
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
		assert.Equal(t, space, pinned)
		assert.Equal(t, core.StatusProcessing, doc.Status)
	})

	t.Run("space mismatch", func(t *testing.T) {
		other := core.EmbeddingSpace{Model: "other", Dimension: 2}
		_, err := ApplyCommit(processing(), 1, other, space, chunks(), now)
		assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)
	})

	t.Run("vector dimension differs from space", func(t *testing.T) {
		wide := core.EmbeddingSpace{Model: "m", Dimension: 3}
		_, err := ApplyCommit(processing(), 1, core.EmbeddingSpace{}, wide, chunks(), now)
		assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)
	})

	t.Run("gap in seq", func(t *testing.T) {
		cs := chunks()
		cs[1].Seq = 2
		_, err := ApplyCommit(processing(), 1, core.EmbeddingSpace{}, space, cs, now)
		assert.ErrorIs(t, err, core.ErrInvalidChunks)
	})
}

func TestPersistence(t *testing.T) {
	assert.NoError(t, Persistence(nil))

	engine := errors.New("disk full")
	assert.ErrorIs(t, Persistence(engine), core.ErrPersistence)
	assert.ErrorIs(t, Persistence(engine), engine)

	assert.Equal(t, ErrNotFound, Persistence(ErrNotFound))
	assert.NotErrorIs(t, Persistence(core.ErrInvalidTransition), core.ErrPersistence)
}

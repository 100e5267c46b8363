// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storagetest holds the behavioral test suite every storage.Store
// backend must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

// Factory returns an empty store. The store is closed by the factory's own
// cleanup.
type Factory func(t *testing.T) storage.Store

var (
	spaceA = core.EmbeddingSpace{Model: "test-a", Dimension: 2}
	spaceB = core.EmbeddingSpace{Model: "test-b", Dimension: 2}
)

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetMissing", testGetMissing},
		{"InvalidKeys", testInvalidKeys},
		{"DuplicateWhileActive", testDuplicateWhileActive},
		{"ReRegisterTerminal", testReRegisterTerminal},
		{"TransitionRules", testTransitionRules},
		{"ConcurrentClaim", testConcurrentClaim},
		{"FailureRecordsMessage", testFailureRecordsMessage},
		{"CommitChunks", testCommitChunks},
		{"CommitRequiresProcessing", testCommitRequiresProcessing},
		{"CommitRejectsBadChunks", testCommitRejectsBadChunks},
		{"RetryReplacesChunks", testRetryReplacesChunks},
		{"CommitRejectsSupersededAttempt", testCommitRejectsSupersededAttempt},
		{"SearchOrdering", testSearchOrdering},
		{"SearchTenantIsolation", testSearchTenantIsolation},
		{"SearchOnlyCompleted", testSearchOnlyCompleted},
		{"SearchDefaultLimit", testSearchDefaultLimit},
		{"SearchEmptyStore", testSearchEmptyStore},
		{"SpaceMismatch", testSpaceMismatch},
		{"UpdateVectors", testUpdateVectors},
		{"Delete", testDelete},
		{"List", testList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func makeChunks(vectors ...[]float32) []*core.Chunk {
	chunks := make([]*core.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = &core.Chunk{
			Seq:           i,
			Text:          fmt.Sprintf("chunk-%d", i),
			TokenEstimate: 2,
			Vector:        v,
		}
	}
	return chunks
}

// ingest registers a document and commits chunks for it in one go.
func ingest(t *testing.T, s storage.Store, tenant, source string, space core.EmbeddingSpace, vectors ...[]float32) *core.Document {
	t.Helper()
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument(tenant, source, source+".txt", "/tmp/"+source+".txt"))
	require.NoError(t, err)
	doc, err := s.Transition(ctx, tenant, source, core.StatusProcessing, "")
	require.NoError(t, err)
	doc, err = s.CommitChunks(ctx, tenant, source, doc.Attempts, space, makeChunks(vectors...))
	require.NoError(t, err)
	return doc
}

func testCreateAndGet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	created, err := s.Create(ctx, core.NewDocument("acme", "doc-1", "reports/q1.pdf", "/uploads/q1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusQueued, created.Status)
	assert.Equal(t, core.DocumentID("acme", "doc-1"), created.ID)
	assert.Equal(t, "q1.pdf", created.Title)
	assert.Zero(t, created.Attempts)

	got, err := s.Get(ctx, "acme", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "reports/q1.pdf", got.Filename)
	assert.Equal(t, "/uploads/q1.pdf", got.Location)
	assert.Equal(t, core.StatusQueued, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func testGetMissing(t *testing.T, s storage.Store) {
	_, err := s.Get(context.Background(), "acme", "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Transition(context.Background(), "acme", "nope", core.StatusProcessing, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testInvalidKeys(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Get(ctx, "", "doc")
	assert.ErrorIs(t, err, core.ErrEmptyTenant)

	_, err = s.Create(ctx, core.NewDocument("acme", "", "a.txt", "/a.txt"))
	assert.ErrorIs(t, err, core.ErrInvalidDocument)

	_, err = s.Create(ctx, core.NewDocument("ac\x00me", "doc", "a.txt", "/a.txt"))
	assert.ErrorIs(t, err, core.ErrInvalidKey)

	_, err = s.FindSimilar(ctx, "", []float32{1, 0}, spaceA, 5)
	assert.ErrorIs(t, err, core.ErrEmptyTenant)
}

func testDuplicateWhileActive(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)

	_, err = s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	assert.ErrorIs(t, err, core.ErrDuplicateSource)

	_, err = s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	_, err = s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	assert.ErrorIs(t, err, core.ErrDuplicateSource)

	// The same source ID under another tenant is a different document.
	_, err = s.Create(ctx, core.NewDocument("globex", "doc", "a.txt", "/a.txt"))
	assert.NoError(t, err)
}

func testReRegisterTerminal(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "old.txt", "/old.txt"))
	require.NoError(t, err)
	_, err = s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	_, err = s.Transition(ctx, "acme", "doc", core.StatusFailed, "no text")
	require.NoError(t, err)

	doc, err := s.Create(ctx, core.NewDocument("acme", "doc", "new.txt", "/new.txt"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, doc.Status)
	assert.Equal(t, "new.txt", doc.Filename)
	assert.Equal(t, "/new.txt", doc.Location)

	doc, err = s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Attempts)
	assert.Empty(t, doc.ErrorMessage)
}

func testTransitionRules(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)

	_, err = s.Transition(ctx, "acme", "doc", core.StatusCompleted, "")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	doc, err := s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, doc.Status)
	assert.Equal(t, 1, doc.Attempts)

	_, err = s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = s.Transition(ctx, "acme", "doc", core.StatusQueued, "")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	// A rejected move leaves the record untouched.
	got, err := s.Get(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func testConcurrentClaim(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		won      int
		rejected int
		other    []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, core.ErrInvalidTransition):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, won)
	assert.Equal(t, workers-1, rejected)
}

func testFailureRecordsMessage(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)

	// Queued documents may fail before any processing, e.g. on a missing file.
	doc, err := s.Transition(ctx, "acme", "doc", core.StatusFailed, "file vanished")
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, doc.Status)
	assert.Equal(t, "file vanished", doc.ErrorMessage)

	got, err := s.Get(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Equal(t, "file vanished", got.ErrorMessage)
}

func testCommitChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := ingest(t, s, "acme", "doc", spaceA, []float32{1, 0}, []float32{0, 1}, []float32{1, 1})
	assert.Equal(t, core.StatusCompleted, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, spaceA, doc.Space)

	chunks, err := s.ListChunks(ctx, "acme", "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), c.Text)
		assert.Equal(t, "acme", c.TenantID)
		assert.Equal(t, "doc", c.SourceID)
		assert.Equal(t, doc.ID, c.DocumentID)
	}
	assert.Equal(t, []float32{0, 1}, chunks[1].Vector)

	space, err := s.GetSpace(ctx)
	require.NoError(t, err)
	assert.Equal(t, spaceA, space)
}

func testCommitRequiresProcessing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)

	_, err = s.CommitChunks(ctx, "acme", "doc", 0, spaceA, makeChunks([]float32{1, 0}))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	chunks, err := s.ListChunks(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	space, err := s.GetSpace(ctx)
	require.NoError(t, err)
	assert.True(t, space.IsZero())
}

func testCommitRejectsBadChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)
	_, err = s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)

	chunks := makeChunks([]float32{1, 0}, []float32{0, 1})
	chunks[1].Seq = 5
	_, err = s.CommitChunks(ctx, "acme", "doc", 1, spaceA, chunks)
	assert.ErrorIs(t, err, core.ErrInvalidChunks)

	_, err = s.CommitChunks(ctx, "acme", "doc", 1, spaceA, makeChunks([]float32{1, 0, 0}))
	assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)

	doc, err := s.Get(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, doc.Status)
}

func testCommitRejectsSupersededAttempt(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)
	first, err := s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	_, err = s.Transition(ctx, "acme", "doc", core.StatusFailed, "timed out")
	require.NoError(t, err)
	second, err := s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	require.Equal(t, first.Attempts+1, second.Attempts)

	// The first attempt finishing late must not complete the second.
	_, err = s.CommitChunks(ctx, "acme", "doc", first.Attempts, spaceA, makeChunks([]float32{1, 0}))
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	chunks, err := s.ListChunks(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	doc, err := s.Get(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, doc.Status)

	doc, err = s.CommitChunks(ctx, "acme", "doc", second.Attempts, spaceA, makeChunks([]float32{0, 1}))
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, doc.Status)
}

func testRetryReplacesChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "doc", spaceA, []float32{1, 0}, []float32{0, 1}, []float32{1, 1})

	doc, err := s.Transition(ctx, "acme", "doc", core.StatusProcessing, "")
	require.NoError(t, err)
	assert.Zero(t, doc.ChunkCount)
	assert.Equal(t, 2, doc.Attempts)

	chunks, err := s.ListChunks(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	doc, err = s.CommitChunks(ctx, "acme", "doc", doc.Attempts, spaceA, makeChunks([]float32{0, 1}))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)

	chunks, err = s.ListChunks(ctx, "acme", "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []float32{0, 1}, chunks[0].Vector)
}

func testSearchOrdering(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "beta", spaceA, []float32{1, 1}, []float32{1, 1})
	ingest(t, s, "acme", "alpha", spaceA, []float32{0, 1}, []float32{1, 1})
	ingest(t, s, "acme", "gamma", spaceA, []float32{1, 0})

	hits, err := s.FindSimilar(ctx, "acme", []float32{1, 0}, spaceA, 10)
	require.NoError(t, err)
	require.Len(t, hits, 5)

	type key struct {
		source string
		seq    int
	}
	got := make([]key, len(hits))
	for i, h := range hits {
		got[i] = key{h.SourceID, h.Seq}
	}
	assert.Equal(t, []key{
		{"gamma", 0},
		{"beta", 0},
		{"alpha", 1},
		{"beta", 1},
		{"alpha", 0},
	}, got)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "gamma.txt", hits[0].Title)
	assert.Equal(t, "chunk-0", hits[0].Text)
}

func testSearchTenantIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "doc", spaceA, []float32{0, 1})
	ingest(t, s, "globex", "doc", spaceA, []float32{1, 0})

	hits, err := s.FindSimilar(ctx, "acme", []float32{1, 0}, spaceA, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc", hits[0].SourceID)
	assert.InDelta(t, 0.0, hits[0].Similarity, 1e-6)

	hits, err = s.FindSimilar(ctx, "initech", []float32{1, 0}, spaceA, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testSearchOnlyCompleted(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "done", spaceA, []float32{1, 0})
	ingest(t, s, "acme", "retrying", spaceA, []float32{1, 0})
	_, err := s.Transition(ctx, "acme", "retrying", core.StatusProcessing, "")
	require.NoError(t, err)
	_, err = s.Create(ctx, core.NewDocument("acme", "queued", "q.txt", "/q.txt"))
	require.NoError(t, err)

	hits, err := s.FindSimilar(ctx, "acme", []float32{1, 0}, spaceA, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "done", hits[0].SourceID)
}

func testSearchDefaultLimit(t *testing.T, s storage.Store) {
	vectors := make([][]float32, 8)
	for i := range vectors {
		vectors[i] = []float32{1, float32(i)}
	}
	ingest(t, s, "acme", "doc", spaceA, vectors...)

	hits, err := s.FindSimilar(context.Background(), "acme", []float32{1, 0}, spaceA, 0)
	require.NoError(t, err)
	require.Len(t, hits, storage.DefaultLimit)
	for i, h := range hits {
		assert.Equal(t, i, h.Seq)
	}
}

func testSearchEmptyStore(t *testing.T, s storage.Store) {
	hits, err := s.FindSimilar(context.Background(), "acme", []float32{1, 0}, spaceA, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testSpaceMismatch(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "first", spaceA, []float32{1, 0})

	_, err := s.Create(ctx, core.NewDocument("acme", "second", "b.txt", "/b.txt"))
	require.NoError(t, err)
	_, err = s.Transition(ctx, "acme", "second", core.StatusProcessing, "")
	require.NoError(t, err)
	_, err = s.CommitChunks(ctx, "acme", "second", 1, spaceB, makeChunks([]float32{1, 0}))
	assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)

	doc, err := s.Get(ctx, "acme", "second")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, doc.Status)

	_, err = s.FindSimilar(ctx, "acme", []float32{1, 0}, spaceB, 5)
	assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)

	_, err = s.FindSimilar(ctx, "acme", []float32{1, 0, 0}, spaceA, 5)
	assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)
}

func testUpdateVectors(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "doc", spaceA, []float32{1, 0}, []float32{0, 1})

	err := s.UpdateVectors(ctx, "acme", "doc", spaceB, [][]float32{{1}})
	assert.ErrorIs(t, err, core.ErrInvalidChunks)

	err = s.UpdateVectors(ctx, "acme", "doc", spaceB, [][]float32{{0, 1}, {1, 0}})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "acme", "doc")
	require.NoError(t, err)
	assert.Equal(t, spaceB, doc.Space)

	// Still pinned to A: the migrated document is invisible to A queries.
	hits, err := s.FindSimilar(ctx, "acme", []float32{1, 0}, spaceA, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.SetSpace(ctx, spaceB))
	hits, err = s.FindSimilar(ctx, "acme", []float32{1, 0}, spaceB, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Seq)

	_, err = s.Create(ctx, core.NewDocument("acme", "pending", "p.txt", "/p.txt"))
	require.NoError(t, err)
	err = s.UpdateVectors(ctx, "acme", "pending", spaceB, nil)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func testDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "doc", spaceA, []float32{1, 0})

	require.NoError(t, s.Delete(ctx, "acme", "doc"))

	_, err := s.Get(ctx, "acme", "doc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	hits, err := s.FindSimilar(ctx, "acme", []float32{1, 0}, spaceA, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.ErrorIs(t, s.Delete(ctx, "acme", "doc"), storage.ErrNotFound)

	// The source can be registered afresh.
	doc, err := s.Create(ctx, core.NewDocument("acme", "doc", "a.txt", "/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, core.StatusQueued, doc.Status)
}

func testList(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ingest(t, s, "acme", "b", spaceA, []float32{1, 0})
	_, err := s.Create(ctx, core.NewDocument("acme", "c", "c.txt", "/c.txt"))
	require.NoError(t, err)
	_, err = s.Create(ctx, core.NewDocument("acme", "a", "a.txt", "/a.txt"))
	require.NoError(t, err)
	_, err = s.Create(ctx, core.NewDocument("globex", "z", "z.txt", "/z.txt"))
	require.NoError(t, err)

	docs, err := s.List(ctx, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, sourceIDs(docs))

	docs, err = s.List(ctx, "acme", core.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, sourceIDs(docs))

	docs, err = s.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, docs, 4)

	_, err = s.List(ctx, "acme", core.DocumentStatus("bogus"))
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}

func sourceIDs(docs []*core.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.SourceID
	}
	return ids
}

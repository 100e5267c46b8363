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

package storage

import (
	"context"

	"github.com/poiesic/snapq/core"
)

// Repository is the common interface for all storage repositories.
type Repository interface {
	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository tracks document lifecycle state. Documents are
// addressed by (tenantID, sourceID).
type DocumentRepository interface {
	Repository

	// Create registers a new document in the queued state.
	// If the pair already exists and its last attempt is terminal, the
	// filename, title and location are refreshed and the status is left
	// alone; the retry starts with the next transition to processing.
	// Returns core.ErrDuplicateSource if the existing document is queued or
	// processing.
	Create(ctx context.Context, doc *core.Document) (*core.Document, error)

	// Get retrieves a document.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, tenantID, sourceID string) (*core.Document, error)

	// List returns the documents of a tenant ordered by source ID. An empty
	// tenantID lists every tenant; an empty status matches every status.
	List(ctx context.Context, tenantID string, status core.DocumentStatus) ([]*core.Document, error)

	// Transition moves a document to another status atomically.
	// The move must be allowed by core.ValidateTransition. Entering
	// processing from a terminal status deletes the previous attempt's
	// chunks in the same transaction. errMsg is recorded only when
	// entering failed. completed is reached only through CommitChunks.
	// Returns core.ErrInvalidTransition for disallowed moves and ErrNotFound
	// if the document doesn't exist.
	Transition(ctx context.Context, tenantID, sourceID string, to core.DocumentStatus, errMsg string) (*core.Document, error)

	// Delete removes a document and all of its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	Delete(ctx context.Context, tenantID, sourceID string) error
}

// ChunkRepository persists chunk vectors and answers similarity queries.
type ChunkRepository interface {
	Repository

	// CommitChunks replaces the chunks of a processing document and marks
	// it completed in a single transaction, so search never observes a
	// partially written chunk set. Chunks must satisfy core.ValidateChunks
	// and carry vectors of the given space. The first commit pins the
	// store's embedding space; later commits from another space fail with
	// core.ErrEmbeddingSpaceMismatch. attempt must equal the document's
	// Attempts as returned by the transition into processing; a commit
	// from an earlier, abandoned attempt fails with
	// core.ErrInvalidTransition.
	CommitChunks(ctx context.Context, tenantID, sourceID string, attempt int, space core.EmbeddingSpace, chunks []*core.Chunk) (*core.Document, error)

	// FindSimilar ranks the chunks of the tenant's completed documents by
	// cosine similarity to query. Results are ordered by similarity
	// descending, then seq ascending, then source ID ascending, and
	// truncated to limit. Chunks of other tenants are never read.
	// Returns core.ErrEmbeddingSpaceMismatch if space differs from the
	// pinned space or the query dimension differs from stored vectors.
	FindSimilar(ctx context.Context, tenantID string, query []float32, space core.EmbeddingSpace, limit int) ([]*core.SearchHit, error)

	// ListChunks returns a document's chunks ordered by seq.
	ListChunks(ctx context.Context, tenantID, sourceID string) ([]*core.Chunk, error)

	// UpdateVectors replaces the vectors of a completed document's chunks,
	// vectors[i] going to seq i, and tags the document with space. Used to
	// migrate a store to a new embedding model.
	UpdateVectors(ctx context.Context, tenantID, sourceID string, space core.EmbeddingSpace, vectors [][]float32) error

	// GetSpace returns the pinned embedding space, or the zero value if no
	// chunks were ever committed.
	GetSpace(ctx context.Context) (core.EmbeddingSpace, error)

	// SetSpace pins the embedding space unconditionally.
	SetSpace(ctx context.Context, space core.EmbeddingSpace) error
}

// Store combines document and chunk persistence over one backend so that
// lifecycle changes and chunk writes share transactions.
type Store interface {
	DocumentRepository
	ChunkRepository
}

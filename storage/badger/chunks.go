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

package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

// cancelCheckInterval is how many chunks a scan reads between context checks.
const cancelCheckInterval = 256

// CommitChunks writes a processing document's chunks and completes it.
func (s *Store) CommitChunks(ctx context.Context, tenantID, sourceID string, attempt int, space core.EmbeddingSpace, chunks []*core.Chunk) (*core.Document, error) {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return nil, err
	}
	var result *core.Document
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		doc, err := mustReadDocument(tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		pinned, err := readSpace(tx)
		if err != nil {
			return err
		}
		next, err := storage.ApplyCommit(doc, attempt, pinned, space, chunks, s.now())
		if err != nil {
			return err
		}

		if err := deletePrefix(tx, makeChunkPrefix(tenantID, sourceID)); err != nil {
			return err
		}
		for _, c := range chunks {
			if err := writeChunk(tx, c); err != nil {
				return err
			}
		}
		if err := writeDocument(tx, makeDocumentKey(tenantID, sourceID), doc); err != nil {
			return err
		}
		if next != pinned {
			if err := writeSpace(tx, next); err != nil {
				return err
			}
		}
		result = doc
		return nil
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return result, nil
}

// FindSimilar ranks the chunks of a tenant's completed documents against query.
func (s *Store) FindSimilar(ctx context.Context, tenantID string, query []float32, space core.EmbeddingSpace, limit int) ([]*core.SearchHit, error) {
	if tenantID == "" {
		return nil, core.ErrEmptyTenant
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidQuery)
	}
	if len(query) != space.Dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, space %s has %d",
			core.ErrEmbeddingSpaceMismatch, len(query), space.Model, space.Dimension)
	}

	ranker := storage.NewRanker(query, limit)
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		pinned, err := readSpace(tx)
		if err != nil {
			return err
		}
		if pinned.IsZero() {
			return nil
		}
		if err := storage.CheckSpace(pinned, space); err != nil {
			return err
		}

		docs, err := searchableDocuments(tx, tenantID, space)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeTenantChunkPrefix(tenantID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		n := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
			if n%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			chunk, err := decodeChunk(iter.Item())
			if err != nil {
				return err
			}
			doc, ok := docs[chunk.SourceID]
			if !ok {
				continue
			}
			if err := ranker.Offer(chunk.Vector, chunk.Text, chunk.Seq, doc.Title, chunk.SourceID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return ranker.Results(), nil
}

// searchableDocuments maps source ID to the tenant's completed documents
// embedded in space.
func searchableDocuments(tx *badger.Txn, tenantID string, space core.EmbeddingSpace) (map[string]*core.Document, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeDocumentPrefix(tenantID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	docs := make(map[string]*core.Document)
	for iter.Rewind(); iter.Valid(); iter.Next() {
		doc, err := decodeDocument(iter.Item())
		if err != nil {
			return nil, err
		}
		if doc.Status == core.StatusCompleted && doc.Space.Compatible(space) {
			docs[doc.SourceID] = doc
		}
	}
	return docs, nil
}

// ListChunks returns a document's chunks ordered by seq.
func (s *Store) ListChunks(ctx context.Context, tenantID, sourceID string) ([]*core.Chunk, error) {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return nil, err
	}
	var chunks []*core.Chunk
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		if _, err := mustReadDocument(tx, tenantID, sourceID); err != nil {
			return err
		}
		var err error
		chunks, err = readChunks(tx, tenantID, sourceID)
		return err
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return chunks, nil
}

// UpdateVectors swaps in new vectors for a completed document.
func (s *Store) UpdateVectors(ctx context.Context, tenantID, sourceID string, space core.EmbeddingSpace, vectors [][]float32) error {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return err
	}
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		doc, err := mustReadDocument(tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		if doc.Status != core.StatusCompleted {
			return fmt.Errorf("%w: cannot update vectors of a %s document", core.ErrInvalidTransition, doc.Status)
		}
		chunks, err := readChunks(tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		if len(vectors) != len(chunks) {
			return fmt.Errorf("%w: %d vectors for %d chunks", core.ErrInvalidChunks, len(vectors), len(chunks))
		}
		for i, c := range chunks {
			c.Vector = vectors[i]
		}
		if err := storage.CheckVectors(space, chunks); err != nil {
			return err
		}
		for _, c := range chunks {
			if err := writeChunk(tx, c); err != nil {
				return err
			}
		}
		doc.Space = space
		doc.UpdatedAt = s.now()
		return writeDocument(tx, makeDocumentKey(tenantID, sourceID), doc)
	})
	return storage.Persistence(err)
}

// GetSpace returns the pinned embedding space.
func (s *Store) GetSpace(ctx context.Context) (core.EmbeddingSpace, error) {
	var space core.EmbeddingSpace
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		space, err = readSpace(tx)
		return err
	})
	return space, storage.Persistence(err)
}

// SetSpace pins the embedding space.
func (s *Store) SetSpace(ctx context.Context, space core.EmbeddingSpace) error {
	return storage.Persistence(s.backend.Update(ctx, func(tx *badger.Txn) error {
		return writeSpace(tx, space)
	}))
}

func readChunks(tx *badger.Txn, tenantID, sourceID string) ([]*core.Chunk, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeChunkPrefix(tenantID, sourceID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var chunks []*core.Chunk
	for iter.Rewind(); iter.Valid(); iter.Next() {
		chunk, err := decodeChunk(iter.Item())
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func decodeChunk(item *badger.Item) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}

func writeChunk(tx *badger.Txn, chunk *core.Chunk) error {
	value, err := storage.MarshalChunk(chunk)
	if err != nil {
		return err
	}
	return tx.Set(makeChunkKey(chunk.TenantID, chunk.SourceID, chunk.Seq), value)
}

func readSpace(tx *badger.Txn) (core.EmbeddingSpace, error) {
	item, err := tx.Get([]byte(spaceKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.EmbeddingSpace{}, nil
		}
		return core.EmbeddingSpace{}, err
	}
	var space core.EmbeddingSpace
	err = item.Value(func(val []byte) error {
		var err error
		space, err = storage.UnmarshalSpace(val)
		return err
	})
	return space, err
}

func writeSpace(tx *badger.Txn, space core.EmbeddingSpace) error {
	value, err := storage.MarshalSpace(space)
	if err != nil {
		return err
	}
	return tx.Set([]byte(spaceKey), value)
}

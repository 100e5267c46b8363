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

package reembed

import (
	"context"

	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

const (
	// DefaultBatchSize is the default number of documents handed to the
	// callback at a time.
	DefaultBatchSize = 100
)

// DocumentIterator walks the completed documents whose vectors still need
// to move into a target embedding space.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	tenantID  string
	target    core.EmbeddingSpace
	force     bool
	batchSize int
}

// NewDocumentIterator creates an iterator over the completed documents of
// tenantID, or of every tenant when tenantID is empty. Documents already
// in target are skipped unless force is set.
func NewDocumentIterator(repo storage.DocumentRepository, tenantID string, target core.EmbeddingSpace, force bool, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		tenantID:  tenantID,
		target:    target,
		force:     force,
		batchSize: batchSize,
	}
}

// Pending returns the documents that need reembedding.
func (it *DocumentIterator) Pending(ctx context.Context) ([]*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, err := it.repo.List(ctx, it.tenantID, core.StatusCompleted)
	if err != nil {
		return nil, err
	}

	pending := docs[:0]
	for _, doc := range docs {
		if doc.ChunkCount == 0 {
			continue
		}
		if !it.force && doc.Space.Compatible(it.target) {
			continue
		}
		pending = append(pending, doc)
	}
	return pending, nil
}

// ForEach calls fn with batches of pending documents.
// Iteration stops on the first error from fn. Context cancellation is
// checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	docs, err := it.Pending(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < len(docs); i += it.batchSize {
		end := min(i+it.batchSize, len(docs))
		if err := fn(docs[i:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

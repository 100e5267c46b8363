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
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

// errDocumentChanged marks a document that was retried or deleted while
// its vectors were being recomputed.
var errDocumentChanged = errors.New("document changed during reembedding")

// BatchProcessor recomputes the vectors of one document at a time.
type BatchProcessor struct {
	repo           storage.ChunkRepository
	embedder       ai.Embedder
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// batchSize: chunk texts sent per embedding call
// maxRetries: maximum number of attempts per embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.ChunkRepository, embedder ai.Embedder, batchSize, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		batchSize:      batchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds the chunks of doc with the processor's embedder and
// stores the normalized vectors, tagging the document with the
// embedder's space. It returns the number of chunks updated.
func (bp *BatchProcessor) Process(ctx context.Context, doc *core.Document) (int, error) {
	chunks, err := bp.repo.ListChunks(ctx, doc.TenantID, doc.SourceID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s/%s: %w", errDocumentChanged, doc.TenantID, doc.SourceID, err)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks of %s/%s: %w", doc.TenantID, doc.SourceID, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	space := bp.embedder.Space()
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += bp.batchSize {
		batch := texts[start:min(start+bp.batchSize, len(texts))]

		var embeddings [][]float32
		err := RetryWithBackoff(ctx, func() error {
			var err error
			embeddings, err = bp.embedder.EmbedTexts(ctx, batch)
			return err
		}, bp.maxRetries, bp.retryBaseDelay)
		if err != nil {
			return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
		}
		if len(embeddings) != len(batch) {
			return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
		}

		normalized, err := normalizeAll(space, embeddings)
		if err != nil {
			return 0, err
		}
		vectors = append(vectors, normalized...)
	}

	err = bp.repo.UpdateVectors(ctx, doc.TenantID, doc.SourceID, space, vectors)
	switch {
	case err == nil:
		return len(chunks), nil
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrInvalidChunks):
		return 0, fmt.Errorf("%w: %s/%s: %w", errDocumentChanged, doc.TenantID, doc.SourceID, err)
	default:
		return 0, fmt.Errorf("failed to update vectors of %s/%s: %w", doc.TenantID, doc.SourceID, err)
	}
}

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
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunk texts sent per embedding call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// TenantID limits the run to one tenant. Empty means every tenant.
	// The store's space is pinned only by a run over every tenant, so a
	// staged migration ends with one unrestricted run.
	TenantID string

	// Force re-embeds documents that are already in the target space.
	Force bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Report summarizes a reembedding run.
type Report struct {
	Documents int                 // Documents whose vectors were replaced
	Chunks    int                 // Chunks whose vectors were replaced
	Skipped   int                 // Documents retried or deleted during the run
	Space     core.EmbeddingSpace // Space the store is pinned to afterwards
	Elapsed   time.Duration
}

// Reembedder moves every completed document of a store into the embedding
// space of a new model, then pins the store to that space.
//
// Documents keep their own space tag, so a run that is interrupted can be
// resumed and only the documents still in the old space are processed.
// Ingestion must be stopped while a run is in progress.
type Reembedder struct {
	store     storage.Store
	embedder  ai.Embedder
	config    *Config
	progress  io.Writer
	logger    *slog.Logger
	processor *BatchProcessor
	iterator  *DocumentIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store storage.Store, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		store:     store,
		embedder:  embedder,
		config:    config,
		progress:  progress,
		logger:    slog.Default().With("component", "reembed"),
		processor: NewBatchProcessor(store, embedder, config.BatchSize, config.MaxRetries, config.RetryDelay),
		iterator:  NewDocumentIterator(store, config.TenantID, embedder.Space(), config.Force, DefaultBatchSize),
	}, nil
}

// Run executes the reembedding operation.
// Progress is reported to the configured writer. The store is pinned to
// the embedder's space only after every pending document succeeded, so
// search keeps serving the old space if the run fails part way.
func (r *Reembedder) Run(ctx context.Context) (*Report, error) {
	target := r.embedder.Space()
	pinned, err := r.store.GetSpace(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding space: %w", err)
	}

	pending, err := r.iterator.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	report := &Report{Space: pinned}
	totalChunks := 0
	for _, doc := range pending {
		totalChunks += doc.ChunkCount
	}

	if len(pending) == 0 {
		fmt.Fprintf(r.progress, "No documents need reembedding (0 records)\n")
		return r.pin(ctx, report, pinned, target)
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d documents, %d chunks (%s -> %s/%d)\n",
		len(pending), totalChunks, pinned.Model, target.Model, target.Dimension)

	tracker := NewProgressTracker(r.progress, totalChunks, r.config.ReportInterval, "chunks")
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		for _, doc := range docs {
			n, err := r.processor.Process(ctx, doc)
			if errors.Is(err, errDocumentChanged) {
				r.logger.Warn("skipping document", "tenant", doc.TenantID, "source", doc.SourceID, "error", err)
				report.Skipped++
				tracker.Increment(doc.ChunkCount)
				continue
			}
			if err != nil {
				return err
			}
			report.Documents++
			report.Chunks += n
			tracker.Increment(doc.ChunkCount)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	tracker.Finish()
	report.Elapsed = tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d documents (%d chunks) in %v (%.1f chunks/sec)\n",
		report.Documents, report.Chunks, report.Elapsed.Round(time.Millisecond),
		float64(report.Chunks)/max(report.Elapsed.Seconds(), 1e-9))

	return r.pin(ctx, report, pinned, target)
}

// pin moves the store to target unless nothing was ever committed or the
// run was restricted to one tenant.
func (r *Reembedder) pin(ctx context.Context, report *Report, pinned, target core.EmbeddingSpace) (*Report, error) {
	if r.config.TenantID != "" || (pinned.IsZero() && report.Documents == 0) {
		return report, nil
	}
	if !pinned.Compatible(target) {
		if err := r.store.SetSpace(ctx, target); err != nil {
			return report, fmt.Errorf("failed to pin embedding space: %w", err)
		}
		r.logger.Info("embedding space pinned", "model", target.Model, "dimension", target.Dimension)
	}
	report.Space = target
	return report, nil
}

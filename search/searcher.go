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

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

// Searcher embeds queries and retrieves the most similar chunks.
type Searcher struct {
	store        storage.ChunkRepository
	embedder     ai.Embedder
	defaultLimit int
	logger       *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithDefaultLimit sets the number of hits returned when a search passes
// a non-positive limit. Default is storage.DefaultLimit.
func WithDefaultLimit(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("default limit must be at least 1: %d", n)
		}
		s.defaultLimit = n
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:        store,
		embedder:     embedder,
		defaultLimit: storage.DefaultLimit,
		logger:       slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search returns up to limit chunks of tenantID's completed documents
// ranked by similarity to query.
func (s *Searcher) Search(ctx context.Context, tenantID, query string, limit int) ([]*core.SearchHit, error) {
	return s.SearchWithMonitor(ctx, tenantID, query, limit, nil)
}

// SearchWithMonitor is Search with stage callbacks.
func (s *Searcher) SearchWithMonitor(ctx context.Context, tenantID, query string, limit int, monitor SearchMonitor) ([]*core.SearchHit, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if tenantID == "" {
		return nil, core.ErrEmptyTenant
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	start := time.Now()
	monitor.Start(tenantID, query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "tenant", tenantID, "err", err)
		if !errors.Is(err, core.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", core.ErrEmbedding, err)
		}
		return nil, err
	}
	space := s.embedder.Space()
	monitor.AfterQueryEmbedding(space, time.Since(start))

	hits, err := s.store.FindSimilar(ctx, tenantID, embedding, space, limit)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "tenant", tenantID, "err", err)
		return nil, err
	}
	if hits == nil {
		hits = []*core.SearchHit{}
	}

	s.logger.Debug("search finished", "tenant", tenantID, "hits", len(hits), "elapsed", time.Since(start))
	monitor.Finish(hits, time.Since(start))
	return hits, nil
}

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

package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/core"
)

// Embedder implements ai.Embedder against an OpenAI-compatible endpoint.
type Embedder struct {
	embedder *embeddings.EmbedderImpl
	space    core.EmbeddingSpace
	limiter  *rate.Limiter
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config, clientOpts ...openai.Option) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token.
	token := config.Token
	if token == "" {
		token = "none"
	}
	opts := append([]openai.Option{
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	}, clientOpts...)
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if config.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(config.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, err
	}

	e := &Embedder{
		embedder: embedder,
		space:    core.EmbeddingSpace{Model: config.EmbeddingModel, Dimension: config.Dimension},
		logger:   slog.Default().With("component", "openai-embedder"),
	}
	if config.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	return e, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// Space returns the configured model and dimension.
func (e *Embedder) Space() core.EmbeddingSpace {
	return e.space
}

// EmbedText generates a vector embedding for a single text string.
// Documents and queries go through the same endpoint so identical text
// yields identical vectors on both paths.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
		}
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", core.ErrEmbedding, len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != e.space.Dimension {
			return nil, fmt.Errorf("%w: model %s returned dimension %d, configured %d (text %q)",
				core.ErrEmbedding, e.space.Model, len(v), e.space.Dimension, preview(texts[i]))
		}
	}
	return vectors, nil
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > 32 {
		return string(r[:32]) + "..."
	}
	return s
}

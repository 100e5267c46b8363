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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/core"
)

// embeddingStage embeds chunk texts in batches, running up to concurrency
// batches at once against a shared embedder.
type embeddingStage struct {
	embedder    ai.Embedder
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// embed returns one vector per text, in input order. Every vector is
// checked against the embedder's space.
func (es *embeddingStage) embed(ctx context.Context, texts []string) ([][]float32, error) {
	space := es.embedder.Space()
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(es.concurrency)
	for start := 0; start < len(texts); start += es.batchSize {
		end := min(start+es.batchSize, len(texts))
		g.Go(func() error {
			es.logger.Debug("embedding batch", "from", start, "to", end)
			batch, err := es.embedder.EmbedTexts(gctx, texts[start:end])
			if err != nil {
				return embeddingError(err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
					core.ErrEmbedding, end-start, len(batch))
			}
			for i, v := range batch {
				if len(v) != space.Dimension {
					return fmt.Errorf("%w: vector %d has dimension %d, model %s has %d",
						core.ErrEmbedding, start+i, len(v), space.Model, space.Dimension)
				}
				vectors[start+i] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func embeddingError(err error) error {
	if errors.Is(err, core.ErrEmbedding) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrEmbedding, err)
}

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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

// CommitChunks writes a processing document's chunks and completes it.
func (s *Store) CommitChunks(ctx context.Context, tenantID, sourceID string, attempt int, space core.EmbeddingSpace, chunks []*core.Chunk) (*core.Document, error) {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return nil, err
	}
	var result *core.Document
	err := s.withTx(ctx, true, func(tx *sql.Tx) error {
		doc, err := mustReadDocument(ctx, tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		pinned, err := readSpace(ctx, tx)
		if err != nil {
			return err
		}
		next, err := storage.ApplyCommit(doc, attempt, pinned, space, chunks, s.now())
		if err != nil {
			return err
		}

		if err := deleteChunks(ctx, tx, tenantID, sourceID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (tenant_id, source_id, seq, text, token_estimate, vector)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range chunks {
			_, err := stmt.ExecContext(ctx, tenantID, sourceID, c.Seq, c.Text, c.TokenEstimate, storage.EncodeVector(c.Vector))
			if err != nil {
				return err
			}
		}

		if err := writeDocument(ctx, tx, doc); err != nil {
			return err
		}
		if next != pinned {
			if err := writeSpace(ctx, tx, next); err != nil {
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
	err := s.withTx(ctx, false, func(tx *sql.Tx) error {
		pinned, err := readSpace(ctx, tx)
		if err != nil {
			return err
		}
		if pinned.IsZero() {
			return nil
		}
		if err := storage.CheckSpace(pinned, space); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT c.source_id, c.seq, c.text, c.vector, d.title
			FROM chunks c
			JOIN documents d ON d.tenant_id = c.tenant_id AND d.source_id = c.source_id
			WHERE c.tenant_id = ?
			  AND d.status = ?
			  AND d.space_model = ?
			  AND d.space_dimension = ?`,
			tenantID, string(core.StatusCompleted), space.Model, space.Dimension)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				sourceID, text, title string
				seq                   int
				blob                  []byte
			)
			if err := rows.Scan(&sourceID, &seq, &text, &blob, &title); err != nil {
				return err
			}
			vector, err := storage.DecodeVector(blob)
			if err != nil {
				return err
			}
			if err := ranker.Offer(vector, text, seq, title, sourceID); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return ranker.Results(), nil
}

// ListChunks returns a document's chunks ordered by seq.
func (s *Store) ListChunks(ctx context.Context, tenantID, sourceID string) ([]*core.Chunk, error) {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return nil, err
	}
	var chunks []*core.Chunk
	err := s.withTx(ctx, false, func(tx *sql.Tx) error {
		doc, err := mustReadDocument(ctx, tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		chunks, err = readChunks(ctx, tx, doc)
		return err
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return chunks, nil
}

func readChunks(ctx context.Context, tx *sql.Tx, doc *core.Document) ([]*core.Chunk, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT seq, text, token_estimate, vector FROM chunks
		WHERE tenant_id = ? AND source_id = ?
		ORDER BY seq`, doc.TenantID, doc.SourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		c := &core.Chunk{DocumentID: doc.ID, TenantID: doc.TenantID, SourceID: doc.SourceID}
		var blob []byte
		if err := rows.Scan(&c.Seq, &c.Text, &c.TokenEstimate, &blob); err != nil {
			return nil, err
		}
		if c.Vector, err = storage.DecodeVector(blob); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// UpdateVectors swaps in new vectors for a completed document.
func (s *Store) UpdateVectors(ctx context.Context, tenantID, sourceID string, space core.EmbeddingSpace, vectors [][]float32) error {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return err
	}
	err := s.withTx(ctx, true, func(tx *sql.Tx) error {
		doc, err := mustReadDocument(ctx, tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		if doc.Status != core.StatusCompleted {
			return fmt.Errorf("%w: cannot update vectors of a %s document", core.ErrInvalidTransition, doc.Status)
		}
		chunks, err := readChunks(ctx, tx, doc)
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
			_, err := tx.ExecContext(ctx,
				"UPDATE chunks SET vector = ? WHERE tenant_id = ? AND source_id = ? AND seq = ?",
				storage.EncodeVector(c.Vector), tenantID, sourceID, c.Seq)
			if err != nil {
				return err
			}
		}
		doc.Space = space
		doc.UpdatedAt = s.now()
		return writeDocument(ctx, tx, doc)
	})
	return storage.Persistence(err)
}

// GetSpace returns the pinned embedding space.
func (s *Store) GetSpace(ctx context.Context) (core.EmbeddingSpace, error) {
	var space core.EmbeddingSpace
	err := s.withTx(ctx, false, func(tx *sql.Tx) error {
		var err error
		space, err = readSpace(ctx, tx)
		return err
	})
	return space, storage.Persistence(err)
}

// SetSpace pins the embedding space.
func (s *Store) SetSpace(ctx context.Context, space core.EmbeddingSpace) error {
	return storage.Persistence(s.withTx(ctx, true, func(tx *sql.Tx) error {
		return writeSpace(ctx, tx, space)
	}))
}

func readSpace(ctx context.Context, tx *sql.Tx) (core.EmbeddingSpace, error) {
	var space core.EmbeddingSpace
	err := tx.QueryRowContext(ctx, "SELECT model, dimension FROM embedding_space WHERE id = 1").
		Scan(&space.Model, &space.Dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EmbeddingSpace{}, nil
	}
	return space, err
}

func writeSpace(ctx context.Context, tx *sql.Tx, space core.EmbeddingSpace) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO embedding_space (id, model, dimension) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET model = excluded.model, dimension = excluded.dimension`,
		space.Model, space.Dimension)
	return err
}

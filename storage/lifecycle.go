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
	"fmt"
	"time"

	"github.com/poiesic/snapq/core"
)

// Registration decides how Create treats an existing document. It returns
// the record to write. existing may be nil.
func Registration(existing, incoming *core.Document, now time.Time) (*core.Document, error) {
	if err := core.ValidateDocument(incoming); err != nil {
		return nil, err
	}
	if existing == nil {
		doc := *incoming
		doc.ID = core.DocumentID(doc.TenantID, doc.SourceID)
		doc.Status = core.StatusQueued
		doc.ErrorMessage = ""
		doc.Attempts = 0
		doc.ChunkCount = 0
		doc.Space = core.EmbeddingSpace{}
		if doc.Title == "" {
			doc.Title = doc.Filename
		}
		doc.CreatedAt = now
		doc.UpdatedAt = now
		return &doc, nil
	}
	if !existing.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s/%s is %s", core.ErrDuplicateSource, existing.TenantID, existing.SourceID, existing.Status)
	}

	doc := *existing
	doc.Filename = incoming.Filename
	doc.Location = incoming.Location
	if incoming.Title != "" {
		doc.Title = incoming.Title
	}
	doc.UpdatedAt = now
	return &doc, nil
}

// ApplyTransition mutates doc for a move to status to and reports whether
// the document's existing chunks must be deleted in the same transaction.
func ApplyTransition(doc *core.Document, to core.DocumentStatus, errMsg string, now time.Time) (clearChunks bool, err error) {
	if to == core.StatusCompleted {
		return false, fmt.Errorf("%w: %s -> completed requires committed chunks", core.ErrInvalidTransition, doc.Status)
	}
	if err := core.ValidateTransition(doc.Status, to); err != nil {
		return false, err
	}

	switch to {
	case core.StatusProcessing:
		clearChunks = doc.Status.Terminal()
		if clearChunks {
			doc.ChunkCount = 0
		}
		doc.Attempts++
		doc.ErrorMessage = ""
	case core.StatusFailed:
		doc.ErrorMessage = errMsg
	}
	doc.Status = to
	doc.UpdatedAt = now
	return clearChunks, nil
}

// ApplyCommit validates a chunk commit against the document and the pinned
// space, then marks doc completed. attempt is the doc.Attempts value the
// committing attempt claimed; a commit from a superseded attempt is
// rejected. It returns the space to pin, which differs from pinned only
// when nothing was pinned yet.
func ApplyCommit(doc *core.Document, attempt int, pinned, space core.EmbeddingSpace, chunks []*core.Chunk, now time.Time) (core.EmbeddingSpace, error) {
	if doc.Status != core.StatusProcessing {
		return pinned, fmt.Errorf("%w: %s -> completed", core.ErrInvalidTransition, doc.Status)
	}
	if doc.Attempts != attempt {
		return pinned, fmt.Errorf("%w: attempt %d was superseded by attempt %d",
			core.ErrInvalidTransition, attempt, doc.Attempts)
	}
	if err := CheckSpace(pinned, space); err != nil {
		return pinned, err
	}
	if err := CheckVectors(space, chunks); err != nil {
		return pinned, err
	}

	for _, c := range chunks {
		c.DocumentID = doc.ID
		c.TenantID = doc.TenantID
		c.SourceID = doc.SourceID
	}
	doc.Status = core.StatusCompleted
	doc.ChunkCount = len(chunks)
	doc.Space = space
	doc.ErrorMessage = ""
	doc.UpdatedAt = now

	if pinned.IsZero() {
		return space, nil
	}
	return pinned, nil
}

// CheckSpace fails with core.ErrEmbeddingSpaceMismatch when a space is
// already pinned and differs from space.
func CheckSpace(pinned, space core.EmbeddingSpace) error {
	if space.Dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", core.ErrEmbeddingSpaceMismatch, space.Dimension)
	}
	if !pinned.IsZero() && !pinned.Compatible(space) {
		return fmt.Errorf("%w: store holds %s/%d, got %s/%d", core.ErrEmbeddingSpaceMismatch,
			pinned.Model, pinned.Dimension, space.Model, space.Dimension)
	}
	return nil
}

// CheckVectors validates chunk layout and that every vector has the
// dimension of space.
func CheckVectors(space core.EmbeddingSpace, chunks []*core.Chunk) error {
	if err := core.ValidateChunks(chunks); err != nil {
		return err
	}
	for _, c := range chunks {
		if len(c.Vector) != space.Dimension {
			return fmt.Errorf("%w: chunk %d has dimension %d, space %s has %d",
				core.ErrEmbeddingSpaceMismatch, c.Seq, len(c.Vector), space.Model, space.Dimension)
		}
	}
	return nil
}

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

package core

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - TenantID, SourceID and Filename must not be empty
//   - Status must be one of the known statuses
//
// NOT validated:
//   - Location (upload handling may use opaque locators)
//   - ChunkCount and Attempts (maintained by the store)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if err := ValidateKey(doc.TenantID, doc.SourceID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFilename)
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrInvalidStatus, doc.Status)
	}
	return nil
}

// ValidateKey checks the (tenant, source) pair that addresses a document.
func ValidateKey(tenantID, sourceID string) error {
	if tenantID == "" {
		return ErrEmptyTenant
	}
	if sourceID == "" {
		return ErrEmptySource
	}
	if strings.ContainsRune(tenantID, 0) || strings.ContainsRune(sourceID, 0) {
		return ErrInvalidKey
	}
	return nil
}

// ValidateChunks checks that chunks form one complete ingestion result:
// seq values run 0..n-1 in order and every vector has the same non-zero
// dimension.
func ValidateChunks(chunks []*Chunk) error {
	dim := -1
	for i, c := range chunks {
		if c == nil {
			return fmt.Errorf("%w: chunk %d is nil", ErrInvalidChunks, i)
		}
		if c.Seq != i {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrInvalidChunks, i, c.Seq)
		}
		if len(c.Vector) == 0 {
			return fmt.Errorf("%w: chunk %d has no vector", ErrInvalidChunks, i)
		}
		if dim == -1 {
			dim = len(c.Vector)
		} else if len(c.Vector) != dim {
			return fmt.Errorf("%w: chunk %d has dimension %d, want %d",
				ErrEmbeddingSpaceMismatch, i, len(c.Vector), dim)
		}
	}
	return nil
}

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

import "errors"

// Ingestion and retrieval errors. Every failure of an ingestion attempt is
// classified under one of these so callers can match with errors.Is.
var (
	// ErrDuplicateSource indicates the (tenant, source) pair is already
	// registered and not eligible for re-ingestion.
	ErrDuplicateSource = errors.New("duplicate source")

	// ErrInvalidTransition indicates a document status change outside the
	// lifecycle table, including a second concurrent attempt.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnsupportedFileType indicates no extraction strategy exists for the file extension.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrNoTextExtracted indicates every extraction strategy produced empty text.
	ErrNoTextExtracted = errors.New("no text extracted")

	// ErrEmbedding indicates the embedding model failed to produce vectors.
	ErrEmbedding = errors.New("embedding failed")

	// ErrPersistence indicates the chunk store could not durably write.
	ErrPersistence = errors.New("persistence failed")

	// ErrEmbeddingSpaceMismatch indicates a vector does not belong to the
	// embedding space pinned by the store.
	ErrEmbeddingSpaceMismatch = errors.New("embedding space mismatch")
)

// Domain validation errors
var (
	ErrInvalidDocument = errors.New("invalid document")
	ErrInvalidChunks   = errors.New("invalid chunks")
	ErrEmptyTenant     = errors.New("tenant id cannot be empty")
	ErrEmptySource     = errors.New("source id cannot be empty")
	ErrEmptyFilename   = errors.New("filename cannot be empty")
	ErrInvalidStatus   = errors.New("invalid document status")
	ErrInvalidKey      = errors.New("identifier cannot contain NUL bytes")
)

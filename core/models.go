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
	"encoding/binary"
	"path/filepath"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentID derives the identifier of the document registered under
// (tenantID, sourceID). The separator keeps ("ab","c") and ("a","bc") apart.
func DocumentID(tenantID, sourceID string) ID {
	return IDFromContent(tenantID + "\x00" + sourceID)
}

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends an ingestion attempt.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s DocumentStatus) String() string {
	return string(s)
}

// Document tracks one uploaded file through ingestion.
type Document struct {
	ID           ID             `msgpack:"id" json:"document_id"`
	TenantID     string         `msgpack:"tenant" json:"tenant_id"`
	SourceID     string         `msgpack:"source" json:"source_id"`
	Filename     string         `msgpack:"filename" json:"filename"`
	Title        string         `msgpack:"title" json:"title"`
	Location     string         `msgpack:"location" json:"file_location"` // Where upload handling stored the raw file
	Status       DocumentStatus `msgpack:"status" json:"status"`
	ErrorMessage string         `msgpack:"error,omitempty" json:"error_message,omitempty"`
	Attempts     int            `msgpack:"attempts" json:"attempts"`       // Ingestion attempts started
	ChunkCount   int            `msgpack:"chunk_count" json:"chunk_count"` // Chunks committed by the last successful attempt
	Space        EmbeddingSpace `msgpack:"space" json:"space"`             // Space of the committed chunk vectors
	CreatedAt    time.Time      `msgpack:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `msgpack:"updated_at" json:"updated_at"`
}

// NewDocument returns a queued document for the given upload. Title
// defaults to the base name of the file.
func NewDocument(tenantID, sourceID, filename, location string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        DocumentID(tenantID, sourceID),
		TenantID:  tenantID,
		SourceID:  sourceID,
		Filename:  filename,
		Title:     filepath.Base(filename),
		Location:  location,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Chunk is a bounded segment of a document's text with its embedding.
type Chunk struct {
	DocumentID    ID        `msgpack:"doc"`
	TenantID      string    `msgpack:"tenant"`
	SourceID      string    `msgpack:"source"`
	Seq           int       `msgpack:"seq"`
	Text          string    `msgpack:"text"`
	TokenEstimate int       `msgpack:"tokens"`
	Vector        []float32 `msgpack:"vector"`
}

// SearchHit is one ranked chunk returned by similarity search.
type SearchHit struct {
	Text       string  `json:"text"`
	Seq        int     `json:"seq"`
	Title      string  `json:"title"`
	SourceID   string  `json:"source_id"`
	Similarity float32 `json:"similarity"`
}

// EmbeddingSpace identifies the vector space produced by an embedding
// model. Vectors from different spaces cannot be compared.
type EmbeddingSpace struct {
	Model     string `msgpack:"model" json:"model"`
	Dimension int    `msgpack:"dimension" json:"dimension"`
}

// IsZero reports whether no space has been pinned.
func (s EmbeddingSpace) IsZero() bool {
	return s.Model == "" && s.Dimension == 0
}

// Compatible reports whether vectors from o may be compared with vectors from s.
func (s EmbeddingSpace) Compatible(o EmbeddingSpace) bool {
	return s.Model == o.Model && s.Dimension == o.Dimension
}

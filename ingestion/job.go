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
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/poiesic/snapq/chunking"
	"github.com/poiesic/snapq/core"
)

// TextExtractor converts a stored file into plain text.
// *extraction.Extractor satisfies it.
type TextExtractor interface {
	Extract(ctx context.Context, location, filename string) (string, error)
}

// typeChecker is implemented by extractors that can tell whether a
// filename has any extraction strategy.
type typeChecker interface {
	Supports(filename string) bool
}

// Splitter splits text into ordered chunks. *chunking.Chunker satisfies it.
type Splitter interface {
	Chunk(text string) []chunking.Chunk
}

// Request describes one uploaded file to ingest.
type Request struct {
	TenantID string `json:"tenant_id"`
	SourceID string `json:"source_id"`
	Filename string `json:"filename"`
	Location string `json:"file_location"`
	Title    string `json:"title,omitempty"`
}

// Validate checks the fields every request needs.
func (r Request) Validate() error {
	if err := core.ValidateKey(r.TenantID, r.SourceID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if r.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, core.ErrEmptyFilename)
	}
	if r.Location == "" {
		return fmt.Errorf("%w: empty file location", ErrInvalidRequest)
	}
	return nil
}

func (r Request) document() *core.Document {
	doc := core.NewDocument(r.TenantID, r.SourceID, r.Filename, r.Location)
	if r.Title != "" {
		doc.Title = r.Title
	}
	return doc
}

// Job identifies one queued ingestion attempt.
type Job struct {
	ID          ulid.ULID
	TenantID    string
	SourceID    string
	Filename    string
	Location    string
	SubmittedAt time.Time
}

func newJob(doc *core.Document) Job {
	return Job{
		ID:          ulid.Make(),
		TenantID:    doc.TenantID,
		SourceID:    doc.SourceID,
		Filename:    doc.Filename,
		Location:    doc.Location,
		SubmittedAt: time.Now().UTC(),
	}
}

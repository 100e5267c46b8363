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

// Package ingestion turns stored files into searchable chunks.
//
// A Pipeline runs one ingestion attempt per document: it claims the document
// by moving it to processing, extracts text, splits it into chunks, embeds
// the chunks and commits them together with the completed status. Any
// failure, including a timeout, marks the document failed with the error
// recorded and never stops the worker pool.
//
// Jobs run on an ants worker pool. Submit enqueues a job, Ingest runs one
// synchronously, Retry re-runs a terminal document and Recover repairs
// documents left behind by a crashed process.
package ingestion

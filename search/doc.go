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

// Package search answers natural-language queries against one tenant's
// ingested documents.
//
// A Searcher embeds the query with the same embedder used at ingestion and
// asks the chunk store for the most similar chunks of the tenant's completed
// documents. Hits are ranked by cosine similarity, ties broken by chunk
// sequence and then source ID, and truncated to the requested limit.
// Errors from the embedder or the store are returned to the caller; no
// partial or degraded results are produced.
package search

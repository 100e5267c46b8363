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

// Package reembed migrates a store to a new embedding model.
//
// Vectors from different models cannot be compared, so switching models
// means recomputing the vector of every committed chunk from its stored
// text. The Reembedder walks the completed documents, re-embeds their
// chunks in batches with retry and exponential backoff, normalizes the
// results and writes them back one document at a time. Once every
// document has moved, the store is pinned to the new space and search
// starts accepting queries from the new model.
//
//	r, err := reembed.NewReembedder(store, embedder, reembed.DefaultConfig(), os.Stderr)
//	if err != nil {
//		return err
//	}
//	report, err := r.Run(ctx)
package reembed

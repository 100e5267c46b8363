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

// Package chunking splits extracted document text into ordered, bounded
// segments ready for embedding.
//
// Text is split into sentence units on ". " and sentences are packed greedily
// into chunks whose estimated token count stays under a configured maximum.
// A single sentence larger than the maximum becomes its own chunk; the
// chunker never splits below sentence granularity.
//
// Output is deterministic for a given (text, max tokens, estimator) so
// re-ingesting the same document reproduces the same chunk boundaries.
package chunking

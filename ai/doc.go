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

// Package ai provides the embedding abstraction used by ingestion and search.
//
// # Design Principles
//
// Ingestion and retrieval must embed text with the same model, otherwise
// similarity scores are meaningless. The package therefore exposes a single
// Embedder interface, owned by a Provider created once per process and
// injected into both paths. Every Embedder reports its core.EmbeddingSpace
// (model name plus dimension); stores pin the space of the vectors they hold
// and reject vectors from any other space.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible HTTP endpoints through langchaingo
//   - ai/local: in-process hashed bag-of-words embedder, no model server needed
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Production constructors return the ai interfaces; mock constructors return
// concrete types so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithProvider(ai.ProviderOpenAI), ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "how to replace filter")
package ai

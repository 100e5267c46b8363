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

package ai

// Provider kinds accepted by Config.Provider.
const (
	// ProviderOpenAI talks to an OpenAI-compatible embeddings endpoint
	// (OpenAI, Ollama, LocalAI, vLLM).
	ProviderOpenAI = "openai"

	// ProviderLocal embeds in-process without a model server.
	ProviderLocal = "local"
)

// LocalDimension is the default vector size of the in-process embedder.
const LocalDimension = 384

// knownDimensions lists the output size of common embedding models so the
// dimension need not be configured for them.
var knownDimensions = map[string]int{
	"embeddinggemma":         768,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"bge-m3":                 1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// KnownDimension returns the output dimension of a well-known model.
func KnownDimension(model string) (int, bool) {
	dim, ok := knownDimensions[model]
	return dim, ok
}

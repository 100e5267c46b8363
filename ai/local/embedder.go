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

// Package local provides an in-process ai.Embedder that needs no model
// server. Text is tokenized into lowercase Unicode words, stopwords are
// dropped and each remaining term is hashed into a fixed number of signed
// buckets (the hashing trick). Term weights are 1+ln(tf) and vectors are L2
// normalized, so cosine similarity reduces to weighted term overlap.
//
// The embedder has no learned semantics; it suits offline use, tests and
// small corpora where lexical overlap is a good enough relevance signal.
package local

import (
	"context"
	"encoding/binary"
	"math"
	"regexp"
	"strings"

	"github.com/go-crypt/x/blake2b"

	"github.com/poiesic/snapq/ai"
	"github.com/poiesic/snapq/core"
)

// ModelName identifies vectors produced by this embedder. Bump the suffix
// whenever tokenization or hashing changes so stores detect the new space.
const ModelName = "snapq-hash-v2"

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Embedder is a deterministic feature-hashing embedder.
type Embedder struct {
	dim       int
	stopwords map[string]struct{}
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder producing vectors of size dim.
// A non-positive dim selects ai.LocalDimension.
func NewEmbedder(dim int) *Embedder {
	if dim <= 0 {
		dim = ai.LocalDimension
	}
	return &Embedder{dim: dim, stopwords: defaultStopwords()}
}

func (e *Embedder) Space() core.EmbeddingSpace {
	return core.EmbeddingSpace{Model: ModelName, Dimension: e.dim}
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	counts := make(map[string]int)
	for _, tok := range e.tokenize(text) {
		counts[tok]++
	}

	acc := make([]float64, e.dim)
	for term, n := range counts {
		idx, sign := e.bucket(term)
		acc[idx] += sign * (1 + math.Log(float64(n)))
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// bucket maps a term to a dimension and a sign. The sign bit comes from a
// different part of the hash than the index to keep collisions unbiased.
func (e *Embedder) bucket(term string) (int, float64) {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(term))
	v := binary.BigEndian.Uint64(h.Sum(nil))
	sign := 1.0
	if v>>63 == 1 {
		sign = -1.0
	}
	return int(v % uint64(e.dim)), sign
}

func (e *Embedder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; stop {
			continue
		}
		out = append(out, stem(t))
	}
	return out
}

// stem strips a plural "s" so "filters" and "filter" share a bucket.
func stem(t string) string {
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") {
		return t[:len(t)-1]
	}
	return t
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such",
		"into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off",
		"own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "how", "what", "why",
		"when", "where", "which", "who", "do", "does", "i", "you", "we", "my", "your",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

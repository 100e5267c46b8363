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

package storage

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/snapq/core"
)

// DefaultLimit is the number of hits returned when no limit is given.
const DefaultLimit = 5

// Cosine returns the cosine similarity of a and b, or 0 if either has zero
// length. Vectors must have equal dimension.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// CompareHits orders hits by similarity descending, then seq ascending,
// then source ID ascending. The order is total for hits of one tenant.
func CompareHits(a, b *core.SearchHit) int {
	if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.SourceID, b.SourceID)
}

// Ranker accumulates scored chunks and keeps the best limit of them.
type Ranker struct {
	query []float32
	limit int
	hits  []*core.SearchHit
}

// NewRanker creates a ranker for query. A non-positive limit selects DefaultLimit.
func NewRanker(query []float32, limit int) *Ranker {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Ranker{query: query, limit: limit}
}

// Offer scores a chunk vector. It fails with core.ErrEmbeddingSpaceMismatch
// when the vector dimension differs from the query.
func (r *Ranker) Offer(vector []float32, text string, seq int, title, sourceID string) error {
	if len(vector) != len(r.query) {
		return fmt.Errorf("%w: query dimension %d, stored %d", core.ErrEmbeddingSpaceMismatch, len(r.query), len(vector))
	}
	r.hits = append(r.hits, &core.SearchHit{
		Text:       text,
		Seq:        seq,
		Title:      title,
		SourceID:   sourceID,
		Similarity: Cosine(r.query, vector),
	})
	// Compact once the buffer grows well past the limit to bound memory.
	if len(r.hits) >= 4*r.limit+64 {
		r.compact()
	}
	return nil
}

func (r *Ranker) compact() {
	slices.SortFunc(r.hits, CompareHits)
	if len(r.hits) > r.limit {
		clear(r.hits[r.limit:])
		r.hits = r.hits[:r.limit]
	}
}

// Results returns the ranked hits.
func (r *Ranker) Results() []*core.SearchHit {
	r.compact()
	return r.hits
}

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

package search

import (
	"time"

	"github.com/poiesic/snapq/core"
)

// SearchMonitor receives callbacks at each stage of a search.
type SearchMonitor interface {
	Start(tenantID, query string)
	AfterQueryEmbedding(space core.EmbeddingSpace, elapsed time.Duration)
	Finish(hits []*core.SearchHit, elapsed time.Duration)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                                          {}
func (n *noopMonitor) AfterQueryEmbedding(_ core.EmbeddingSpace, _ time.Duration) {}
func (n *noopMonitor) Finish(_ []*core.SearchHit, _ time.Duration)                {}

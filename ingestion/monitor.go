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
	"time"

	"github.com/poiesic/snapq/core"
)

// Monitor receives callbacks around each ingestion attempt. Implementations
// must be safe for concurrent use; attempts run in parallel.
type Monitor interface {
	AttemptStarted(job Job)
	TextExtracted(job Job, chars int)
	ChunksEmbedded(job Job, chunks int)
	AttemptFinished(job Job, doc *core.Document, err error, elapsed time.Duration)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) AttemptStarted(_ Job)                                              {}
func (n *noopMonitor) TextExtracted(_ Job, _ int)                                        {}
func (n *noopMonitor) ChunksEmbedded(_ Job, _ int)                                       {}
func (n *noopMonitor) AttemptFinished(_ Job, _ *core.Document, _ error, _ time.Duration) {}

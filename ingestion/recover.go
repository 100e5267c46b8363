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
	"context"
	"errors"

	"github.com/poiesic/snapq/core"
)

// InterruptedMessage is recorded on documents found mid-attempt by Recover.
const InterruptedMessage = "interrupted: the process stopped before the attempt finished"

// RecoveryReport summarizes what Recover changed.
type RecoveryReport struct {
	// Interrupted counts processing documents marked failed.
	Interrupted int
	// Requeued counts queued documents submitted again.
	Requeued int
}

// Recover repairs state left by a process that stopped mid-ingestion.
// Documents still processing are marked failed with InterruptedMessage so
// they can be retried; documents still queued are submitted again. Run it
// only while no other process ingests into the same store, since a live
// attempt is indistinguishable from an abandoned one.
func (p *Pipeline) Recover(ctx context.Context) (RecoveryReport, error) {
	var (
		report RecoveryReport
		errs   []error
	)

	interrupted, err := p.store.List(ctx, "", core.StatusProcessing)
	if err != nil {
		return report, err
	}
	for _, doc := range interrupted {
		_, err := p.store.Transition(ctx, doc.TenantID, doc.SourceID, core.StatusFailed, InterruptedMessage)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.logger.Warn("marked interrupted ingestion as failed", "tenant", doc.TenantID, "source", doc.SourceID)
		report.Interrupted++
	}

	queued, err := p.store.List(ctx, "", core.StatusQueued)
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	for _, doc := range queued {
		if _, err := p.enqueue(ctx, doc); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Requeued++
	}

	p.logger.Info("recovery finished", "interrupted", report.Interrupted, "requeued", report.Requeued)
	return report, errors.Join(errs...)
}

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
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/snapq/core"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")
)

// domainErrors pass through Persistence untouched.
var domainErrors = []error{
	ErrNotFound,
	ErrInvalidQuery,
	core.ErrDuplicateSource,
	core.ErrInvalidTransition,
	core.ErrEmbeddingSpaceMismatch,
	core.ErrInvalidDocument,
	core.ErrInvalidChunks,
	core.ErrInvalidStatus,
	core.ErrEmptyTenant,
	core.ErrEmptySource,
	core.ErrInvalidKey,
	core.ErrPersistence,
	context.Canceled,
	context.DeadlineExceeded,
}

// Persistence classifies an engine error as core.ErrPersistence. Domain
// errors raised inside a transaction are returned unchanged so callers can
// still match them.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", core.ErrPersistence, err)
}

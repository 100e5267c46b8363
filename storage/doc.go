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

// Package storage provides the persistence abstraction for documents and
// their chunk vectors.
//
// Two backends implement Store:
//
//   - storage/badger: embedded key-value store, the default
//   - storage/sqlite: single-file relational store through database/sql
//
// # Architecture
//
//   - DocumentRepository: document lifecycle (register, transition, list, delete)
//   - ChunkRepository: atomic chunk commit, tenant-scoped similarity search,
//     vector migration and the pinned embedding space
//   - Store: both, sharing one backend so a chunk commit and the status
//     flip to completed land in the same transaction
//
// The lifecycle rules (Registration, ApplyTransition, ApplyCommit) and the
// ranking rules (Ranker, CompareHits) live in this package so every backend
// enforces them identically; backends only supply transactions and scans.
//
// # Usage
//
//	store, err := badger.Open("/var/lib/snapq", slog.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store := badger.NewMemoryStore(t)
//
// # Errors
//
// Missing records are reported as ErrNotFound. Engine failures are wrapped
// in core.ErrPersistence by Persistence; lifecycle and space violations keep
// their core error so callers can match with errors.Is.
//
// # Thread Safety
//
// All implementations are safe for concurrent use. Conflicting lifecycle
// transitions on the same document are serialized by the backend; the loser
// observes the winner's state and fails with core.ErrInvalidTransition.
package storage

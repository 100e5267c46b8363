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

// Package sqlite provides a storage.Store backed by a single SQLite file
// through the pure-Go modernc.org/sqlite driver.
//
// Documents and chunks live in two tables joined on (tenant_id, source_id).
// Chunk vectors are stored as little-endian float32 blobs and scored in Go,
// so no SQLite extension is required. The schema is created and upgraded by
// embedded migrations recorded in schema_migrations.
//
// Usage:
//
//	store, err := sqlite.Open("/var/lib/snapq/snapq.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package sqlite

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

package badger

import (
	"encoding/binary"
)

// Key layout. Tenant and source IDs never contain NUL, so a NUL terminator
// keeps one tenant's prefix from matching another's.
//
//	doc:<tenant>\x00<source>               -> msgpack core.Document
//	chk:<tenant>\x00<source>\x00<seq BE32> -> msgpack core.Chunk
//	meta:space                             -> msgpack core.EmbeddingSpace
const (
	documentPrefix = "doc:"
	chunkPrefix    = "chk:"
	spaceKey       = "meta:space"
)

// makeDocumentKey generates the key of a document.
func makeDocumentKey(tenantID, sourceID string) []byte {
	buf := make([]byte, 0, len(documentPrefix)+len(tenantID)+1+len(sourceID))
	buf = append(buf, documentPrefix...)
	buf = append(buf, tenantID...)
	buf = append(buf, 0)
	return append(buf, sourceID...)
}

// makeDocumentPrefix generates the prefix of a tenant's documents, or of all
// documents when tenantID is empty.
func makeDocumentPrefix(tenantID string) []byte {
	if tenantID == "" {
		return []byte(documentPrefix)
	}
	buf := make([]byte, 0, len(documentPrefix)+len(tenantID)+1)
	buf = append(buf, documentPrefix...)
	buf = append(buf, tenantID...)
	return append(buf, 0)
}

// makeTenantChunkPrefix generates the prefix of all chunks of a tenant.
func makeTenantChunkPrefix(tenantID string) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+len(tenantID)+1)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, tenantID...)
	return append(buf, 0)
}

// makeChunkPrefix generates the prefix of one document's chunks.
func makeChunkPrefix(tenantID, sourceID string) []byte {
	buf := makeTenantChunkPrefix(tenantID)
	buf = append(buf, sourceID...)
	return append(buf, 0)
}

// makeChunkKey generates the key of a chunk. Big-endian seq keeps chunks
// in seq order under iteration.
func makeChunkKey(tenantID, sourceID string, seq int) []byte {
	buf := makeChunkPrefix(tenantID, sourceID)
	return binary.BigEndian.AppendUint32(buf, uint32(seq))
}

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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
)

// Store implements storage.Store on BadgerDB. Lifecycle moves and chunk
// writes for a document share one serializable transaction.
type Store struct {
	backend *Backend
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens or creates a store in the directory at path.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	backend, err := OpenBackend(path, false, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %s: %w", core.ErrPersistence, path, err)
	}
	return NewStore(backend, opts...), nil
}

// OpenMemory opens a store that lives only in memory.
func OpenMemory(logger *slog.Logger, opts ...Option) (*Store, error) {
	backend, err := OpenBackend("", true, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: open in-memory badger: %w", core.ErrPersistence, err)
	}
	return NewStore(backend, opts...), nil
}

// NewStore creates a Store over an open backend. The store owns the
// backend and closes it on Close.
func NewStore(backend *Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Create registers a document.
func (s *Store) Create(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	var result *core.Document
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.TenantID, doc.SourceID)
		existing, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		record, err := storage.Registration(existing, doc, s.now())
		if err != nil {
			return err
		}
		if err := writeDocument(tx, key, record); err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return result, nil
}

// Get retrieves a document.
func (s *Store) Get(ctx context.Context, tenantID, sourceID string) (*core.Document, error) {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return nil, err
	}
	var result *core.Document
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = mustReadDocument(tx, tenantID, sourceID)
		return err
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return result, nil
}

// List returns documents ordered by tenant then source ID.
func (s *Store) List(ctx context.Context, tenantID string, status core.DocumentStatus) ([]*core.Document, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}
	var results []*core.Document
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentPrefix(tenantID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			doc, err := decodeDocument(iter.Item())
			if err != nil {
				return err
			}
			if status == "" || doc.Status == status {
				results = append(results, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return results, nil
}

// Transition moves a document to another status.
func (s *Store) Transition(ctx context.Context, tenantID, sourceID string, to core.DocumentStatus, errMsg string) (*core.Document, error) {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return nil, err
	}
	var result *core.Document
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		doc, err := mustReadDocument(tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		clearChunks, err := storage.ApplyTransition(doc, to, errMsg, s.now())
		if err != nil {
			return err
		}
		if clearChunks {
			if err := deletePrefix(tx, makeChunkPrefix(tenantID, sourceID)); err != nil {
				return err
			}
		}
		if err := writeDocument(tx, makeDocumentKey(tenantID, sourceID), doc); err != nil {
			return err
		}
		result = doc
		return nil
	})
	if err != nil {
		return nil, storage.Persistence(err)
	}
	return result, nil
}

// Delete removes a document and its chunks.
func (s *Store) Delete(ctx context.Context, tenantID, sourceID string) error {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return err
	}
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		if _, err := mustReadDocument(tx, tenantID, sourceID); err != nil {
			return err
		}
		if err := deletePrefix(tx, makeChunkPrefix(tenantID, sourceID)); err != nil {
			return err
		}
		return tx.Delete(makeDocumentKey(tenantID, sourceID))
	})
	return storage.Persistence(err)
}

// readDocument returns nil, nil if key is absent.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodeDocument(item)
}

func mustReadDocument(tx *badger.Txn, tenantID, sourceID string) (*core.Document, error) {
	doc, err := readDocument(tx, makeDocumentKey(tenantID, sourceID))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s/%s", storage.ErrNotFound, tenantID, sourceID)
	}
	return doc, nil
}

func decodeDocument(item *badger.Item) (*core.Document, error) {
	var doc *core.Document
	err := item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

func writeDocument(tx *badger.Txn, key []byte, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(key, value)
}

// deletePrefix removes every key under prefix. Keys are collected before
// deletion because a transaction may not mutate what it is iterating.
func deletePrefix(tx *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	iter.Close()

	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/snapq/core"
	"github.com/poiesic/snapq/storage"
	"github.com/poiesic/snapq/storage/sqlite/migrations"
)

// Store implements storage.Store on a single SQLite database file.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migration messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for document timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens or creates the database file at path and applies pending
// migrations. The parent directory is created if needed.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", storage.ErrInvalidQuery)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %w", core.ErrPersistence, err)
	}

	// WAL lets searches read while a document commits. Writers take the
	// lock at BEGIN so a read-then-write transition cannot be interleaved.
	dsn := path +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", core.ErrPersistence, err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(context.Background(), migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %w", core.ErrPersistence, err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations, each in its own transaction together
// with its schema_migrations row.
func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		err = s.withTx(ctx, true, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "name", name, "version", version)
	}
	return nil
}

// withTx runs fn in a transaction and commits it when fn succeeds.
func (s *Store) withTx(ctx context.Context, write bool, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: !write})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const documentColumns = `tenant_id, source_id, id, filename, title, location, status,
	error_message, attempts, chunk_count, space_model, space_dimension, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*core.Document, error) {
	var (
		doc                  core.Document
		id                   int64
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&doc.TenantID, &doc.SourceID, &id, &doc.Filename, &doc.Title, &doc.Location, &status,
		&doc.ErrorMessage, &doc.Attempts, &doc.ChunkCount, &doc.Space.Model, &doc.Space.Dimension,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	doc.ID = core.ID(id)
	doc.Status = core.DocumentStatus(status)
	doc.CreatedAt = time.Unix(0, createdAt).UTC()
	doc.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &doc, nil
}

// readDocument returns nil, nil if the document is absent.
func readDocument(ctx context.Context, tx *sql.Tx, tenantID, sourceID string) (*core.Document, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE tenant_id = ? AND source_id = ?",
		tenantID, sourceID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func mustReadDocument(ctx context.Context, tx *sql.Tx, tenantID, sourceID string) (*core.Document, error) {
	doc, err := readDocument(ctx, tx, tenantID, sourceID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s/%s", storage.ErrNotFound, tenantID, sourceID)
	}
	return doc, nil
}

func writeDocument(ctx context.Context, tx *sql.Tx, doc *core.Document) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, source_id) DO UPDATE SET
			filename = excluded.filename,
			title = excluded.title,
			location = excluded.location,
			status = excluded.status,
			error_message = excluded.error_message,
			attempts = excluded.attempts,
			chunk_count = excluded.chunk_count,
			space_model = excluded.space_model,
			space_dimension = excluded.space_dimension,
			updated_at = excluded.updated_at`,
		doc.TenantID, doc.SourceID, int64(doc.ID), doc.Filename, doc.Title, doc.Location, string(doc.Status),
		doc.ErrorMessage, doc.Attempts, doc.ChunkCount, doc.Space.Model, doc.Space.Dimension,
		doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano())
	return err
}

func deleteChunks(ctx context.Context, tx *sql.Tx, tenantID, sourceID string) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE tenant_id = ? AND source_id = ?", tenantID, sourceID)
	return err
}

// Create registers a document.
func (s *Store) Create(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	var result *core.Document
	err := s.withTx(ctx, true, func(tx *sql.Tx) error {
		existing, err := readDocument(ctx, tx, doc.TenantID, doc.SourceID)
		if err != nil {
			return err
		}
		record, err := storage.Registration(existing, doc, s.now())
		if err != nil {
			return err
		}
		if err := writeDocument(ctx, tx, record); err != nil {
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
	err := s.withTx(ctx, false, func(tx *sql.Tx) error {
		var err error
		result, err = mustReadDocument(ctx, tx, tenantID, sourceID)
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
	query := "SELECT " + documentColumns + " FROM documents WHERE 1 = 1"
	var args []any
	if tenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, tenantID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY tenant_id, source_id"

	var results []*core.Document
	err := s.withTx(ctx, false, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				return err
			}
			results = append(results, doc)
		}
		return rows.Err()
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
	err := s.withTx(ctx, true, func(tx *sql.Tx) error {
		doc, err := mustReadDocument(ctx, tx, tenantID, sourceID)
		if err != nil {
			return err
		}
		clearChunks, err := storage.ApplyTransition(doc, to, errMsg, s.now())
		if err != nil {
			return err
		}
		if clearChunks {
			if err := deleteChunks(ctx, tx, tenantID, sourceID); err != nil {
				return err
			}
		}
		if err := writeDocument(ctx, tx, doc); err != nil {
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

// Delete removes a document; its chunks go with it by cascade.
func (s *Store) Delete(ctx context.Context, tenantID, sourceID string) error {
	if err := core.ValidateKey(tenantID, sourceID); err != nil {
		return err
	}
	err := s.withTx(ctx, true, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE tenant_id = ? AND source_id = ?", tenantID, sourceID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: document %s/%s", storage.ErrNotFound, tenantID, sourceID)
		}
		return nil
	})
	return storage.Persistence(err)
}

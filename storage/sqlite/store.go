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
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

//go:embed schema.sql
var schema string

const upsertStateSQL = `
INSERT INTO document_states
    (source_type, source, document_id, base_url, url, content_hash, last_updated, last_ingested, is_deleted, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT (source_type, source, document_id) DO UPDATE SET
    base_url      = excluded.base_url,
    url           = excluded.url,
    content_hash  = excluded.content_hash,
    last_updated  = excluded.last_updated,
    last_ingested = excluded.last_ingested,
    is_deleted    = excluded.is_deleted,
    version       = document_states.version + 1
RETURNING version`

const selectStateColumns = `
SELECT source_type, source, document_id, base_url, url, content_hash,
       last_updated, last_ingested, is_deleted, version
FROM document_states`

// Store implements storage.StateStore on SQLite.
type Store struct {
	db          *sql.DB
	path        string
	initialized atomic.Bool
	logger      *slog.Logger
}

var _ storage.StateStore = (*Store)(nil)

// OpenStateStore opens (creating if needed) the database file at path.
//
// Returns storage.StateStore interface to enforce abstraction.
func OpenStateStore(path string) (storage.StateStore, error) {
	return openStore(path)
}

func openStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serializes writers and keeps read-modify-write atomic.
	db.SetMaxOpenConns(1)

	return &Store{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "sqlite-state-store"),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Initialize creates the schema. It is idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	s.initialized.Store(true)
	return nil
}

func (s *Store) ready() error {
	if !s.initialized.Load() {
		return storage.ErrNotInitialized
	}
	return nil
}

// UpsertDocumentState inserts or replaces a state, bumping its version.
func (s *Store) UpsertDocumentState(ctx context.Context, state *core.DocumentState) (*core.DocumentState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := core.ValidateDocumentState(state); err != nil {
		return nil, err
	}

	var version int64
	err := s.db.QueryRowContext(ctx, upsertStateSQL,
		state.SourceType, state.Source, state.DocumentID,
		state.BaseURL, state.URL, state.ContentHash,
		toMicros(state.LastUpdated), toMicros(state.LastIngested),
		state.IsDeleted,
	).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("upserting document state: %w", err)
	}

	stored := *state
	stored.Version = version
	return &stored, nil
}

// GetDocumentState retrieves a single state.
func (s *Store) GetDocumentState(ctx context.Context, key core.StateKey) (*core.DocumentState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		selectStateColumns+` WHERE source_type = ? AND source = ? AND document_id = ?`,
		key.SourceType, key.Source, key.DocumentID)
	state, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting document state: %w", err)
	}
	return state, nil
}

// ListDocumentStates returns the states of a source matching opts.
func (s *Store) ListDocumentStates(ctx context.Context, source core.SourceRef, opts storage.ListOptions) ([]*core.DocumentState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var where strings.Builder
	where.WriteString(` WHERE source_type = ? AND source = ?`)
	args := []any{source.Type, source.Name}
	if !opts.IncludeDeleted {
		where.WriteString(` AND is_deleted = 0`)
	}
	if opts.Since != nil {
		where.WriteString(` AND last_updated >= ?`)
		args = append(args, toMicros(*opts.Since))
	}

	rows, err := s.db.QueryContext(ctx, selectStateColumns+where.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing document states: %w", err)
	}
	defer rows.Close()

	var states []*core.DocumentState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// MarkDeleted soft-deletes states in one transaction. Unknown keys are skipped.
func (s *Store) MarkDeleted(ctx context.Context, keys ...core.StateKey) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE document_states SET is_deleted = 1, version = version + 1
		WHERE source_type = ? AND source = ? AND document_id = ?`)
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		res, err := stmt.ExecContext(ctx, key.SourceType, key.Source, key.DocumentID)
		if err != nil {
			return fmt.Errorf("marking %s deleted: %w", key.DocumentID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			s.logger.Debug("skipping delete of unknown state", "doc_id", key.DocumentID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// GetLastIngestion returns nil, nil if the source was never ingested.
func (s *Store) GetLastIngestion(ctx context.Context, source core.SourceRef) (*core.IngestionHistory, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		history              core.IngestionHistory
		lastSuccess, updated int64
		status               string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT source_type, source, last_successful_ingestion, status,
		       document_count, error_message, updated_at
		FROM ingestion_history WHERE source_type = ? AND source = ?`,
		source.Type, source.Name,
	).Scan(&history.SourceType, &history.Source, &lastSuccess, &status,
		&history.DocumentCount, &history.ErrorMessage, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting ingestion history: %w", err)
	}

	history.Status = core.IngestionStatus(status)
	history.LastSuccessfulIngestion = fromMicros(lastSuccess)
	history.UpdatedAt = fromMicros(updated)
	return &history, nil
}

// UpdateLastIngestion persists the history of a run. Last write wins.
func (s *Store) UpdateLastIngestion(ctx context.Context, history *core.IngestionHistory) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := core.ValidateIngestionHistory(history); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_history
		    (source_type, source, last_successful_ingestion, status, document_count, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_type, source) DO UPDATE SET
		    last_successful_ingestion = excluded.last_successful_ingestion,
		    status                    = excluded.status,
		    document_count            = excluded.document_count,
		    error_message             = excluded.error_message,
		    updated_at                = excluded.updated_at`,
		history.SourceType, history.Source,
		toMicros(history.LastSuccessfulIngestion), string(history.Status),
		history.DocumentCount, history.ErrorMessage, toMicros(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("updating ingestion history: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.initialized.Store(false)
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*core.DocumentState, error) {
	var (
		state                 core.DocumentState
		lastUpdated, ingested int64
		deleted               bool
	)
	err := row.Scan(&state.SourceType, &state.Source, &state.DocumentID,
		&state.BaseURL, &state.URL, &state.ContentHash,
		&lastUpdated, &ingested, &deleted, &state.Version)
	if err != nil {
		return nil, err
	}
	state.LastUpdated = fromMicros(lastUpdated)
	state.LastIngested = fromMicros(ingested)
	state.IsDeleted = deleted
	return &state, nil
}

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

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
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// markDeletedBatch caps the number of keys soft-deleted per transaction so
// large deletions stay below badger's transaction size limit.
const markDeletedBatch = 256

// StateStore implements storage.StateStore for BadgerDB.
type StateStore struct {
	backend     *Backend
	ownsBackend bool
	initialized atomic.Bool
	logger      *slog.Logger
}

var _ storage.StateStore = (*StateStore)(nil)

// NewStateStore creates a StateStore on an already opened backend.
// The caller keeps ownership of the backend.
func NewStateStore(backend *Backend) *StateStore {
	return &StateStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-state-store"),
	}
}

// OpenStateStore opens a backend at path and returns a store that closes
// it on Close.
//
// Returns storage.StateStore interface to enforce abstraction.
func OpenStateStore(path string, inMemory bool) (storage.StateStore, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	store := NewStateStore(backend)
	store.ownsBackend = true
	return store, nil
}

// Initialize records the schema version. It is idempotent.
func (s *StateStore) Initialize(ctx context.Context) error {
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(schemaVersionKey))
		if err == nil {
			return item.Value(func(val []byte) error {
				if string(val) != schemaVersion {
					return fmt.Errorf("unsupported schema version %q", val)
				}
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return tx.Set([]byte(schemaVersionKey), []byte(schemaVersion))
	})
	if err != nil {
		return err
	}
	s.initialized.Store(true)
	return nil
}

func (s *StateStore) ready() error {
	if !s.initialized.Load() {
		return storage.ErrNotInitialized
	}
	return nil
}

// UpsertDocumentState inserts or replaces a state, bumping its version.
func (s *StateStore) UpsertDocumentState(ctx context.Context, state *core.DocumentState) (*core.DocumentState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := core.ValidateDocumentState(state); err != nil {
		return nil, err
	}

	var stored *core.DocumentState
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeDocumentStateKey(state.Key())
		existing, err := getState(tx, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		next := *state
		next.Version = 1
		if existing != nil {
			next.Version = existing.Version + 1
		}

		value, err := storage.MarshalDocumentState(&next)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		stored = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetDocumentState retrieves a single state.
func (s *StateStore) GetDocumentState(ctx context.Context, key core.StateKey) (*core.DocumentState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var state *core.DocumentState
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		state, err = getState(tx, makeDocumentStateKey(key))
		return err
	})
	return state, err
}

// ListDocumentStates scans the states of a source.
func (s *StateStore) ListDocumentStates(ctx context.Context, source core.SourceRef, opts storage.ListOptions) ([]*core.DocumentState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var states []*core.DocumentState
	err := s.backend.View(func(tx *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = makeSourcePrefix(documentStatePrefix, source)
		iter := tx.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var state *core.DocumentState
			err := iter.Item().Value(func(val []byte) error {
				var err error
				state, err = storage.UnmarshalDocumentState(val)
				return err
			})
			if err != nil {
				return err
			}
			if opts.Matches(state) {
				states = append(states, state)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

// MarkDeleted soft-deletes states in batches. Unknown keys are skipped.
func (s *StateStore) MarkDeleted(ctx context.Context, keys ...core.StateKey) error {
	if err := s.ready(); err != nil {
		return err
	}

	for start := 0; start < len(keys); start += markDeletedBatch {
		end := min(start+markDeletedBatch, len(keys))
		batch := keys[start:end]

		err := s.backend.Update(ctx, func(tx *badger.Txn) error {
			for _, k := range batch {
				key := makeDocumentStateKey(k)
				state, err := getState(tx, key)
				if errors.Is(err, storage.ErrNotFound) {
					s.logger.Debug("skipping delete of unknown state", "doc_id", k.DocumentID)
					continue
				}
				if err != nil {
					return err
				}

				state.IsDeleted = true
				state.Version++
				value, err := storage.MarshalDocumentState(state)
				if err != nil {
					return err
				}
				if err := tx.Set(key, value); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetLastIngestion returns nil, nil if the source was never ingested.
func (s *StateStore) GetLastIngestion(ctx context.Context, source core.SourceRef) (*core.IngestionHistory, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var history *core.IngestionHistory
	err := s.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeIngestionHistoryKey(source))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			history, unmarshalErr = storage.UnmarshalIngestionHistory(val)
			return unmarshalErr
		})
	})

	return history, err
}

// UpdateLastIngestion persists the history of a run. Last write wins.
func (s *StateStore) UpdateLastIngestion(ctx context.Context, history *core.IngestionHistory) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := core.ValidateIngestionHistory(history); err != nil {
		return err
	}

	record := *history
	record.UpdatedAt = time.Now().UTC()
	value, err := storage.MarshalIngestionHistory(&record)
	if err != nil {
		return err
	}

	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeIngestionHistoryKey(history.Ref()), value)
	})
}

// Close closes the backend if the store opened it.
func (s *StateStore) Close() error {
	s.initialized.Store(false)
	if s.ownsBackend {
		return s.backend.Close()
	}
	return nil
}

func getState(tx *badger.Txn, key []byte) (*core.DocumentState, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var state *core.DocumentState
	err = item.Value(func(val []byte) error {
		var err error
		state, err = storage.UnmarshalDocumentState(val)
		return err
	})
	return state, err
}

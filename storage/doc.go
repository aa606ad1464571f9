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


// Package storage provides the state persistence layer for docsync.
//
// The StateStore interface decouples change detection from the backend that
// remembers what was ingested. Two backends ship with the module:
//
//   - storage/badger: embedded BadgerDB key/value store (default)
//   - storage/sqlite: embedded SQLite database with a relational schema
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.StateStore interface:
//
//	store, err := badger.OpenStateStore(path, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Versioning
//
// Every write of a DocumentState increments its Version inside a single
// read-modify-write transaction. The version is a write counter, not an
// optimistic concurrency token: content is last-write-wins.
//
// # Soft Deletes
//
// States are never physically removed. MarkDeleted flips IsDeleted, and a
// later UpsertDocumentState with IsDeleted=false resurrects the record.
//
// # Thread Safety
//
// All StateStore implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage

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
	"time"

	"github.com/poiesic/docsync/core"
)

// ListOptions narrows ListDocumentStates.
type ListOptions struct {
	// Since keeps only states whose LastUpdated is at or after the given time.
	Since *time.Time

	// IncludeDeleted also returns soft-deleted states.
	IncludeDeleted bool
}

// Matches reports whether a state passes the filter.
func (o ListOptions) Matches(state *core.DocumentState) bool {
	if state.IsDeleted && !o.IncludeDeleted {
		return false
	}
	if o.Since != nil && state.LastUpdated.Before(*o.Since) {
		return false
	}
	return true
}

// StateStore persists per-document state and per-source ingestion history.
// Implementations must be thread-safe and support concurrent access.
type StateStore interface {
	// Initialize prepares the store (schema, metadata). It is idempotent.
	// Every other method returns ErrNotInitialized until it has run.
	Initialize(ctx context.Context) error

	// UpsertDocumentState inserts or replaces the state for its identity.
	// Version is incremented atomically on every write; the caller's value
	// is ignored. Content is last-write-wins.
	// Returns the state as stored.
	UpsertDocumentState(ctx context.Context, state *core.DocumentState) (*core.DocumentState, error)

	// GetDocumentState retrieves a single state.
	// Returns ErrNotFound if the state doesn't exist.
	GetDocumentState(ctx context.Context, key core.StateKey) (*core.DocumentState, error)

	// ListDocumentStates returns the states of a source matching opts.
	// Order is unspecified.
	ListDocumentStates(ctx context.Context, source core.SourceRef, opts ListOptions) ([]*core.DocumentState, error)

	// MarkDeleted soft-deletes the given states. Unknown keys are ignored.
	MarkDeleted(ctx context.Context, keys ...core.StateKey) error

	// GetLastIngestion returns the last recorded run for a source.
	// Returns nil, nil if the source has never been ingested.
	GetLastIngestion(ctx context.Context, source core.SourceRef) (*core.IngestionHistory, error)

	// UpdateLastIngestion records the outcome of a run, replacing any
	// previous record for the source.
	UpdateLastIngestion(ctx context.Context, history *core.IngestionHistory) error

	// Close closes the storage backend and releases resources.
	Close() error
}

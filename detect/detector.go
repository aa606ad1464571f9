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


package detect

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// Changes is the classification of one fetch.
type Changes struct {
	New     []*core.Document
	Updated []*core.Document
	Deleted []*core.Document
}

// Empty reports whether nothing changed.
func (c *Changes) Empty() bool {
	return len(c.New) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// ToIngest returns the documents that need to go through the pipeline.
func (c *Changes) ToIngest() []*core.Document {
	out := make([]*core.Document, 0, len(c.New)+len(c.Updated))
	out = append(out, c.New...)
	return append(out, c.Updated...)
}

// Detector compares fetched documents with stored state.
type Detector struct {
	store  storage.StateStore
	open   atomic.Bool
	logger *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Detector. It must be opened before use.
func New(store storage.StateStore, opts ...Option) (*Detector, error) {
	if store == nil {
		return nil, ErrStateStoreRequired
	}
	d := &Detector{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "change-detector")
	return d, nil
}

// Open initializes the state store and enables queries.
func (d *Detector) Open(ctx context.Context) error {
	if err := d.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing state store: %w", err)
	}
	d.open.Store(true)
	return nil
}

// Close disables queries. The state store stays open; its owner closes it.
func (d *Detector) Close() error {
	d.open.Store(false)
	return nil
}

// Run opens a Detector, hands it to fn and closes it afterwards.
func Run(ctx context.Context, store storage.StateStore, fn func(*Detector) error, opts ...Option) error {
	d, err := New(store, opts...)
	if err != nil {
		return err
	}
	if err := d.Open(ctx); err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

// DetectChanges classifies docs, all of which must belong to scope.
//
// When since is set only states updated at or after it are matched against
// fetched documents. Deletions always compare the full stored state of scope
// with the fetch, since a document missing from the source is gone no matter
// how long ago it last changed.
func (d *Detector) DetectChanges(ctx context.Context, scope core.SourceRef, docs []*core.Document, since *time.Time) (*Changes, error) {
	if !d.open.Load() {
		return nil, ErrNotOpen
	}
	if err := core.ValidateSourceRef(scope); err != nil {
		return nil, fmt.Errorf("invalid scope: %w", err)
	}

	previous, err := d.store.ListDocumentStates(ctx, scope, storage.ListOptions{Since: since})
	if err != nil {
		return nil, fmt.Errorf("loading previous states: %w", err)
	}

	known := make(map[string]*core.DocumentState, len(previous))
	for _, state := range previous {
		known[state.URI()] = state
	}

	stored := previous
	if since != nil {
		stored, err = d.store.ListDocumentStates(ctx, scope, storage.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("loading stored states: %w", err)
		}
	}

	current := make(map[string]int, len(docs))
	fetched := make([]*core.Document, 0, len(docs))
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
		if doc.Ref() != scope {
			return nil, fmt.Errorf("%w: document %q belongs to %s, not %s",
				core.ErrInvalidDocument, doc.ID, doc.Ref(), scope)
		}

		uri := doc.URI()
		if idx, dup := current[uri]; dup {
			d.logger.Warn("duplicate document in fetch, keeping last", "uri", uri)
			fetched[idx] = doc
			continue
		}
		current[uri] = len(fetched)
		fetched = append(fetched, doc)
	}

	changes := &Changes{}
	for _, doc := range fetched {
		state, ok := known[doc.URI()]
		switch {
		case !ok:
			changes.New = append(changes.New, doc)
		case isModified(doc, state):
			changes.Updated = append(changes.Updated, doc)
		}
	}

	for _, state := range stored {
		if _, ok := current[state.URI()]; !ok {
			changes.Deleted = append(changes.Deleted, core.DeletedDocument(state))
		}
	}
	slices.SortFunc(changes.Deleted, func(a, b *core.Document) int {
		return strings.Compare(a.ID, b.ID)
	})

	d.logger.Debug("detected changes",
		"source", scope.String(),
		"fetched", len(fetched),
		"new", len(changes.New),
		"updated", len(changes.Updated),
		"deleted", len(changes.Deleted))

	return changes, nil
}

func isModified(doc *core.Document, state *core.DocumentState) bool {
	if core.ContentHash(doc) != state.ContentHash {
		return true
	}
	return doc.LastUpdated().After(state.LastUpdated)
}

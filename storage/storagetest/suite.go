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


// Package storagetest holds the behavioural tests every storage.StateStore
// backend must pass.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, uninitialized store. The suite closes it.
type Opener func(t *testing.T) storage.StateStore

var (
	docs  = core.SourceRef{Type: "localfile", Name: "docs"}
	other = core.SourceRef{Type: "localfile", Name: "other"}
	epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
)

func newState(ref core.SourceRef, id, hash string, updated time.Time) *core.DocumentState {
	return &core.DocumentState{
		SourceType:  ref.Type,
		Source:      ref.Name,
		DocumentID:  id,
		BaseURL:     "file:///srv/" + ref.Name,
		ContentHash: hash,
		LastUpdated: updated,
	}
}

func keyOf(ref core.SourceRef, id string) core.StateKey {
	return core.StateKey{SourceType: ref.Type, Source: ref.Name, DocumentID: id}
}

func openInitialized(t *testing.T, open Opener) storage.StateStore {
	t.Helper()
	store := open(t)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

// Run exercises a StateStore implementation.
func Run(t *testing.T, open Opener) {
	t.Run("requires initialize", func(t *testing.T) {
		store := open(t)
		defer store.Close()
		ctx := context.Background()

		_, err := store.UpsertDocumentState(ctx, newState(docs, "a", "h", epoch))
		assert.ErrorIs(t, err, storage.ErrNotInitialized)

		_, err = store.ListDocumentStates(ctx, docs, storage.ListOptions{})
		assert.ErrorIs(t, err, storage.ErrNotInitialized)

		_, err = store.GetLastIngestion(ctx, docs)
		assert.ErrorIs(t, err, storage.ErrNotInitialized)

		require.NoError(t, store.Initialize(ctx))
		require.NoError(t, store.Initialize(ctx), "initialize is idempotent")
	})

	t.Run("upsert increments version", func(t *testing.T) {
		store := openInitialized(t, open)
		ctx := context.Background()

		stored, err := store.UpsertDocumentState(ctx, newState(docs, "a", "h1", epoch))
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.Version)

		next := newState(docs, "a", "h2", epoch.Add(time.Hour))
		next.Version = 42
		stored, err = store.UpsertDocumentState(ctx, next)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Version)

		got, err := store.GetDocumentState(ctx, keyOf(docs, "a"))
		require.NoError(t, err)
		assert.Equal(t, "h2", got.ContentHash)
		assert.Equal(t, int64(2), got.Version)
		assert.True(t, epoch.Add(time.Hour).Equal(got.LastUpdated))
		assert.Equal(t, "file:///srv/docs", got.BaseURL)
	})

	t.Run("upsert rejects invalid state", func(t *testing.T) {
		store := openInitialized(t, open)
		_, err := store.UpsertDocumentState(context.Background(), newState(docs, "", "h", epoch))
		assert.ErrorIs(t, err, core.ErrInvalidState)
	})

	t.Run("get missing", func(t *testing.T) {
		store := openInitialized(t, open)
		_, err := store.GetDocumentState(context.Background(), keyOf(docs, "nope"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list is scoped and filtered", func(t *testing.T) {
		store := openInitialized(t, open)
		ctx := context.Background()

		for _, s := range []*core.DocumentState{
			newState(docs, "old", "h", epoch.Add(-48*time.Hour)),
			newState(docs, "new", "h", epoch),
			newState(docs, "gone", "h", epoch),
			newState(other, "elsewhere", "h", epoch),
		} {
			_, err := store.UpsertDocumentState(ctx, s)
			require.NoError(t, err)
		}
		require.NoError(t, store.MarkDeleted(ctx, keyOf(docs, "gone")))

		all, err := store.ListDocumentStates(ctx, docs, storage.ListOptions{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"old", "new"}, ids(all))

		withDeleted, err := store.ListDocumentStates(ctx, docs, storage.ListOptions{IncludeDeleted: true})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"old", "new", "gone"}, ids(withDeleted))

		since := epoch.Add(-time.Hour)
		recent, err := store.ListDocumentStates(ctx, docs, storage.ListOptions{Since: &since})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"new"}, ids(recent))

		exact := epoch
		inclusive, err := store.ListDocumentStates(ctx, docs, storage.ListOptions{Since: &exact})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"new"}, ids(inclusive))

		none, err := store.ListDocumentStates(ctx, core.SourceRef{Type: "git", Name: "docs"}, storage.ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("mark deleted and resurrect", func(t *testing.T) {
		store := openInitialized(t, open)
		ctx := context.Background()

		_, err := store.UpsertDocumentState(ctx, newState(docs, "z", "h", epoch))
		require.NoError(t, err)

		require.NoError(t, store.MarkDeleted(ctx, keyOf(docs, "z"), keyOf(docs, "unknown")))

		got, err := store.GetDocumentState(ctx, keyOf(docs, "z"))
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)
		assert.Equal(t, int64(2), got.Version)

		require.NoError(t, store.MarkDeleted(ctx), "empty key list is a no-op")

		stored, err := store.UpsertDocumentState(ctx, newState(docs, "z", "h", epoch))
		require.NoError(t, err)
		assert.False(t, stored.IsDeleted)
		assert.Equal(t, int64(3), stored.Version)
	})

	t.Run("ingestion history", func(t *testing.T) {
		store := openInitialized(t, open)
		ctx := context.Background()

		history, err := store.GetLastIngestion(ctx, docs)
		require.NoError(t, err)
		assert.Nil(t, history)

		require.NoError(t, store.UpdateLastIngestion(ctx, &core.IngestionHistory{
			SourceType:              docs.Type,
			Source:                  docs.Name,
			LastSuccessfulIngestion: epoch,
			Status:                  core.IngestionSuccess,
			DocumentCount:           3,
		}))
		require.NoError(t, store.UpdateLastIngestion(ctx, &core.IngestionHistory{
			SourceType:              docs.Type,
			Source:                  docs.Name,
			LastSuccessfulIngestion: epoch.Add(time.Hour),
			Status:                  core.IngestionPartial,
			DocumentCount:           5,
			ErrorMessage:            "2 chunks failed",
		}))

		history, err = store.GetLastIngestion(ctx, docs)
		require.NoError(t, err)
		require.NotNil(t, history)
		assert.Equal(t, core.IngestionPartial, history.Status)
		assert.Equal(t, 5, history.DocumentCount)
		assert.Equal(t, "2 chunks failed", history.ErrorMessage)
		assert.True(t, epoch.Add(time.Hour).Equal(history.LastSuccessfulIngestion))
		assert.False(t, history.UpdatedAt.IsZero())

		missing, err := store.GetLastIngestion(ctx, other)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("concurrent upserts count every write", func(t *testing.T) {
		store := openInitialized(t, open)
		ctx := context.Background()

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.UpsertDocumentState(ctx, newState(docs, "hot", "h", epoch))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.GetDocumentState(ctx, keyOf(docs, "hot"))
		require.NoError(t, err)
		assert.Equal(t, int64(writers), got.Version)
	})
}

func ids(states []*core.DocumentState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.DocumentID
	}
	return out
}

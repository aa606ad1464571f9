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


package docsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsync/ai/mock"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/config"
	"github.com/poiesic/docsync/connector"
	"github.com/poiesic/docsync/connector/localfile"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/ingestion"
	"github.com/poiesic/docsync/storage"
	"github.com/poiesic/docsync/storage/badger"
	"github.com/poiesic/docsync/vectorstore"
	"github.com/poiesic/docsync/vectorstore/chromem"
)

var testRef = core.SourceRef{Type: "test", Name: "docs"}

type staticConnector struct {
	ref  core.SourceRef
	mu   sync.Mutex
	docs []*core.Document
	err  error
}

func (c *staticConnector) Source() core.SourceRef { return c.ref }

func (c *staticConnector) GetDocuments(ctx context.Context) ([]*core.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.docs, nil
}

func (c *staticConnector) set(docs ...*core.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = docs
	c.err = nil
}

// flakyDeletes fails DeletePointsByDocumentID while fail is set.
type flakyDeletes struct {
	vectorstore.Client
	fail bool
}

func (f *flakyDeletes) DeletePointsByDocumentID(ctx context.Context, scope vectorstore.Scope, ids []string) error {
	if f.fail {
		return errors.New("delete rejected")
	}
	return f.Client.DeletePointsByDocumentID(ctx, scope, ids)
}

func paragraphChunker() chunking.Chunker {
	return chunking.ChunkerFunc(func(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
		var out []*core.Document
		for _, p := range strings.Split(doc.Content, "\n\n") {
			if strings.TrimSpace(p) != "" {
				out = append(out, &core.Document{Content: p})
			}
		}
		return out, nil
	})
}

func testDoc(id, content string) *core.Document {
	return docIn(testRef, id, content)
}

func docIn(ref core.SourceRef, id, content string) *core.Document {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &core.Document{
		ID:         id,
		Content:    content,
		Source:     ref.Name,
		SourceType: ref.Type,
		CreatedAt:  ts,
		Metadata:   core.Metadata{BaseURL: "test://" + ref.Name},
	}
}

func chunkOf(ref core.SourceRef, id string, index int) string {
	return core.ChunkID(docIn(ref, id, "").URI(), index)
}

type fixture struct {
	engine   *Engine
	store    storage.StateStore
	points   *chromem.Store
	vectors  *flakyDeletes
	embedder *mock.MockEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := badger.NewMemoryStateStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	points, err := chromem.New(chromem.Config{})
	require.NoError(t, err)
	vectors := &flakyDeletes{Client: points}

	embedder := mock.NewMockEmbedder()
	pipeline, err := ingestion.NewPipeline(paragraphChunker(), embedder, vectors, ingestion.Config{
		EmbeddingBatchSize: 1,
		UpsertBatchSize:    4,
		BatchIdleTimeout:   5 * time.Millisecond,
		ShutdownGrace:      200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(pipeline.Release)

	engine, err := NewEngine(ctx, store, pipeline, vectors)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	return &fixture{engine: engine, store: store, points: points, vectors: vectors, embedder: embedder}
}

func (f *fixture) state(t *testing.T, id string) *core.DocumentState {
	t.Helper()
	state, err := f.store.GetDocumentState(context.Background(),
		core.StateKey{SourceType: testRef.Type, Source: testRef.Name, DocumentID: id})
	require.NoError(t, err)
	return state
}

func (f *fixture) history(t *testing.T) *core.IngestionHistory {
	t.Helper()
	h, err := f.store.GetLastIngestion(context.Background(), testRef)
	require.NoError(t, err)
	require.NotNil(t, h)
	return h
}

func TestNewEngine_RequiresComponents(t *testing.T) {
	ctx := context.Background()
	store, err := badger.NewMemoryStateStore(ctx)
	require.NoError(t, err)
	defer store.Close()

	_, err = NewEngine(ctx, store, nil, &flakyDeletes{})
	assert.ErrorIs(t, err, ErrPipelineRequired)
}

func TestEngine_FirstSync(t *testing.T) {
	f := newFixture(t)
	c := &staticConnector{ref: testRef}
	c.set(testDoc("A", "alpha"), testDoc("B", "bravo one\n\nbravo two"), testDoc("Z", "zulu"))

	report, err := f.engine.SyncSource(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 3, report.New)
	assert.Equal(t, 3, report.Ingested)
	assert.Equal(t, 4, report.ChunksSucceeded)
	assert.Equal(t, core.IngestionSuccess, report.Status)
	assert.Equal(t, 4, f.points.Count())

	state := f.state(t, "B")
	assert.Equal(t, core.HashContent("bravo one\n\nbravo two"), state.ContentHash)
	assert.False(t, state.LastIngested.IsZero())
	assert.False(t, state.IsDeleted)

	h := f.history(t)
	assert.Equal(t, core.IngestionSuccess, h.Status)
	assert.Equal(t, 3, h.DocumentCount)
	assert.False(t, h.LastSuccessfulIngestion.IsZero())
	assert.Empty(t, h.ErrorMessage)
}

func TestEngine_NewUpdatedDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := &staticConnector{ref: testRef}
	c.set(testDoc("A", "alpha"), testDoc("B", "bravo one\n\nbravo two"), testDoc("Z", "zulu"))
	_, err := f.engine.SyncSource(ctx, c)
	require.NoError(t, err)

	// B shrinks to one chunk, C appears, Z disappears
	c.set(testDoc("A", "alpha"), testDoc("B", "bravo rewritten"), testDoc("C", "charlie one\n\ncharlie two"))
	report, err := f.engine.SyncSource(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, 1, report.New)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 1, report.DeletionsApplied)
	assert.Equal(t, core.IngestionSuccess, report.Status)

	// A(1) + B(1) + C(2)
	assert.Equal(t, 4, f.points.Count())
	content, _, err := f.points.Get(ctx, chunkOf(testRef, "B", 0))
	require.NoError(t, err)
	assert.Equal(t, "bravo rewritten", content)
	_, _, err = f.points.Get(ctx, chunkOf(testRef, "B", 1))
	assert.Error(t, err, "stale chunk of updated document must be purged")
	_, _, err = f.points.Get(ctx, chunkOf(testRef, "Z", 0))
	assert.Error(t, err)

	assert.True(t, f.state(t, "Z").IsDeleted)
	assert.Equal(t, core.HashContent("bravo rewritten"), f.state(t, "B").ContentHash)

	// nothing left to do, and Z is not reported again
	report, err = f.engine.SyncSource(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 0, report.New+report.Updated+report.Deleted)
	assert.Equal(t, 3, report.Unchanged)
	assert.Equal(t, core.IngestionSuccess, report.Status)
}

func TestEngine_SourcesShareDocumentIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherRef := core.SourceRef{Type: "test", Name: "other"}

	docs := &staticConnector{ref: testRef}
	docs.set(testDoc("README.md", "docs one\n\ndocs two"))
	other := &staticConnector{ref: otherRef}
	other.set(docIn(otherRef, "README.md", "other one"))

	_, err := f.engine.SyncSource(ctx, docs)
	require.NoError(t, err)
	require.Equal(t, 2, f.points.Count())

	_, err = f.engine.SyncSource(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 3, f.points.Count())

	// other drops its README; the docs copy must survive
	other.set(docIn(otherRef, "INDEX.md", "index"))
	report, err := f.engine.SyncSource(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 3, f.points.Count())

	content, _, err := f.points.Get(ctx, chunkOf(testRef, "README.md", 1))
	require.NoError(t, err)
	assert.Equal(t, "docs two", content)
	_, _, err = f.points.Get(ctx, chunkOf(otherRef, "README.md", 0))
	assert.Error(t, err)

	// updating the docs copy leaves the other source alone
	docs.set(testDoc("README.md", "docs rewritten"))
	_, err = f.engine.SyncSource(ctx, docs)
	require.NoError(t, err)
	content, _, err = f.points.Get(ctx, chunkOf(otherRef, "INDEX.md", 0))
	require.NoError(t, err)
	assert.Equal(t, "index", content)
	assert.Equal(t, 2, f.points.Count())
	assert.False(t, f.state(t, "README.md").IsDeleted)
}

func TestEngine_Idempotent(t *testing.T) {
	f := newFixture(t)
	c := &staticConnector{ref: testRef}
	c.set(testDoc("A", "alpha"), testDoc("B", "bravo"))

	_, err := f.engine.SyncSource(context.Background(), c)
	require.NoError(t, err)
	calls := f.embedder.CallCount()

	report, err := f.engine.SyncSource(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 0, report.New)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, calls, f.embedder.CallCount())
}

func TestEngine_FetchFailure(t *testing.T) {
	f := newFixture(t)
	c := &staticConnector{ref: testRef}
	c.set(testDoc("A", "alpha"))
	_, err := f.engine.SyncSource(context.Background(), c)
	require.NoError(t, err)
	lastSuccess := f.history(t).LastSuccessfulIngestion

	c.err = errors.New("permission denied")
	report, err := f.engine.SyncSource(context.Background(), c)
	require.ErrorIs(t, err, ErrConnectorFetch)
	assert.Equal(t, core.IngestionFailed, report.Status)

	h := f.history(t)
	assert.Equal(t, core.IngestionFailed, h.Status)
	assert.Contains(t, h.ErrorMessage, "permission denied")
	assert.True(t, lastSuccess.Equal(h.LastSuccessfulIngestion))

	// state is untouched
	assert.False(t, f.state(t, "A").IsDeleted)
}

func TestEngine_PartialFailureRetriedNextRun(t *testing.T) {
	f := newFixture(t)
	clean := mock.NewMockEmbedder()
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.Contains(text, "poison") {
				return nil, errors.New("provider rejected input")
			}
		}
		return clean.EmbedTexts(ctx, texts)
	}

	c := &staticConnector{ref: testRef}
	c.set(testDoc("good", "fine text"), testDoc("bad", "poison pill"))

	report, err := f.engine.SyncSource(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, core.IngestionPartial, report.Status)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, 1, report.ChunksFailed)

	_, err = f.store.GetDocumentState(context.Background(),
		core.StateKey{SourceType: testRef.Type, Source: testRef.Name, DocumentID: "bad"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	h := f.history(t)
	assert.Equal(t, core.IngestionPartial, h.Status)
	assert.NotEmpty(t, h.ErrorMessage)
	assert.True(t, h.LastSuccessfulIngestion.IsZero())

	// provider recovers: only the failed document is retried
	f.embedder.EmbedTextsFunc = nil
	report, err = f.engine.SyncSource(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, report.New)
	assert.Equal(t, 1, report.Ingested)
	assert.Equal(t, core.IngestionSuccess, report.Status)
}

func TestEngine_DeletionFailureReportedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := &staticConnector{ref: testRef}
	c.set(testDoc("A", "alpha"), testDoc("Z", "zulu"))
	_, err := f.engine.SyncSource(ctx, c)
	require.NoError(t, err)

	c.set(testDoc("A", "alpha"))
	f.vectors.fail = true
	report, err := f.engine.SyncSource(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 0, report.DeletionsApplied)
	assert.Equal(t, core.IngestionFailed, report.Status)
	assert.False(t, f.state(t, "Z").IsDeleted)

	f.vectors.fail = false
	report, err = f.engine.SyncSource(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.DeletionsApplied)
	assert.True(t, f.state(t, "Z").IsDeleted)
}

func TestEngine_RejectsForeignDocuments(t *testing.T) {
	f := newFixture(t)
	foreign := testDoc("A", "alpha")
	foreign.Source = "elsewhere"
	c := &staticConnector{ref: testRef, docs: []*core.Document{foreign}}

	_, err := f.engine.SyncSource(context.Background(), c)
	assert.ErrorIs(t, err, core.ErrInvalidDocument)
}

func TestEngine_Shutdown(t *testing.T) {
	f := newFixture(t)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := &staticConnector{ref: testRef}
	c.set(testDoc("A", "alpha"), testDoc("B", "bravo"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for f.embedder.CallCount() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	report, err := f.engine.SyncSource(ctx, c)
	require.ErrorIs(t, err, ingestion.ErrShutdown)
	assert.Equal(t, core.IngestionFailed, report.Status)
	assert.Equal(t, core.IngestionFailed, f.history(t).Status)
}

func TestEngine_SyncAll(t *testing.T) {
	f := newFixture(t)
	broken := &staticConnector{ref: core.SourceRef{Type: "test", Name: "broken"}, err: errors.New("offline")}
	healthy := &staticConnector{ref: testRef}
	healthy.set(testDoc("A", "alpha"))

	reports, err := f.engine.SyncAll(context.Background(), []connector.Connector{broken, healthy})
	require.ErrorIs(t, err, ErrConnectorFetch)
	require.Len(t, reports, 2)
	assert.Equal(t, core.IngestionFailed, reports[0].Status)
	assert.Equal(t, core.IngestionSuccess, reports[1].Status)
}

func TestEngine_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.engine.Status(ctx, testRef)
	require.NoError(t, err)
	assert.Nil(t, status.History)
	assert.Zero(t, status.ActiveDocuments)

	c := &staticConnector{ref: testRef}
	c.set(testDoc("A", "alpha"), testDoc("B", "bravo"))
	_, err = f.engine.SyncSource(ctx, c)
	require.NoError(t, err)
	c.set(testDoc("A", "alpha"))
	_, err = f.engine.SyncSource(ctx, c)
	require.NoError(t, err)

	status, err = f.engine.Status(ctx, testRef)
	require.NoError(t, err)
	require.NotNil(t, status.History)
	assert.Equal(t, 1, status.ActiveDocuments)
	assert.Equal(t, 1, status.DeletedDocuments)
}

func TestEngine_Closed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Close())
	require.NoError(t, f.engine.Close())

	_, err := f.engine.SyncSource(context.Background(), &staticConnector{ref: testRef})
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = f.engine.Status(context.Background(), testRef)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_WatchUnsupported(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Watch(context.Background(), &staticConnector{ref: testRef})
	assert.ErrorIs(t, err, ErrWatchUnsupported)
}

func TestEngine_Watch(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("alpha"), 0o644))

	c, err := localfile.New(localfile.Config{Root: root, Name: "notes", Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Watch(ctx, c) }()

	require.Eventually(t, func() bool { return f.points.Count() == 1 }, 3*time.Second, 10*time.Millisecond)

	// let the watcher register before changing the tree
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.md"), []byte("bravo"), 0o644))
	require.Eventually(t, func() bool { return f.points.Count() == 2 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Watch did not return after cancellation")
	}
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "guide.md"), []byte("# Guide\n\nHello."), 0o644))

	cfg := config.Default()
	cfg.State = config.StateConfig{Backend: config.StateSQLite, Path: filepath.Join(t.TempDir(), "state", "docsync.db")}
	cfg.Embedding.Provider = config.EmbeddingMock
	cfg.VectorStore.Chromem.Path = filepath.Join(t.TempDir(), "vectors")
	cfg.Sources = []config.SourceConfig{{Type: localfile.SourceType, Name: "guides", Root: root}}
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	engine, err := Open(ctx, cfg)
	require.NoError(t, err)

	connectors, err := Connectors(cfg, nil)
	require.NoError(t, err)
	require.Len(t, connectors, 1)

	reports, err := engine.SyncAll(ctx, connectors)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, core.IngestionSuccess, reports[0].Status)
	assert.Equal(t, 1, reports[0].Ingested)
	require.NoError(t, engine.Close())

	// state survives a restart
	engine, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer engine.Close()
	reports, err = engine.SyncAll(ctx, connectors)
	require.NoError(t, err)
	assert.Equal(t, 1, reports[0].Unchanged)
	assert.Equal(t, 0, reports[0].New)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Provider = config.EmbeddingMock
	cfg.State.InMemory = true
	cfg.VectorStore.Backend = "pinecone"

	_, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestConnectors_UnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{{Type: "jira", Root: "x"}}
	_, err := Connectors(cfg, nil)
	assert.ErrorIs(t, err, connector.ErrUnknownType)
}

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


package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docsync/ai/mock"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/lifecycle"
	"github.com/poiesic/docsync/vectorstore"
	"github.com/poiesic/docsync/vectorstore/chromem"
)

// recordingStore is an in-memory vectorstore.Client that records batches.
type recordingStore struct {
	mu      sync.Mutex
	points  map[string]vectorstore.Point
	batches []int
	fail    func([]vectorstore.Point) error
	block   chan struct{}
	started chan struct{}
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		points:  make(map[string]vectorstore.Point),
		started: make(chan struct{}, 1024),
	}
}

func (s *recordingStore) UpsertPoints(ctx context.Context, points []vectorstore.Point) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, len(points))
	if s.fail != nil {
		if err := s.fail(points); err != nil {
			return err
		}
	}
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *recordingStore) DeletePointsByDocumentID(_ context.Context, scope vectorstore.Scope, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.Payload.SourceType != scope.SourceType || p.Payload.Source != scope.Source {
			continue
		}
		for _, docID := range ids {
			if p.Payload.DocumentID == docID {
				delete(s.points, id)
			}
		}
	}
	return nil
}

func (s *recordingStore) Close() error { return nil }

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func (s *recordingStore) point(id string) (vectorstore.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[id]
	return p, ok
}

// splitInto returns a chunker producing counts[doc.ID] chunks per document.
// A count of -1 fails, -2 panics.
func splitInto(counts map[string]int) chunking.Chunker {
	return chunking.ChunkerFunc(func(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
		n := counts[doc.ID]
		switch n {
		case -1:
			return nil, errors.New("unsplittable")
		case -2:
			panic("chunker bug")
		}
		out := make([]*core.Document, n)
		for i := range out {
			out[i] = &core.Document{Content: fmt.Sprintf("%s part %d", doc.ID, i)}
		}
		return out, nil
	})
}

func testDoc(id string) *core.Document {
	return &core.Document{
		ID:         id,
		Content:    "content of " + id,
		Source:     "docs",
		SourceType: "localfile",
		CreatedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testConfig() Config {
	return Config{
		ChunkQueueSize:     8,
		EmbedQueueSize:     8,
		ChunkWorkers:       2,
		EmbedWorkers:       2,
		UpsertWorkers:      2,
		EmbeddingBatchSize: 4,
		UpsertBatchSize:    4,
		BatchIdleTimeout:   10 * time.Millisecond,
		EmbeddingTimeout:   time.Second,
		UpsertTimeout:      time.Second,
		ShutdownGrace:      200 * time.Millisecond,
		MaxRetries:         1,
		RetryDelay:         time.Millisecond,
	}
}

func newTestPipeline(t *testing.T, chunker chunking.Chunker, embedder *mock.MockEmbedder, store vectorstore.Client, cfg Config, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(chunker, embedder, store, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func counterValue(t *testing.T, c prometheus.Counter) int {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return int(m.GetCounter().GetValue())
}

func completedIDs(res *Result) []string {
	ids := make([]string, len(res.Completed))
	for i, d := range res.Completed {
		ids[i] = d.ID
	}
	return ids
}

func TestNewPipeline(t *testing.T) {
	chunker := splitInto(nil)
	embedder := mock.NewMockEmbedder()
	store := newRecordingStore()

	_, err := NewPipeline(nil, embedder, store, Config{})
	assert.ErrorIs(t, err, ErrChunkerRequired)

	_, err = NewPipeline(chunker, nil, store, Config{})
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(chunker, embedder, nil, Config{})
	assert.ErrorIs(t, err, ErrVectorStoreRequired)

	_, err = NewPipeline(chunker, embedder, store, Config{EmbedWorkers: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewPipeline(chunker, embedder, store, Config{})
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, DefaultConfig().EmbeddingBatchSize, p.Config().EmbeddingBatchSize)
}

func TestPipeline_EmptyInput(t *testing.T) {
	p := newTestPipeline(t, splitInto(nil), mock.NewMockEmbedder(), newRecordingStore(), testConfig())

	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Enqueued)
	assert.Empty(t, res.Completed)
}

func TestPipeline_TwoDocumentsFiveChunks(t *testing.T) {
	store := newRecordingStore()
	p := newTestPipeline(t, splitInto(map[string]int{"B": 2, "C": 3}), mock.NewMockEmbedder(), store, testConfig())

	res, err := p.Run(context.Background(), []*core.Document{testDoc("B"), testDoc("C")})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 5, res.Enqueued)
	assert.Equal(t, 0, res.Dropped)
	assert.False(t, res.Cancelled)
	assert.ElementsMatch(t, []string{"B", "C"}, completedIDs(res))
	assert.Equal(t, 5, store.count())
}

func TestPipeline_EmbeddingBatches(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store, err := chromem.New(chromem.Config{})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.EmbedWorkers = 1
	cfg.EmbeddingBatchSize = 10
	cfg.UpsertBatchSize = 10
	cfg.BatchIdleTimeout = time.Minute
	cfg.ChunkQueueSize = 32

	p := newTestPipeline(t, splitInto(map[string]int{"big": 23}), embedder, store, cfg)

	res, err := p.Run(context.Background(), []*core.Document{testDoc("big")})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 3}, embedder.BatchSizes())
	assert.Equal(t, 23, res.Succeeded)
	assert.Equal(t, 23, store.Count())
	assert.Equal(t, []string{"big"}, completedIDs(res))
}

func TestPipeline_IdleFlush(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	cfg := testConfig()
	cfg.EmbedWorkers = 1
	cfg.EmbeddingBatchSize = 100
	cfg.BatchIdleTimeout = 20 * time.Millisecond

	gate := make(chan struct{})
	chunker := chunking.ChunkerFunc(func(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
		if doc.ID == "late" {
			<-gate
		}
		return []*core.Document{{Content: doc.ID}}, nil
	})
	p := newTestPipeline(t, chunker, embedder, newRecordingStore(), cfg)

	go func() {
		// the early chunk must be flushed by the idle timer, not by close
		deadline := time.Now().Add(2 * time.Second)
		for embedder.CallCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		close(gate)
	}()

	res, err := p.Run(context.Background(), []*core.Document{testDoc("early"), testDoc("late")})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, embedder.BatchSizes())
	assert.Equal(t, 2, res.Succeeded)
}

func TestPipeline_ChunkingFailures(t *testing.T) {
	store := newRecordingStore()
	p := newTestPipeline(t, splitInto(map[string]int{"ok": 2, "err": -1, "panic": -2}), mock.NewMockEmbedder(), store, testConfig())

	res, err := p.Run(context.Background(), []*core.Document{testDoc("ok"), testDoc("err"), testDoc("panic")})
	require.NoError(t, err)

	assert.Equal(t, 2, res.ChunkingFailed)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 2, res.Enqueued)
	assert.Equal(t, []string{"ok"}, completedIDs(res))

	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.Equal(t, StageChunk, f.Stage)
		assert.ErrorIs(t, f.Err, ErrChunking)
		assert.Contains(t, []string{"err", "panic"}, f.DocumentID)
	}
}

func TestPipeline_UnschedulableDocumentsAreCounted(t *testing.T) {
	store := newRecordingStore()
	p := newTestPipeline(t, splitInto(map[string]int{"a": 2, "b": 3}), mock.NewMockEmbedder(), store, testConfig())
	p.Release()

	res, err := p.Run(context.Background(), []*core.Document{testDoc("a"), testDoc("b")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChunkingFailed)
	assert.Zero(t, res.Enqueued)
	assert.Empty(t, res.Completed)
	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.Equal(t, StageChunk, f.Stage)
		assert.ErrorIs(t, f.Err, ErrChunking)
		assert.ErrorIs(t, f.Err, ants.ErrPoolClosed)
	}
	assert.Zero(t, store.count())
}

func TestPipeline_EmptyDocumentCompletes(t *testing.T) {
	p := newTestPipeline(t, splitInto(map[string]int{"empty": 0, "a": 1}), mock.NewMockEmbedder(), newRecordingStore(), testConfig())

	res, err := p.Run(context.Background(), []*core.Document{testDoc("empty"), testDoc("a")})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"empty", "a"}, completedIDs(res))
	assert.Equal(t, 1, res.Succeeded)
}

func TestPipeline_EmbeddingFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.Contains(text, "poison") {
				return nil, errors.New("provider rejected input")
			}
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 0, 0}
		}
		return out, nil
	}

	cfg := testConfig()
	cfg.EmbeddingBatchSize = 1
	store := newRecordingStore()
	p := newTestPipeline(t, splitInto(map[string]int{"good": 2, "poison": 3}), embedder, store, cfg)

	res, err := p.Run(context.Background(), []*core.Document{testDoc("good"), testDoc("poison")})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, res.Enqueued, res.Succeeded+res.Failed)
	assert.Equal(t, []string{"good"}, completedIDs(res))
	for _, f := range res.Failures {
		assert.Equal(t, StageEmbed, f.Stage)
		assert.Equal(t, "poison", f.DocumentID)
		assert.NotEmpty(t, f.ChunkID)
		assert.ErrorIs(t, f.Err, ErrEmbedding)
	}
	assert.Equal(t, 2, store.count())
}

func TestPipeline_EmbeddingTimeout(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		// ignores ctx on purpose
		<-hang
		return nil, nil
	}

	cfg := testConfig()
	cfg.EmbeddingTimeout = 30 * time.Millisecond
	p := newTestPipeline(t, splitInto(map[string]int{"slow": 3}), embedder, newRecordingStore(), cfg)

	start := time.Now()
	res, err := p.Run(context.Background(), []*core.Document{testDoc("slow")})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 0, res.Succeeded)
	assert.Empty(t, res.Completed)
	for _, f := range res.Failures {
		assert.ErrorIs(t, f.Err, ErrEmbeddingTimeout)
		assert.ErrorIs(t, f.Err, context.DeadlineExceeded)
	}
}

func TestPipeline_EmbeddingRetry(t *testing.T) {
	var calls atomic.Int32
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("temporary")
		}
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{0, 1}
		}
		return out, nil
	}

	cfg := testConfig()
	cfg.EmbedWorkers = 1
	cfg.EmbeddingBatchSize = 10
	cfg.MaxRetries = 2
	p := newTestPipeline(t, splitInto(map[string]int{"a": 3}), embedder, newRecordingStore(), cfg)

	res, err := p.Run(context.Background(), []*core.Document{testDoc("a")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPipeline_EmbeddingCountMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}

	cfg := testConfig()
	cfg.EmbedWorkers = 1
	cfg.EmbeddingBatchSize = 2
	cfg.BatchIdleTimeout = time.Minute
	p := newTestPipeline(t, splitInto(map[string]int{"a": 2}), embedder, newRecordingStore(), cfg)

	res, err := p.Run(context.Background(), []*core.Document{testDoc("a")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.ErrorIs(t, res.Failures[0].Err, ErrEmbedding)
}

func TestPipeline_UpsertFailure(t *testing.T) {
	store := newRecordingStore()
	store.fail = func(points []vectorstore.Point) error {
		for _, p := range points {
			if p.Payload.DocumentID == "bad" {
				return errors.New("index unavailable")
			}
		}
		return nil
	}

	cfg := testConfig()
	cfg.UpsertBatchSize = 1
	p := newTestPipeline(t, splitInto(map[string]int{"good": 3, "bad": 2}), mock.NewMockEmbedder(), store, cfg)

	res, err := p.Run(context.Background(), []*core.Document{testDoc("good"), testDoc("bad")})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 5, res.Enqueued)
	assert.Equal(t, []string{"good"}, completedIDs(res))
	for _, f := range res.Failures {
		assert.Equal(t, StageUpsert, f.Stage)
		assert.Equal(t, "bad", f.DocumentID)
		assert.ErrorIs(t, f.Err, ErrUpsert)
	}
}

func TestPipeline_StampsChunks(t *testing.T) {
	store := newRecordingStore()
	parent := testDoc("guide.md")
	parent.URL = "file:///srv/docs/guide.md"
	parent.Metadata = core.Metadata{BaseURL: "file:///srv/docs", Extra: map[string]any{"lang": "en"}}

	chunker := chunking.ChunkerFunc(func(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
		return []*core.Document{
			{ID: "ignored", Content: "first"},
			nil,
			{Content: "second", Metadata: core.Metadata{Title: "Part two"}},
		}, nil
	})
	p := newTestPipeline(t, chunker, mock.NewMockEmbedder(), store, testConfig())

	res, err := p.Run(context.Background(), []*core.Document{parent})
	require.NoError(t, err)
	require.Equal(t, 2, res.Succeeded)

	second, ok := store.point(core.ChunkID(parent.URI(), 1))
	require.True(t, ok)
	assert.Equal(t, "second", second.Payload.Content)
	assert.Equal(t, "guide.md", second.Payload.DocumentID)
	assert.Equal(t, "docs", second.Payload.Source)
	assert.Equal(t, "localfile", second.Payload.SourceType)
	assert.Equal(t, 1, second.Payload.Metadata["chunk_index"])
	assert.Equal(t, 2, second.Payload.Metadata["chunk_count"])
	assert.Equal(t, "guide.md", second.Payload.Metadata["parent_document_id"])
	assert.Equal(t, "Part two", second.Payload.Metadata["title"])
	assert.Equal(t, "file:///srv/docs/guide.md", second.Payload.Metadata["url"])
	assert.Equal(t, core.HashContent(parent.Content), second.Payload.Metadata["content_hash"])

	_, ok = store.point("ignored")
	assert.False(t, ok)
}

func TestPipeline_DuplicateDocuments(t *testing.T) {
	store := newRecordingStore()
	p := newTestPipeline(t, splitInto(map[string]int{"a": 2}), mock.NewMockEmbedder(), store, testConfig())

	res, err := p.Run(context.Background(), []*core.Document{testDoc("a"), testDoc("a")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Enqueued)
	assert.Equal(t, []string{"a"}, completedIDs(res))
}

func TestPipeline_Backpressure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	store := newRecordingStore()
	store.block = make(chan struct{})

	cfg := testConfig()
	cfg.ChunkQueueSize = 2
	cfg.EmbedQueueSize = 2
	cfg.ChunkWorkers = 1
	cfg.EmbedWorkers = 1
	cfg.UpsertWorkers = 1
	cfg.EmbeddingBatchSize = 1
	cfg.UpsertBatchSize = 1
	cfg.UpsertTimeout = 10 * time.Second

	p := newTestPipeline(t, splitInto(map[string]int{"many": 50}), embedder, store, cfg)
	enqueuedBefore := counterValue(t, ChunksEnqueued)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Run(context.Background(), []*core.Document{testDoc("many")})
		done <- outcome{res, err}
	}()

	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("upserter never started")
	}
	time.Sleep(100 * time.Millisecond)

	// one chunk in the blocked upsert, two in the embed queue, one held by
	// the embedder waiting to send
	assert.LessOrEqual(t, embedder.CallCount(), cfg.EmbedQueueSize+2)

	// Nothing beyond the queues and the items held by blocked workers may
	// have entered the pipeline.
	inFlight := cfg.ChunkQueueSize + cfg.EmbedQueueSize + cfg.EmbeddingBatchSize + cfg.UpsertBatchSize
	enqueued := counterValue(t, ChunksEnqueued) - enqueuedBefore
	assert.LessOrEqual(t, enqueued, inFlight)
	assert.Positive(t, enqueued)

	select {
	case <-done:
		t.Fatal("run finished while the vector store was blocked")
	default:
	}

	close(store.block)
	o := <-done
	require.NoError(t, o.err)
	assert.Equal(t, 50, o.res.Enqueued)
	assert.Equal(t, 50, o.res.Succeeded)
	assert.Equal(t, 0, o.res.Failed)
}

func TestPipeline_Cancellation(t *testing.T) {
	store := newRecordingStore()
	store.block = make(chan struct{})

	cfg := testConfig()
	cfg.UpsertTimeout = time.Minute
	p := newTestPipeline(t, splitInto(map[string]int{"a": 10, "b": 10}), mock.NewMockEmbedder(), store, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-store.started
		cancel()
	}()

	start := time.Now()
	res, err := p.Run(ctx, []*core.Document{testDoc("a"), testDoc("b")})
	require.ErrorIs(t, err, ErrShutdown)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, res.Enqueued, res.Succeeded+res.Failed+res.Dropped)
	assert.Empty(t, res.Completed)
}

func TestPipeline_AbandonsStuckWorkers(t *testing.T) {
	hang := make(chan struct{})
	entered := make(chan struct{}, 1)
	chunker := chunking.ChunkerFunc(func(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
		entered <- struct{}{}
		// ignores ctx on purpose
		<-hang
		return nil, nil
	})

	cfg := testConfig()
	cfg.ChunkWorkers = 1
	cfg.ShutdownGrace = 50 * time.Millisecond
	p := newTestPipeline(t, chunker, mock.NewMockEmbedder(), newRecordingStore(), cfg)
	t.Cleanup(func() { close(hang) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	start := time.Now()
	res, err := p.Run(ctx, []*core.Document{testDoc("stuck")})
	require.ErrorIs(t, err, ErrShutdown)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, res.Cancelled)
	assert.Empty(t, res.Completed)
}

func TestPipeline_ManagerShutdown(t *testing.T) {
	m := lifecycle.NewManager(
		lifecycle.WithExitFunc(func(int) {}),
		lifecycle.WithCleanupTimeout(time.Second),
	)
	store := newRecordingStore()
	store.block = make(chan struct{})

	cfg := testConfig()
	cfg.UpsertTimeout = time.Minute
	p := newTestPipeline(t, splitInto(map[string]int{"a": 5}), mock.NewMockEmbedder(), store, cfg, WithManager(m))

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Run(context.Background(), []*core.Document{testDoc("a")})
		done <- outcome{res, err}
	}()

	<-store.started
	names := make([]string, 0)
	for _, task := range m.Tasks() {
		names = append(names, task.Name())
	}
	assert.Contains(t, names, "embedder-0")
	assert.Contains(t, names, "upserter-0")

	m.Cleanup()

	select {
	case o := <-done:
		require.ErrorIs(t, o.err, ErrShutdown)
		assert.True(t, o.res.Cancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after manager cleanup")
	}
	assert.Empty(t, m.Tasks())
}

func TestPipeline_Progress(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPipeline(t, splitInto(map[string]int{"a": 3}), mock.NewMockEmbedder(), newRecordingStore(), testConfig(),
		WithProgress(&buf, 1))

	_, err := p.Run(context.Background(), []*core.Document{testDoc("a")})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Progress: 3/3")
}

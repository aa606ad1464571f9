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
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/lifecycle"
	"github.com/poiesic/docsync/vectorstore"
)

var tracer = otel.Tracer("docsync.ingestion")

// Pipeline moves documents through chunking, embedding and upserting.
// A Pipeline may run many times; each Run has its own queues.
type Pipeline struct {
	chunker  chunking.Chunker
	embedder ai.Embedder
	vectors  vectorstore.Client
	cfg      Config
	pool     *ants.Pool
	manager  *lifecycle.Manager

	progressWriter   io.Writer
	progressInterval int

	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithManager ties the pipeline to a lifecycle.Manager: workers run as
// tracked tasks, Manager shutdown cancels runs, and the chunk pool is
// released by the Manager's cleanup.
func WithManager(m *lifecycle.Manager) Option {
	return func(p *Pipeline) error {
		p.manager = m
		return nil
	}
}

// WithProgress writes a progress line to w every interval processed chunks.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		p.progressWriter = w
		p.progressInterval = interval
		return nil
	}
}

// antsLogger routes ants' messages to slog.
type antsLogger struct {
	logger *slog.Logger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// NewPipeline creates a pipeline. Zero fields in cfg take their defaults.
func NewPipeline(
	chunker chunking.Chunker,
	embedder ai.Embedder,
	vectors vectorstore.Client,
	cfg Config,
	opts ...Option,
) (*Pipeline, error) {
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		vectors:  vectors,
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	pool, err := ants.NewPool(cfg.ChunkWorkers,
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("chunk task panicked", "panic", v)
		}),
		ants.WithLogger(antsLogger{logger: p.logger}),
	)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	if p.manager != nil {
		p.manager.OwnExecutor(pool)
	}
	return p, nil
}

// Config returns the resolved configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run processes docs and returns what happened to them. It returns an error
// only when the run was cancelled (ErrShutdown); stage failures are
// reported in the Result.
func (p *Pipeline) Run(ctx context.Context, docs []*core.Document) (*Result, error) {
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if p.manager != nil {
		stop := context.AfterFunc(p.manager.Context(), cancel)
		defer stop()
	}

	docs = p.dedupe(docs)
	if len(docs) == 0 {
		return &Result{Duration: time.Since(start)}, nil
	}

	var progress *ProgressTracker
	if p.progressWriter != nil {
		progress = NewProgressTracker(p.progressWriter, 0, p.progressInterval)
		progress.Start()
	}
	rs := newRunState(docs, progress)

	chunkQueue := make(chan chunkItem, p.cfg.ChunkQueueSize)
	embedQueue := make(chan embeddedItem, p.cfg.EmbedQueueSize)

	p.logger.Info("pipeline started",
		"documents", len(docs),
		"embed_workers", p.cfg.EmbedWorkers,
		"upsert_workers", p.cfg.UpsertWorkers)

	var chunkWG, embedWG, upsertWG sync.WaitGroup
	for i := range p.cfg.UpsertWorkers {
		p.spawn(runCtx, cancel, &upsertWG, fmt.Sprintf("upserter-%d", i), func(ctx context.Context) {
			p.upsertWorker(ctx, embedQueue, rs)
		})
	}
	for i := range p.cfg.EmbedWorkers {
		p.spawn(runCtx, cancel, &embedWG, fmt.Sprintf("embedder-%d", i), func(ctx context.Context) {
			p.embedWorker(ctx, chunkQueue, embedQueue, rs)
		})
	}

	chunkWG.Add(len(rs.docs))
	go p.dispatch(runCtx, rs, chunkQueue, &chunkWG)

	// Each queue closes only after everything that sends to it has returned.
	done := make(chan struct{})
	go func() {
		chunkWG.Wait()
		close(chunkQueue)
		embedWG.Wait()
		close(embedQueue)
		upsertWG.Wait()
		close(done)
	}()

	cancelled := false
	select {
	case <-done:
	case <-runCtx.Done():
		cancelled = true
		p.logger.Warn("pipeline cancelled, waiting for workers", "grace", p.cfg.ShutdownGrace)
		timer := time.NewTimer(p.cfg.ShutdownGrace)
		select {
		case <-done:
		case <-timer.C:
			p.logger.Error("workers did not stop within grace period, abandoning them")
		}
		timer.Stop()
	}

	res := rs.snapshot()
	res.Cancelled = cancelled
	res.Duration = time.Since(start)
	if progress != nil {
		progress.Finish()
	}

	p.logger.Info("pipeline finished",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"chunking_failed", res.ChunkingFailed,
		"dropped", res.Dropped,
		"completed_documents", len(res.Completed),
		"duration", res.Duration)

	if cancelled {
		return res, fmt.Errorf("%w: %w", ErrShutdown, context.Cause(runCtx))
	}
	return res, nil
}

// spawn starts a stage worker, as a Manager task when there is a Manager.
// The task's own cancellation cancels the whole run.
func (p *Pipeline) spawn(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup, name string, fn func(context.Context)) {
	wg.Add(1)
	if p.manager == nil {
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		return
	}
	p.manager.Go(name, func(taskCtx context.Context) error {
		defer wg.Done()
		stop := context.AfterFunc(taskCtx, cancel)
		defer stop()
		fn(ctx)
		return nil
	})
}

// dedupe drops repeated documents by URI, keeping the last one.
func (p *Pipeline) dedupe(docs []*core.Document) []*core.Document {
	index := make(map[string]int, len(docs))
	out := make([]*core.Document, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		uri := doc.URI()
		if i, ok := index[uri]; ok {
			p.logger.Warn("duplicate document in run, keeping the last", "doc_id", doc.ID)
			out[i] = doc
			continue
		}
		index[uri] = len(out)
		out = append(out, doc)
	}
	return out
}

// Release stops the chunk pool without waiting. Call it when the pipeline
// is no longer needed and no Manager owns the pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/connector"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/detect"
	"github.com/poiesic/docsync/ingestion"
	"github.com/poiesic/docsync/lifecycle"
	"github.com/poiesic/docsync/storage"
	"github.com/poiesic/docsync/vectorstore"
)

// Engine runs syncs. Syncs are serialized; one Engine per process.
type Engine struct {
	store    storage.StateStore
	detector *detect.Detector
	pipeline *ingestion.Pipeline
	vectors  vectorstore.Client
	closers  []io.Closer
	now      func() time.Time
	logger   *slog.Logger

	// used by Open only
	manager  *lifecycle.Manager
	progress io.Writer
	embedder ai.Embedder

	syncMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithManager registers the pipeline built by Open with m, so a shutdown
// through m cancels running syncs.
func WithManager(m *lifecycle.Manager) Option {
	return func(e *Engine) {
		e.manager = m
	}
}

// WithProgress makes the pipeline built by Open report progress to w.
func WithProgress(w io.Writer) Option {
	return func(e *Engine) {
		e.progress = w
	}
}

// WithEmbedder makes Open use embedder instead of the configured provider.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(e *Engine) {
		e.embedder = embedder
	}
}

// NewEngine wires existing components and initializes the state store. The
// caller keeps ownership of store, pipeline and vectors.
func NewEngine(ctx context.Context, store storage.StateStore, pipeline *ingestion.Pipeline, vectors vectorstore.Client, opts ...Option) (*Engine, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if vectors == nil {
		return nil, ingestion.ErrVectorStoreRequired
	}

	e := &Engine{
		store:    store,
		pipeline: pipeline,
		vectors:  vectors,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")

	detector, err := detect.New(store, detect.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	if err := detector.Open(ctx); err != nil {
		return nil, err
	}
	e.detector = detector
	return e, nil
}

// Close closes the detector and every component the engine owns. It is
// safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []error
	if err := e.detector.Close(); err != nil {
		errs = append(errs, err)
	}
	// reverse open order
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.logger.Error("error closing component", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// SyncReport summarizes one sync of one source.
type SyncReport struct {
	Source    core.SourceRef
	Fetched   int
	New       int
	Updated   int
	Deleted   int
	Unchanged int

	// Ingested is the number of documents whose state was recorded.
	Ingested int

	// DeletionsApplied is the number of deletions removed from the vector
	// store and marked in the state store.
	DeletionsApplied int

	ChunksSucceeded int
	ChunksFailed    int
	ChunkingFailed  int

	Status   core.IngestionStatus
	Duration time.Duration
}

// SyncSource runs one sync of c's source.
//
// Partial success is not an error: the report's Status says whether every
// change was applied. Errors are returned for fetch failures
// (ErrConnectorFetch), state store failures and shutdown
// (ingestion.ErrShutdown).
func (e *Engine) SyncSource(ctx context.Context, c connector.Connector) (*SyncReport, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	ref := c.Source()
	if err := core.ValidateSourceRef(ref); err != nil {
		return nil, err
	}
	start := e.now()
	report := &SyncReport{Source: ref}
	logger := e.logger.With("source", ref.String())

	previous, err := e.store.GetLastIngestion(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("loading ingestion history: %w", err)
	}

	docs, err := c.GetDocuments(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ingestion.ErrShutdown, ctx.Err())
		}
		fetchErr := fmt.Errorf("%w: %s: %w", ErrConnectorFetch, ref, err)
		logger.Error("fetch failed", "err", err)
		report.Status = core.IngestionFailed
		report.Duration = e.now().Sub(start)
		if herr := e.recordHistory(ctx, ref, previous, report, fetchErr.Error()); herr != nil {
			return report, errors.Join(fetchErr, herr)
		}
		return report, fetchErr
	}
	report.Fetched = len(docs)

	changes, err := e.detector.DetectChanges(ctx, ref, docs, nil)
	if err != nil {
		return nil, fmt.Errorf("detecting changes: %w", err)
	}
	report.New = len(changes.New)
	report.Updated = len(changes.Updated)
	report.Deleted = len(changes.Deleted)
	report.Unchanged = report.Fetched - report.New - report.Updated
	logger.Info("detected changes",
		"fetched", report.Fetched,
		"new", report.New,
		"updated", report.Updated,
		"deleted", report.Deleted)

	// Chunks of an updated document are replaced wholesale; a shorter
	// version would otherwise leave its old tail behind.
	if len(changes.Updated) > 0 {
		ids := make([]string, len(changes.Updated))
		for i, doc := range changes.Updated {
			ids[i] = doc.ID
		}
		if err := e.vectors.DeletePointsByDocumentID(ctx, scopeOf(ref), ids); err != nil {
			logger.Warn("could not purge old chunks of updated documents", "count", len(ids), "err", err)
		}
	}

	var runErr error
	var problems []string
	toIngest := changes.ToIngest()
	if len(toIngest) > 0 {
		res, err := e.pipeline.Run(ctx, toIngest)
		runErr = err
		report.ChunksSucceeded = res.Succeeded
		report.ChunksFailed = res.Failed
		report.ChunkingFailed = res.ChunkingFailed

		// Completed work is recorded even when shutting down.
		persistCtx := context.WithoutCancel(ctx)
		ingestedAt := e.now()
		for _, doc := range res.Completed {
			state := core.StateFromDocument(doc)
			state.LastIngested = ingestedAt
			if _, err := e.store.UpsertDocumentState(persistCtx, state); err != nil {
				return report, fmt.Errorf("recording state of %s: %w", doc.ID, err)
			}
		}
		report.Ingested = len(res.Completed)
		if report.Ingested < len(toIngest) {
			problems = append(problems, fmt.Sprintf("%d of %d documents not ingested", len(toIngest)-report.Ingested, len(toIngest)))
		}
		if len(res.Failures) > 0 {
			problems = append(problems, res.Failures[0].Err.Error())
		}
	}

	if runErr == nil && len(changes.Deleted) > 0 {
		applied, err := e.applyDeletions(ctx, ref, changes.Deleted)
		if err != nil {
			if errors.Is(err, errStateStore) {
				return report, err
			}
			logger.Error("could not apply deletions", "err", err)
			problems = append(problems, err.Error())
		}
		report.DeletionsApplied = applied
	}

	report.Status = statusOf(report, runErr)
	report.Duration = e.now().Sub(start)

	message := ""
	if runErr != nil {
		message = runErr.Error()
	} else if len(problems) > 0 {
		message = problems[0]
	}
	if err := e.recordHistory(context.WithoutCancel(ctx), ref, previous, report, message); err != nil {
		return report, errors.Join(runErr, err)
	}

	logger.Info("sync finished",
		"status", report.Status,
		"ingested", report.Ingested,
		"deleted", report.DeletionsApplied,
		"chunks_failed", report.ChunksFailed,
		"chunking_failed", report.ChunkingFailed,
		"duration", report.Duration)
	return report, runErr
}

var errStateStore = errors.New("state store")

// scopeOf limits vector deletions to the points of one source.
func scopeOf(ref core.SourceRef) vectorstore.Scope {
	return vectorstore.Scope{SourceType: ref.Type, Source: ref.Name}
}

func (e *Engine) applyDeletions(ctx context.Context, ref core.SourceRef, deleted []*core.Document) (int, error) {
	ids := make([]string, len(deleted))
	keys := make([]core.StateKey, len(deleted))
	for i, doc := range deleted {
		ids[i] = doc.ID
		keys[i] = core.StateKey{SourceType: doc.SourceType, Source: doc.Source, DocumentID: doc.ID}
	}
	if err := e.vectors.DeletePointsByDocumentID(ctx, scopeOf(ref), ids); err != nil {
		// states stay live, so the next run reports them again
		return 0, fmt.Errorf("deleting points: %w", err)
	}
	if err := e.store.MarkDeleted(ctx, keys...); err != nil {
		return 0, fmt.Errorf("%w: marking deleted: %w", errStateStore, err)
	}
	return len(deleted), nil
}

func statusOf(r *SyncReport, runErr error) core.IngestionStatus {
	changes := r.New + r.Updated + r.Deleted
	applied := r.Ingested + r.DeletionsApplied
	switch {
	case runErr == nil && applied == changes:
		return core.IngestionSuccess
	case applied == 0 && changes > 0:
		return core.IngestionFailed
	default:
		return core.IngestionPartial
	}
}

func (e *Engine) recordHistory(ctx context.Context, ref core.SourceRef, previous *core.IngestionHistory, r *SyncReport, message string) error {
	history := &core.IngestionHistory{
		SourceType:    ref.Type,
		Source:        ref.Name,
		Status:        r.Status,
		DocumentCount: r.Fetched,
		ErrorMessage:  message,
		UpdatedAt:     e.now(),
	}
	switch {
	case r.Status == core.IngestionSuccess:
		history.LastSuccessfulIngestion = e.now()
	case previous != nil:
		history.LastSuccessfulIngestion = previous.LastSuccessfulIngestion
	}
	if err := e.store.UpdateLastIngestion(ctx, history); err != nil {
		return fmt.Errorf("recording ingestion history: %w", err)
	}
	return nil
}

// SyncAll syncs every connector in order. A failing source does not stop
// the others; shutdown does. Reports are returned for every source that
// ran.
func (e *Engine) SyncAll(ctx context.Context, connectors []connector.Connector) ([]*SyncReport, error) {
	reports := make([]*SyncReport, 0, len(connectors))
	var errs []error
	for _, c := range connectors {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ingestion.ErrShutdown, ctx.Err()))
			break
		}
		report, err := e.SyncSource(ctx, c)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, err)
			if !errors.Is(err, ErrConnectorFetch) {
				break
			}
		}
	}
	return reports, errors.Join(errs...)
}

// SourceStatus is the stored view of one source.
type SourceStatus struct {
	Source core.SourceRef

	// History is nil if the source was never synced.
	History *core.IngestionHistory

	ActiveDocuments  int
	DeletedDocuments int
}

// Status reads the stored history and document counts of ref.
func (e *Engine) Status(ctx context.Context, ref core.SourceRef) (*SourceStatus, error) {
	if e.isClosed() {
		return nil, ErrEngineClosed
	}
	history, err := e.store.GetLastIngestion(ctx, ref)
	if err != nil {
		return nil, err
	}
	states, err := e.store.ListDocumentStates(ctx, ref, storage.ListOptions{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}

	status := &SourceStatus{Source: ref, History: history}
	for _, s := range states {
		if s.IsDeleted {
			status.DeletedDocuments++
		} else {
			status.ActiveDocuments++
		}
	}
	return status, nil
}

// Watch syncs c once, then again every time its source reports a change,
// until ctx is done. Fetch failures are logged and the watch goes on.
func (e *Engine) Watch(ctx context.Context, c connector.Connector) error {
	w, ok := c.(connector.Watcher)
	if !ok {
		return fmt.Errorf("%w: %s", ErrWatchUnsupported, c.Source())
	}

	syncOnce := func() error {
		_, err := e.SyncSource(ctx, c)
		switch {
		case err == nil, ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrConnectorFetch):
			e.logger.Warn("sync failed, waiting for next change", "source", c.Source().String(), "err", err)
			return nil
		default:
			return err
		}
	}
	if err := syncOnce(); err != nil {
		return err
	}

	pending := make(chan struct{}, 1)
	watchErr := make(chan error, 1)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		watchErr <- w.Watch(watchCtx, func() {
			select {
			case pending <- struct{}{}:
			default:
			}
		})
	}()

	for {
		select {
		case <-ctx.Done():
			<-watchErr
			return nil
		case err := <-watchErr:
			return err
		case <-pending:
			if err := syncOnce(); err != nil {
				cancel()
				<-watchErr
				return err
			}
		}
	}
}

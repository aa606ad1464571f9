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
	"sync"
	"time"

	"github.com/poiesic/docsync/core"
)

// Stage names a pipeline stage.
type Stage string

const (
	StageChunk  Stage = "chunk"
	StageEmbed  Stage = "embed"
	StageUpsert Stage = "upsert"
)

// Failure describes one failed document (chunk stage) or chunk (embed and
// upsert stages).
type Failure struct {
	Stage      Stage
	DocumentID string
	ChunkID    string
	Err        error
}

// Result summarizes one Run.
//
// For a run that was not cancelled, Succeeded + Failed == Enqueued.
// Documents that failed to chunk are counted in ChunkingFailed only.
type Result struct {
	Succeeded      int
	Failed         int
	ChunkingFailed int
	Enqueued       int

	// Dropped chunks were enqueued but neither upserted nor failed because
	// the run was cancelled.
	Dropped int

	// Completed holds the input documents whose every chunk was upserted.
	// A document with no chunks is complete once it has been chunked.
	Completed []*core.Document

	Failures  []Failure
	Cancelled bool
	Duration  time.Duration
}

// chunkItem travels through the chunk queue.
type chunkItem struct {
	chunk *core.Document
	doc   *docProgress
}

// embeddedItem travels through the embed queue.
type embeddedItem struct {
	chunkItem
	vector []float32
}

type docProgress struct {
	doc       *core.Document
	expected  int // -1 until chunked
	succeeded int
	failed    int
}

// runState is the shared bookkeeping of one Run.
type runState struct {
	mu       sync.Mutex
	docs     []*docProgress
	result   Result
	progress *ProgressTracker
}

func newRunState(docs []*core.Document, progress *ProgressTracker) *runState {
	rs := &runState{
		docs:     make([]*docProgress, len(docs)),
		progress: progress,
	}
	for i, doc := range docs {
		rs.docs[i] = &docProgress{doc: doc, expected: -1}
	}
	return rs
}

func (rs *runState) chunked(d *docProgress, n int) {
	rs.mu.Lock()
	d.expected = n
	rs.mu.Unlock()
	if rs.progress != nil {
		rs.progress.AddTotal(n)
	}
}

func (rs *runState) enqueued() {
	rs.mu.Lock()
	rs.result.Enqueued++
	rs.mu.Unlock()
	ChunksEnqueued.Inc()
}

func (rs *runState) chunkingFailed(d *docProgress, err error) {
	rs.mu.Lock()
	rs.result.ChunkingFailed++
	rs.result.Failures = append(rs.result.Failures, Failure{
		Stage:      StageChunk,
		DocumentID: d.doc.ID,
		Err:        err,
	})
	rs.mu.Unlock()
	StageErrors.WithLabelValues(string(StageChunk)).Inc()
}

func (rs *runState) succeeded(items []embeddedItem) {
	rs.mu.Lock()
	for _, item := range items {
		item.doc.succeeded++
	}
	rs.result.Succeeded += len(items)
	rs.mu.Unlock()
	ChunksUpserted.Add(float64(len(items)))
	if rs.progress != nil {
		rs.progress.Upserted(len(items))
	}
}

func (rs *runState) failed(stage Stage, items []chunkItem, err error) {
	rs.mu.Lock()
	for _, item := range items {
		item.doc.failed++
		rs.result.Failures = append(rs.result.Failures, Failure{
			Stage:      stage,
			DocumentID: item.doc.doc.ID,
			ChunkID:    item.chunk.ID,
			Err:        err,
		})
	}
	rs.result.Failed += len(items)
	rs.mu.Unlock()
	StageErrors.WithLabelValues(string(stage)).Add(float64(len(items)))
	if rs.progress != nil {
		rs.progress.Failed(len(items))
	}
}

// snapshot copies the result. Abandoned workers may still update the
// state afterwards; the copy is unaffected.
func (rs *runState) snapshot() *Result {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	res := rs.result
	res.Failures = append([]Failure(nil), rs.result.Failures...)
	res.Dropped = res.Enqueued - res.Succeeded - res.Failed
	for _, d := range rs.docs {
		if d.expected >= 0 && d.failed == 0 && d.succeeded == d.expected {
			res.Completed = append(res.Completed, d.doc)
		}
	}
	return &res
}

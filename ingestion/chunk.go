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
	"sync"

	"github.com/poiesic/docsync/core"
)

// dispatch submits one chunk task per document to the pool. wg must already
// count every document; each one is marked done exactly once.
func (p *Pipeline) dispatch(ctx context.Context, rs *runState, out chan<- chunkItem, wg *sync.WaitGroup) {
	for i, d := range rs.docs {
		if ctx.Err() != nil {
			// never chunked: dropped before chunking
			for range rs.docs[i:] {
				wg.Done()
			}
			return
		}
		err := p.pool.Submit(func() {
			defer wg.Done()
			p.chunkDocument(ctx, d, out, rs)
		})
		if err != nil {
			p.logger.Error("could not schedule chunking", "doc_id", d.doc.ID, "err", err)
			rs.chunkingFailed(d, fmt.Errorf("%w: %s: scheduling: %w", ErrChunking, d.doc.ID, err))
			wg.Done()
		}
	}
}

// chunkDocument splits one document and enqueues its chunks. Errors and
// panics are recorded against the document and never escape.
func (p *Pipeline) chunkDocument(ctx context.Context, d *docProgress, out chan<- chunkItem, rs *runState) {
	doc := d.doc
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("chunker panicked", "doc_id", doc.ID, "panic", r)
			rs.chunkingFailed(d, fmt.Errorf("%w: %s: panic: %v", ErrChunking, doc.ID, r))
		}
	}()

	if ctx.Err() != nil {
		return
	}

	raw, err := p.chunker.ChunkDocument(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("chunking failed", "doc_id", doc.ID, "err", err)
		rs.chunkingFailed(d, fmt.Errorf("%w: %s: %w", ErrChunking, doc.ID, err))
		return
	}

	chunks := stampChunks(doc, raw)
	rs.chunked(d, len(chunks))
	p.logger.Debug("chunked document", "doc_id", doc.ID, "chunks", len(chunks))

	for _, chunk := range chunks {
		select {
		case out <- chunkItem{chunk: chunk, doc: d}:
			rs.enqueued()
			QueueDepth.WithLabelValues("chunk").Set(float64(len(out)))
		case <-ctx.Done():
			return
		}
	}
}

// stampChunks ties the chunker's output to its parent: deterministic ids,
// parent reference, index and count, and the parent's source fields. Nil
// entries are skipped.
func stampChunks(parent *core.Document, raw []*core.Document) []*core.Document {
	kept := make([]*core.Document, 0, len(raw))
	for _, c := range raw {
		if c != nil {
			kept = append(kept, c)
		}
	}

	hash := core.ContentHash(parent)
	uri := parent.URI()
	out := make([]*core.Document, len(kept))
	for i, c := range kept {
		chunk := *c
		chunk.ID = core.ChunkID(uri, i)
		chunk.Source = parent.Source
		chunk.SourceType = parent.SourceType
		if chunk.URL == "" {
			chunk.URL = parent.URL
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = parent.CreatedAt
		}
		chunk.Metadata.ParentDocumentID = parent.ID
		chunk.Metadata.ChunkIndex = i
		chunk.Metadata.ChunkCount = len(kept)
		chunk.Metadata.BaseURL = parent.Metadata.BaseURL
		if chunk.Metadata.ContentHash == "" {
			chunk.Metadata.ContentHash = hash
		}
		out[i] = &chunk
	}
	return out
}

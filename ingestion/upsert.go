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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/vectorstore"
)

// upsertWorker batches embedded chunks from in and writes them to the
// vector store.
func (p *Pipeline) upsertWorker(ctx context.Context, in <-chan embeddedItem, rs *runState) {
	batchLoop(ctx, in, p.cfg.UpsertBatchSize, p.cfg.BatchIdleTimeout, func(batch []embeddedItem) bool {
		return p.upsertBatch(ctx, batch, rs)
	})
}

// upsertBatch writes one batch. A failed call fails every chunk in it. It
// returns false once ctx is done.
func (p *Pipeline) upsertBatch(ctx context.Context, batch []embeddedItem, rs *runState) bool {
	spanCtx, span := tracer.Start(ctx, "ingestion.upsertBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_size", len(batch)))

	points := make([]vectorstore.Point, len(batch))
	for i, item := range batch {
		points[i] = toPoint(item.chunk, item.vector)
	}

	start := time.Now()
	err := RetryWithBackoff(spanCtx, func() error {
		_, err := callWithTimeout(spanCtx, p.cfg.UpsertTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.vectors.UpsertPoints(ctx, points)
		})
		return err
	}, p.cfg.MaxRetries, p.cfg.RetryDelay)
	BatchDuration.WithLabelValues(string(StageUpsert)).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return false
		}
		err = fmt.Errorf("%w: %w", ErrUpsert, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		items := make([]chunkItem, len(batch))
		for i, item := range batch {
			items[i] = item.chunkItem
			p.logger.Error("upsert failed", "doc_id", item.doc.doc.ID, "chunk_id", item.chunk.ID, "err", err)
		}
		rs.failed(StageUpsert, items, err)
		return true
	}

	span.SetStatus(codes.Ok, "success")
	rs.succeeded(batch)
	return true
}

// toPoint builds the vector store record of a chunk.
func toPoint(chunk *core.Document, vector []float32) vectorstore.Point {
	md := chunk.Metadata.Map()
	if chunk.URL != "" {
		md["url"] = chunk.URL
	}
	if !chunk.CreatedAt.IsZero() {
		md["created_at"] = chunk.CreatedAt.UTC().Format(time.RFC3339)
	}
	return vectorstore.Point{
		ID:     chunk.ID,
		Vector: vector,
		Payload: vectorstore.Payload{
			Content:    chunk.Content,
			Metadata:   md,
			Source:     chunk.Source,
			SourceType: chunk.SourceType,
			DocumentID: chunk.ParentID(),
		},
	}
}

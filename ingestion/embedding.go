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
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// embedWorker batches chunks from in, embeds each batch and forwards the
// vectors to out.
func (p *Pipeline) embedWorker(ctx context.Context, in <-chan chunkItem, out chan<- embeddedItem, rs *runState) {
	batchLoop(ctx, in, p.cfg.EmbeddingBatchSize, p.cfg.BatchIdleTimeout, func(batch []chunkItem) bool {
		return p.embedBatch(ctx, batch, out, rs)
	})
}

// embedBatch makes one embedding call for the batch. A failed or timed out
// call fails every chunk in the batch. It returns false once ctx is done.
func (p *Pipeline) embedBatch(ctx context.Context, batch []chunkItem, out chan<- embeddedItem, rs *runState) bool {
	spanCtx, span := tracer.Start(ctx, "ingestion.embedBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_size", len(batch)))

	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = item.chunk.Content
	}

	start := time.Now()
	var vectors [][]float32
	err := RetryWithBackoff(spanCtx, func() error {
		v, err := callWithTimeout(spanCtx, p.cfg.EmbeddingTimeout, func(ctx context.Context) ([][]float32, error) {
			return p.embedder.EmbedTexts(ctx, texts)
		})
		if err != nil {
			return err
		}
		if len(v) != len(texts) {
			return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(v))
		}
		vectors = v
		return nil
	}, p.cfg.MaxRetries, p.cfg.RetryDelay)
	BatchDuration.WithLabelValues(string(StageEmbed)).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return false
		}
		kind := ErrEmbedding
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrEmbeddingTimeout
		}
		err = fmt.Errorf("%w: %w", kind, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("embedding batch failed", "chunks", len(batch), "err", err)
		rs.failed(StageEmbed, batch, err)
		return true
	}

	for i, item := range batch {
		select {
		case out <- embeddedItem{chunkItem: item, vector: vectors[i]}:
			ChunksEmbedded.Inc()
			QueueDepth.WithLabelValues("embed").Set(float64(len(out)))
		case <-ctx.Done():
			return false
		}
	}
	span.SetStatus(codes.Ok, "success")
	return true
}

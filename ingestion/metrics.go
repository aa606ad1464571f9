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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "docsync"
	subsystem = "pipeline"
)

var (
	// ChunksEnqueued counts chunks that entered the chunk queue.
	ChunksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chunks_enqueued_total",
		Help:      "Chunks that entered the chunk queue",
	})

	// ChunksEmbedded counts chunks that received a vector.
	ChunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chunks_embedded_total",
		Help:      "Chunks embedded",
	})

	// ChunksUpserted counts chunks written to the vector store.
	ChunksUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "chunks_upserted_total",
		Help:      "Chunks written to the vector store",
	})

	// StageErrors counts failures. Labels: stage (chunk, embed, upsert).
	// Chunk failures count documents, the others count chunks.
	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Pipeline failures by stage",
	}, []string{"stage"})

	// QueueDepth is the last observed length of each queue.
	// Labels: queue (chunk, embed)
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "queue_depth",
		Help:      "Items waiting in a pipeline queue",
	}, []string{"queue"})

	// BatchDuration observes embed and upsert call latency.
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "batch_duration_seconds",
		Help:      "Duration of embed and upsert batches",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})
)

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
	"fmt"
	"runtime"
	"time"
)

// Config holds the resolved pipeline settings.
type Config struct {
	// ChunkQueueSize is the capacity of the chunk -> embed queue.
	ChunkQueueSize int `koanf:"chunk_queue_size"`

	// EmbedQueueSize is the capacity of the embed -> upsert queue.
	EmbedQueueSize int `koanf:"embed_queue_size"`

	// ChunkWorkers is the size of the ants pool running chunk tasks.
	ChunkWorkers int `koanf:"chunk_workers"`

	EmbedWorkers  int `koanf:"embed_workers"`
	UpsertWorkers int `koanf:"upsert_workers"`

	EmbeddingBatchSize int `koanf:"embedding_batch_size"`
	UpsertBatchSize    int `koanf:"upsert_batch_size"`

	// BatchIdleTimeout flushes a partial batch when no input arrives for
	// this long.
	BatchIdleTimeout time.Duration `koanf:"batch_idle_timeout"`

	// EmbeddingTimeout bounds each embedding call.
	EmbeddingTimeout time.Duration `koanf:"embedding_timeout"`

	// UpsertTimeout bounds each vector store call.
	UpsertTimeout time.Duration `koanf:"upsert_timeout"`

	// ShutdownGrace is how long Run waits for workers after cancellation.
	ShutdownGrace time.Duration `koanf:"shutdown_grace"`

	// MaxRetries is the number of attempts per embed or upsert batch.
	// One means no retry.
	MaxRetries int `koanf:"max_retries"`

	// RetryDelay is the base backoff between attempts.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return Config{
		ChunkQueueSize:     256,
		EmbedQueueSize:     256,
		ChunkWorkers:       workers,
		EmbedWorkers:       2,
		UpsertWorkers:      2,
		EmbeddingBatchSize: 32,
		UpsertBatchSize:    64,
		BatchIdleTimeout:   250 * time.Millisecond,
		EmbeddingTimeout:   60 * time.Second,
		UpsertTimeout:      30 * time.Second,
		ShutdownGrace:      5 * time.Second,
		MaxRetries:         1,
		RetryDelay:         500 * time.Millisecond,
	}
}

// ApplyDefaults fills zero fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setDur := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}
	setInt(&c.ChunkQueueSize, d.ChunkQueueSize)
	setInt(&c.EmbedQueueSize, d.EmbedQueueSize)
	setInt(&c.ChunkWorkers, d.ChunkWorkers)
	setInt(&c.EmbedWorkers, d.EmbedWorkers)
	setInt(&c.UpsertWorkers, d.UpsertWorkers)
	setInt(&c.EmbeddingBatchSize, d.EmbeddingBatchSize)
	setInt(&c.UpsertBatchSize, d.UpsertBatchSize)
	setInt(&c.MaxRetries, d.MaxRetries)
	setDur(&c.BatchIdleTimeout, d.BatchIdleTimeout)
	setDur(&c.EmbeddingTimeout, d.EmbeddingTimeout)
	setDur(&c.UpsertTimeout, d.UpsertTimeout)
	setDur(&c.ShutdownGrace, d.ShutdownGrace)
	setDur(&c.RetryDelay, d.RetryDelay)
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"chunk_queue_size", c.ChunkQueueSize},
		{"embed_queue_size", c.EmbedQueueSize},
		{"chunk_workers", c.ChunkWorkers},
		{"embed_workers", c.EmbedWorkers},
		{"upsert_workers", c.UpsertWorkers},
		{"embedding_batch_size", c.EmbeddingBatchSize},
		{"upsert_batch_size", c.UpsertBatchSize},
		{"max_retries", c.MaxRetries},
	}
	for _, p := range positive {
		if p.value < 1 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.BatchIdleTimeout <= 0 || c.EmbeddingTimeout <= 0 || c.UpsertTimeout <= 0 || c.ShutdownGrace <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry_delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

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
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/ai/mock"
	"github.com/poiesic/docsync/ai/openai"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/config"
	"github.com/poiesic/docsync/connector"
	"github.com/poiesic/docsync/connector/localfile"
	"github.com/poiesic/docsync/ingestion"
	"github.com/poiesic/docsync/storage"
	"github.com/poiesic/docsync/storage/badger"
	"github.com/poiesic/docsync/storage/sqlite"
	"github.com/poiesic/docsync/vectorstore"
	"github.com/poiesic/docsync/vectorstore/chromem"
	"github.com/poiesic/docsync/vectorstore/qdrant"
)

// Open builds every component described by cfg and returns an Engine that
// owns them. Close releases them in reverse order.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	o := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	var closers []io.Closer
	fail := func(err error) (*Engine, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				o.logger.Error("error closing component", "err", cerr)
			}
		}
		return nil, err
	}

	store, err := openStateStore(cfg.State)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, store)

	chunker, err := chunking.New(cfg.Chunking)
	if err != nil {
		return fail(err)
	}

	embedder := o.embedder
	if embedder == nil {
		embedder, err = newEmbedder(cfg.Embedding, cfg.Pipeline.EmbeddingBatchSize, o.logger)
		if err != nil {
			return fail(err)
		}
	}

	vectors, err := openVectorStore(ctx, cfg.VectorStore, o.logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, vectors)

	pipelineOpts := []ingestion.Option{ingestion.WithLogger(o.logger)}
	if o.manager != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithManager(o.manager))
	}
	if o.progress != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithProgress(o.progress, cfg.Pipeline.UpsertBatchSize))
	}
	pipeline, err := ingestion.NewPipeline(chunker, embedder, vectors, cfg.Pipeline, pipelineOpts...)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, pipelineCloser{pipeline})

	engine, err := NewEngine(ctx, store, pipeline, vectors, opts...)
	if err != nil {
		return fail(err)
	}
	engine.closers = closers
	return engine, nil
}

type pipelineCloser struct {
	p *ingestion.Pipeline
}

func (c pipelineCloser) Close() error {
	c.p.Release()
	return nil
}

func openStateStore(cfg config.StateConfig) (storage.StateStore, error) {
	switch cfg.Backend {
	case config.StateBadger:
		return badger.OpenStateStore(cfg.Path, cfg.InMemory)
	case config.StateSQLite:
		return sqlite.OpenStateStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: state backend %q", ErrUnknownBackend, cfg.Backend)
	}
}

func newEmbedder(cfg config.EmbeddingConfig, batchSize int, logger *slog.Logger) (ai.Embedder, error) {
	var embedder ai.Embedder
	switch cfg.Provider {
	case config.EmbeddingOpenAI:
		var err error
		embedder, err = openai.NewEmbedder(cfg.AIConfig(batchSize), openai.WithLogger(logger))
		if err != nil {
			return nil, err
		}
	case config.EmbeddingMock:
		embedder = mock.NewMockEmbedder()
	default:
		return nil, fmt.Errorf("%w: embedding provider %q", ErrUnknownBackend, cfg.Provider)
	}
	return ai.NewRateLimitedEmbedder(embedder, cfg.RequestsPerSecond, cfg.Burst), nil
}

func openVectorStore(ctx context.Context, cfg config.VectorStoreConfig, logger *slog.Logger) (vectorstore.Client, error) {
	switch cfg.Backend {
	case config.VectorChromem:
		store, err := chromem.New(cfg.Chromem, chromem.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.VectorQdrant:
		store, err := qdrant.New(ctx, cfg.Qdrant, qdrant.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: vector store %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Connectors builds a connector for every configured source.
func Connectors(cfg *config.Config, logger *slog.Logger) ([]connector.Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]connector.Connector, 0, len(cfg.Sources))
	for i, src := range cfg.Sources {
		switch src.Type {
		case localfile.SourceType:
			c, err := localfile.New(src.LocalFile(), localfile.WithLogger(logger))
			if err != nil {
				return nil, fmt.Errorf("sources[%d]: %w", i, err)
			}
			out = append(out, c)
		default:
			return nil, fmt.Errorf("sources[%d]: %w: %q", i, connector.ErrUnknownType, src.Type)
		}
	}
	return out, nil
}

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


package config

import (
	"fmt"
	"time"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/connector/localfile"
	"github.com/poiesic/docsync/ingestion"
	"github.com/poiesic/docsync/vectorstore/chromem"
	"github.com/poiesic/docsync/vectorstore/qdrant"
)

// State store backends.
const (
	StateBadger = "badger"
	StateSQLite = "sqlite"
)

// Embedding providers.
const (
	EmbeddingOpenAI = "openai"
	EmbeddingMock   = "mock"
)

// Vector store backends.
const (
	VectorChromem = "chromem"
	VectorQdrant  = "qdrant"
)

// Config is the root configuration object. It is built once at startup and
// passed down.
type Config struct {
	State       StateConfig       `koanf:"state"`
	Chunking    chunking.Config   `koanf:"chunking"`
	Pipeline    ingestion.Config  `koanf:"pipeline"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Sources     []SourceConfig    `koanf:"sources"`
	Shutdown    ShutdownConfig    `koanf:"shutdown"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// StateConfig selects the state store.
type StateConfig struct {
	Backend string `koanf:"backend"`

	// Path is the badger directory or the sqlite file.
	Path string `koanf:"path"`

	// InMemory keeps badger state in memory. Only useful for trials.
	InMemory bool `koanf:"in_memory"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `koanf:"provider"`
	Host     string `koanf:"host"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`

	// RequestsPerSecond limits embedding calls. Zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// AIConfig converts to the provider configuration.
func (e EmbeddingConfig) AIConfig(batchSize int) *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithBatchSize(batchSize),
		ai.WithRateLimit(e.RequestsPerSecond, e.Burst),
	}
	if e.Host != "" {
		opts = append(opts, ai.WithEmbeddingHost(e.Host))
	}
	if e.Model != "" {
		opts = append(opts, ai.WithEmbeddingModel(e.Model))
	}
	if e.APIKey != "" {
		opts = append(opts, ai.WithAPIKey(e.APIKey))
	}
	return ai.NewConfig(opts...)
}

// VectorStoreConfig selects the vector store.
type VectorStoreConfig struct {
	Backend string         `koanf:"backend"`
	Chromem chromem.Config `koanf:"chromem"`
	Qdrant  qdrant.Config  `koanf:"qdrant"`
}

// SourceConfig describes one source. Type selects the connector.
type SourceConfig struct {
	Type        string        `koanf:"type"`
	Name        string        `koanf:"name"`
	Root        string        `koanf:"root"`
	Extensions  []string      `koanf:"extensions"`
	MaxFileSize int64         `koanf:"max_file_size"`
	Debounce    time.Duration `koanf:"debounce"`
}

// LocalFile returns the localfile connector configuration.
func (s SourceConfig) LocalFile() localfile.Config {
	return localfile.Config{
		Name:        s.Name,
		Root:        s.Root,
		Extensions:  s.Extensions,
		MaxFileSize: s.MaxFileSize,
		Debounce:    s.Debounce,
	}
}

// ShutdownConfig bounds how long shutdown may take.
type ShutdownConfig struct {
	// ForceExitDelay is how long after the first interrupt the process
	// exits regardless of progress.
	ForceExitDelay time.Duration `koanf:"force_exit_delay"`

	// CleanupTimeout bounds waiting for tasks during cleanup.
	CleanupTimeout time.Duration `koanf:"cleanup_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables it.
	Addr string `koanf:"addr"`
}

// Default returns a configuration that runs against local backends.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset values.
func (c *Config) ApplyDefaults() {
	if c.State.Backend == "" {
		c.State.Backend = StateBadger
	}
	if c.State.Path == "" && !c.State.InMemory {
		c.State.Path = "docsync-state"
	}

	if c.Chunking.ChunkSize == 0 {
		c.Chunking = chunking.DefaultConfig()
	}
	c.Pipeline.ApplyDefaults()

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = EmbeddingOpenAI
	}

	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = VectorChromem
	}
	if c.VectorStore.Backend == VectorQdrant {
		c.VectorStore.Qdrant.ApplyDefaults()
	}

	for i := range c.Sources {
		if c.Sources[i].Type == "" {
			c.Sources[i].Type = localfile.SourceType
		}
	}

	if c.Shutdown.ForceExitDelay == 0 {
		c.Shutdown.ForceExitDelay = 10 * time.Second
	}
	if c.Shutdown.CleanupTimeout == 0 {
		c.Shutdown.CleanupTimeout = 5 * time.Second
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case StateBadger:
		if c.State.Path == "" && !c.State.InMemory {
			return fmt.Errorf("%w: state.path is required", ErrInvalidConfig)
		}
	case StateSQLite:
		if c.State.Path == "" {
			return fmt.Errorf("%w: state.path is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown state backend %q", ErrInvalidConfig, c.State.Backend)
	}

	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("%w: chunking: %w", ErrInvalidConfig, err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("%w: pipeline: %w", ErrInvalidConfig, err)
	}

	switch c.Embedding.Provider {
	case EmbeddingOpenAI:
		if err := c.Embedding.AIConfig(c.Pipeline.EmbeddingBatchSize).Validate(); err != nil {
			return fmt.Errorf("%w: embedding: %w", ErrInvalidConfig, err)
		}
	case EmbeddingMock:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}

	switch c.VectorStore.Backend {
	case VectorChromem:
	case VectorQdrant:
		if err := c.VectorStore.Qdrant.Validate(); err != nil {
			return fmt.Errorf("%w: vectorstore: %w", ErrInvalidConfig, err)
		}
	default:
		return fmt.Errorf("%w: unknown vector store backend %q", ErrInvalidConfig, c.VectorStore.Backend)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Type != localfile.SourceType {
			return fmt.Errorf("%w: sources[%d]: unknown type %q", ErrInvalidConfig, i, s.Type)
		}
		if s.Root == "" {
			return fmt.Errorf("%w: sources[%d]: root is required", ErrInvalidConfig, i)
		}
		key := s.Type + ":" + s.Name + ":" + s.Root
		if seen[key] {
			return fmt.Errorf("%w: sources[%d]: duplicate source", ErrInvalidConfig, i)
		}
		seen[key] = true
	}

	if c.Shutdown.ForceExitDelay <= 0 || c.Shutdown.CleanupTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}

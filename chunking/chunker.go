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


package chunking

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/poiesic/docsync/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// ErrInvalidConfig indicates chunker settings that cannot work.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Chunker splits one document into chunk documents.
// Implementations must be safe for concurrent use.
type Chunker interface {
	ChunkDocument(ctx context.Context, doc *core.Document) ([]*core.Document, error)
}

// ChunkerFunc adapts a function to the Chunker interface.
type ChunkerFunc func(ctx context.Context, doc *core.Document) ([]*core.Document, error)

// ChunkDocument calls f.
func (f ChunkerFunc) ChunkDocument(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
	return f(ctx, doc)
}

// Config controls chunk sizes, measured in runes.
type Config struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	// MarkdownAware switches to the markdown splitter for documents whose
	// id or URL ends in .md or .markdown.
	MarkdownAware bool `koanf:"markdown_aware"`
}

// DefaultConfig returns the chunk sizes used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ChunkSize:     1000,
		ChunkOverlap:  100,
		MarkdownAware: true,
	}
}

// Validate checks the sizes.
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk size)", ErrInvalidConfig)
	}
	return nil
}

// TextChunker is the default Chunker.
type TextChunker struct {
	text     textsplitter.TextSplitter
	markdown textsplitter.TextSplitter
}

var _ Chunker = (*TextChunker)(nil)

// New creates a TextChunker.
func New(cfg Config) (*TextChunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &TextChunker{
		text: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		),
	}
	if cfg.MarkdownAware {
		c.markdown = textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithCodeBlocks(true),
		)
	}
	return c, nil
}

// ChunkDocument splits doc. Documents without content yield no chunks.
func (c *TextChunker) ChunkDocument(ctx context.Context, doc *core.Document) ([]*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	splitter := c.text
	if c.markdown != nil && isMarkdown(doc) {
		splitter = c.markdown
	}

	parts, err := splitter.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("splitting %s: %w", doc.ID, err)
	}

	texts := parts[:0]
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			texts = append(texts, part)
		}
	}

	chunks := make([]*core.Document, len(texts))
	for i, text := range texts {
		chunks[i] = core.NewChunk(doc, i, len(texts), text)
	}
	return chunks, nil
}

func isMarkdown(doc *core.Document) bool {
	for _, name := range []string{doc.ID, doc.URL} {
		switch strings.ToLower(path.Ext(name)) {
		case ".md", ".markdown":
			return true
		}
	}
	return false
}

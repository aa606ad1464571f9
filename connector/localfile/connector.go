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


package localfile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/docsync/connector"
	"github.com/poiesic/docsync/core"
)

// SourceType is the source type of every document this connector returns.
const SourceType = "localfile"

const (
	defaultMaxFileSize = 4 << 20
	defaultDebounce    = 400 * time.Millisecond
)

// Config describes one directory source.
type Config struct {
	// Name is the source name. Defaults to the root's base name.
	Name string `koanf:"name"`

	// Root is the directory to index.
	Root string `koanf:"root"`

	// Extensions filters files by extension, with or without the dot.
	// Empty means every file.
	Extensions []string `koanf:"extensions"`

	// MaxFileSize skips larger files. Zero means 4 MiB.
	MaxFileSize int64 `koanf:"max_file_size"`

	// Debounce is how long Watch waits for events to settle.
	Debounce time.Duration `koanf:"debounce"`
}

// Connector reads documents from a local directory.
type Connector struct {
	name       string
	root       string
	baseURL    string
	extensions []string
	maxSize    int64
	debounce   time.Duration
	logger     *slog.Logger
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates cfg and returns a connector rooted at cfg.Root.
func New(cfg Config, opts ...Option) (*Connector, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: root is required", connector.ErrInvalidConfig)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrInvalidConfig, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", connector.ErrInvalidConfig, root)
	}
	if cfg.MaxFileSize < 0 || cfg.Debounce < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", connector.ErrInvalidConfig)
	}

	c := &Connector{
		name:     cfg.Name,
		root:     root,
		baseURL:  "file://" + filepath.ToSlash(root),
		maxSize:  cfg.MaxFileSize,
		debounce: cfg.Debounce,
		logger:   slog.Default(),
	}
	if c.name == "" {
		c.name = filepath.Base(root)
	}
	if c.maxSize == 0 {
		c.maxSize = defaultMaxFileSize
	}
	if c.debounce == 0 {
		c.debounce = defaultDebounce
	}
	for _, ext := range cfg.Extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			c.extensions = append(c.extensions, ext)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "localfile", "source", c.name)
	return c, nil
}

// Source implements connector.Connector.
func (c *Connector) Source() core.SourceRef {
	return core.SourceRef{Type: SourceType, Name: c.name}
}

// Root returns the absolute root directory.
func (c *Connector) Root() string {
	return c.root
}

// GetDocuments walks the root and returns one document per eligible file,
// ordered by path.
func (c *Connector) GetDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != c.root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !c.matchExtension(path) {
			return nil
		}

		doc, ok, err := c.readDocument(path, d)
		if err != nil {
			return err
		}
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", c.root, err)
	}

	c.logger.Debug("listed documents", "count", len(docs))
	return docs, nil
}

func (c *Connector) readDocument(path string, d fs.DirEntry) (*core.Document, bool, error) {
	info, err := d.Info()
	if err != nil {
		// removed between listing and stat
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if info.Size() > c.maxSize {
		c.logger.Warn("skipping large file", "path", path, "size", info.Size(), "limit", c.maxSize)
		return nil, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !utf8.Valid(content) {
		c.logger.Debug("skipping binary file", "path", path)
		return nil, false, nil
	}

	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return nil, false, err
	}
	rel = filepath.ToSlash(rel)
	mtime := info.ModTime().UTC()

	return &core.Document{
		ID:         rel,
		Content:    string(content),
		Source:     c.name,
		SourceType: SourceType,
		CreatedAt:  mtime,
		URL:        c.baseURL + "/" + rel,
		Metadata: core.Metadata{
			BaseURL:   c.baseURL,
			Title:     filepath.Base(path),
			UpdatedAt: mtime,
			Extra: map[string]any{
				"path": rel,
				"size": info.Size(),
			},
		},
	}, true, nil
}

func (c *Connector) matchExtension(path string) bool {
	if len(c.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range c.extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

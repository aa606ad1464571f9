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


package chromem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/poiesic/docsync/vectorstore"
)

var tracer = otel.Tracer("docsync.vectorstore.chromem")

// errNoEmbedder is returned if chromem ever tries to embed on its own.
// Points always arrive with vectors.
var errNoEmbedder = errors.New("chromem collection has no embedding function")

// Config configures the embedded store.
type Config struct {
	// Path is the persistence directory. Empty means in memory.
	Path string `koanf:"path"`

	// Compress gzips persisted documents.
	Compress bool `koanf:"compress"`

	// Collection receives every point. Default: "docsync"
	Collection string `koanf:"collection"`
}

// Store is a vectorstore.Client backed by chromem-go.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens (or creates) the database and its collection.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = "docsync"
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db at %s: %w", cfg.Path, err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", cfg.Collection, err)
	}

	s := &Store{
		db:         db,
		collection: collection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chromem", "collection", cfg.Collection)
	s.logger.Debug("opened vector store", "path", cfg.Path, "count", collection.Count())
	return s, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// UpsertPoints implements vectorstore.Client. Vectors are normalized by
// chromem on insert.
func (s *Store) UpsertPoints(ctx context.Context, points []vectorstore.Point) error {
	ctx, span := tracer.Start(ctx, "chromem.UpsertPoints")
	defer span.End()
	span.SetAttributes(attribute.Int("point_count", len(points)))

	if len(points) == 0 {
		return nil
	}
	if err := vectorstore.ValidatePoints(points); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return vectorstore.ErrClosed
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  stringify(p.Payload.Fields()),
			Embedding: append([]float32(nil), p.Vector...),
			Content:   p.Payload.Content,
		}
	}

	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding %d points: %w", len(points), err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted points", "count", len(points))
	return nil
}

// DeletePointsByDocumentID implements vectorstore.Client.
func (s *Store) DeletePointsByDocumentID(ctx context.Context, scope vectorstore.Scope, ids []string) error {
	ctx, span := tracer.Start(ctx, "chromem.DeletePointsByDocumentID")
	defer span.End()
	span.SetAttributes(
		attribute.String("source", scope.SourceType+":"+scope.Source),
		attribute.Int("document_count", len(ids)),
	)

	if err := scope.Validate(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return vectorstore.ErrClosed
	}

	var failures []string
	for _, id := range ids {
		where := map[string]string{
			vectorstore.FieldSourceType: scope.SourceType,
			vectorstore.FieldSource:     scope.Source,
			vectorstore.FieldDocumentID: id,
		}
		if err := s.collection.Delete(ctx, where, nil); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to delete points", "doc_id", id, "err", err)
			failures = append(failures, id)
		}
	}
	if len(failures) > 0 {
		span.SetStatus(codes.Error, "partial deletion failure")
		return fmt.Errorf("failed to delete points of %d of %d documents: %v", len(failures), len(ids), failures)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Count returns the number of stored points.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Get returns the stored point content and flattened payload for id.
func (s *Store) Get(ctx context.Context, id string) (content string, payload map[string]string, err error) {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return doc.Content, doc.Metadata, nil
}

// Close marks the store closed. Persisted data is already on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// stringify converts payload values to the string map chromem stores.
func stringify(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

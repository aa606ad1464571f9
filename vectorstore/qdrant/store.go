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


package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/poiesic/docsync/vectorstore"
)

var tracer = otel.Tracer("docsync.vectorstore.qdrant")

// pointsAPI is the part of *pb.Client the store uses.
type pointsAPI interface {
	HealthCheck(ctx context.Context) (*pb.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *pb.CreateCollection) error
	Upsert(ctx context.Context, request *pb.UpsertPoints) (*pb.UpdateResult, error)
	Delete(ctx context.Context, request *pb.DeletePoints) (*pb.UpdateResult, error)
	Close() error
}

// Store is a vectorstore.Client backed by Qdrant.
type Store struct {
	api    pointsAPI
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	ready  bool
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

// New connects to Qdrant and checks its health.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	qcfg := &pb.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	client, err := pb.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	s := newStore(client, cfg, opts...)

	hctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	s.logger.Info("connected to qdrant", "host", cfg.Host, "port", cfg.Port, "collection", cfg.Collection)
	return s, nil
}

func newStore(api pointsAPI, cfg Config, opts ...Option) *Store {
	s := &Store{
		api:    api,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "qdrant")
	return s
}

// EnsureCollection creates the collection with the given dimension when it
// does not exist. Later calls are no-ops.
func (s *Store) EnsureCollection(ctx context.Context, dim uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vectorstore.ErrClosed
	}
	if s.ready {
		return nil
	}

	if s.config.VectorSize > 0 {
		dim = s.config.VectorSize
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	var exists bool
	err := s.retryOperation(ctx, func() error {
		var err error
		exists, err = s.api.CollectionExists(ctx, s.config.Collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}

	if !exists {
		if dim == 0 {
			return fmt.Errorf("%w: unknown vector size for collection %s", vectorstore.ErrInvalidConfig, s.config.Collection)
		}
		err = s.retryOperation(ctx, func() error {
			return s.api.CreateCollection(ctx, &pb.CreateCollection{
				CollectionName: s.config.Collection,
				VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
					Size:     dim,
					Distance: pb.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
		}
		s.logger.Info("created collection", "collection", s.config.Collection, "dimension", dim)
	}

	s.ready = true
	return nil
}

// UpsertPoints implements vectorstore.Client.
func (s *Store) UpsertPoints(ctx context.Context, points []vectorstore.Point) error {
	ctx, span := tracer.Start(ctx, "qdrant.UpsertPoints")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("point_count", len(points)),
	)

	if len(points) == 0 {
		return nil
	}
	if err := vectorstore.ValidatePoints(points); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := s.EnsureCollection(ctx, uint64(len(points[0].Vector))); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	structs := make([]*pb.PointStruct, len(points))
	for i := range points {
		structs[i] = toPointStruct(&points[i])
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	err := s.retryOperation(ctx, func() error {
		_, err := s.api.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: s.config.Collection,
			Wait:           pb.PtrOf(true),
			Points:         structs,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted points", "count", len(points))
	return nil
}

// DeletePointsByDocumentID implements vectorstore.Client.
func (s *Store) DeletePointsByDocumentID(ctx context.Context, scope vectorstore.Scope, ids []string) error {
	ctx, span := tracer.Start(ctx, "qdrant.DeletePointsByDocumentID")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.String("source", scope.SourceType+":"+scope.Source),
		attribute.Int("document_count", len(ids)),
	)

	if err := scope.Validate(); err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return vectorstore.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	err := s.retryOperation(ctx, func() error {
		_, err := s.api.Delete(ctx, &pb.DeletePoints{
			CollectionName: s.config.Collection,
			Wait:           pb.PtrOf(true),
			Points: pb.NewPointsSelectorFilter(&pb.Filter{
				Must: []*pb.Condition{
					pb.NewMatchKeyword(vectorstore.FieldSourceType, scope.SourceType),
					pb.NewMatchKeyword(vectorstore.FieldSource, scope.Source),
					pb.NewMatchKeywords(vectorstore.FieldDocumentID, ids...),
				},
			}),
		})
		return err
	})
	if err != nil {
		if status.Code(err) == grpccodes.NotFound {
			// nothing was ever written to the collection
			span.SetStatus(codes.Ok, "collection missing")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points of %d documents: %w", len(ids), err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("deleted points", "documents", len(ids))
	return nil
}

// Close closes the gRPC connection. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.api.Close()
}

// retryOperation retries operation with exponential backoff while it fails
// with a transient error.
func (s *Store) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	backoff := s.config.RetryBackoff
	start := time.Now()

	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				s.logger.Info("operation recovered after retries",
					"attempts", attempt,
					"elapsed", time.Since(start))
			}
			return nil
		}
		lastErr = err

		if !isTransientError(err) {
			return err
		}
		if attempt == s.config.RetryAttempts {
			break
		}

		s.logger.Debug("retrying after transient error",
			"attempt", attempt+1,
			"max_attempts", s.config.RetryAttempts,
			"backoff", backoff,
			"err", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("operation canceled: %w", errors.Join(ctx.Err(), lastErr))
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	s.logger.Warn("operation failed after all retries",
		"attempts", s.config.RetryAttempts+1,
		"elapsed", time.Since(start),
		"err", lastErr)
	return fmt.Errorf("operation failed after %d retries: %w", s.config.RetryAttempts, lastErr)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func toPointStruct(p *vectorstore.Point) *pb.PointStruct {
	fields := p.Payload.Fields()
	payload := make(map[string]*pb.Value, len(fields))
	for k, v := range fields {
		payload[k] = toValue(v)
	}
	return &pb.PointStruct{
		Id:      pb.NewIDUUID(p.ID),
		Vectors: pb.NewVectors(p.Vector...),
		Payload: payload,
	}
}

// toValue converts a payload value, falling back to its string form for
// types Qdrant has no representation for.
func toValue(v any) *pb.Value {
	if val, err := pb.NewValue(v); err == nil {
		return val
	}
	return pb.NewValueString(fmt.Sprintf("%v", v))
}

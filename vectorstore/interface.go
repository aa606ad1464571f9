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


package vectorstore

import (
	"context"
	"fmt"
)

// Client is the subset of vector index operations the sync engine needs.
type Client interface {
	// UpsertPoints inserts or replaces points by id. An empty slice is a no-op.
	UpsertPoints(ctx context.Context, points []Point) error

	// DeletePointsByDocumentID removes every point of scope whose payload
	// document_id is one of ids. Points of other sources are untouched.
	// Unknown ids are ignored.
	DeletePointsByDocumentID(ctx context.Context, scope Scope, ids []string) error

	// Close releases the underlying connection or database.
	Close() error
}

// Scope names the source whose points an operation may touch. Document
// ids are only unique within one source.
type Scope struct {
	SourceType string
	Source     string
}

// Validate checks that both fields are set.
func (s Scope) Validate() error {
	if s.SourceType == "" || s.Source == "" {
		return fmt.Errorf("%w: %q:%q", ErrInvalidScope, s.SourceType, s.Source)
	}
	return nil
}

// Point is one vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Payload is stored alongside the vector.
type Payload struct {
	Content    string
	Metadata   map[string]any
	Source     string
	SourceType string
	DocumentID string
}

// Payload field names.
const (
	FieldContent    = "content"
	FieldSource     = "source"
	FieldSourceType = "source_type"
	FieldDocumentID = "document_id"
)

// Fields flattens the payload into a single map. Metadata keys never shadow
// the reserved fields.
func (p Payload) Fields() map[string]any {
	out := make(map[string]any, len(p.Metadata)+4)
	for k, v := range p.Metadata {
		out[k] = v
	}
	out[FieldContent] = p.Content
	out[FieldSource] = p.Source
	out[FieldSourceType] = p.SourceType
	out[FieldDocumentID] = p.DocumentID
	return out
}

// Validate checks that a point can be stored.
func (p *Point) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPoint)
	}
	if len(p.Vector) == 0 {
		return fmt.Errorf("%w: point %s has no vector", ErrInvalidPoint, p.ID)
	}
	if p.Payload.DocumentID == "" {
		return fmt.Errorf("%w: point %s has no document id", ErrInvalidPoint, p.ID)
	}
	if p.Payload.SourceType == "" || p.Payload.Source == "" {
		return fmt.Errorf("%w: point %s has no source", ErrInvalidPoint, p.ID)
	}
	return nil
}

// ValidatePoints validates every point and checks they share one dimension.
func ValidatePoints(points []Point) error {
	dim := 0
	for i := range points {
		if err := points[i].Validate(); err != nil {
			return err
		}
		if dim == 0 {
			dim = len(points[i].Vector)
			continue
		}
		if len(points[i].Vector) != dim {
			return fmt.Errorf("%w: point %s has dimension %d, want %d",
				ErrDimensionMismatch, points[i].ID, len(points[i].Vector), dim)
		}
	}
	return nil
}

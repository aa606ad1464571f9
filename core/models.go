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


package core

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// chunkNamespace seeds the name-based UUIDs used as chunk identifiers.
var chunkNamespace = uuid.MustParse("6f1c3b0e-8a57-4d4e-9b53-4a3e2d8f7c10")

// SourceRef names a content source. All state is scoped by it.
type SourceRef struct {
	Type string
	Name string
}

// String returns "type:name".
func (r SourceRef) String() string {
	return r.Type + ":" + r.Name
}

// Metadata carries the typed fields the sync engine relies on plus an open
// Extra map for connector-specific values.
type Metadata struct {
	ContentHash      string         `json:"content_hash,omitempty"`
	ParentDocumentID string         `json:"parent_document_id,omitempty"`
	ChunkIndex       int            `json:"chunk_index,omitempty"`
	ChunkCount       int            `json:"chunk_count,omitempty"`
	BaseURL          string         `json:"base_url,omitempty"`
	Title            string         `json:"title,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitzero"`
	Deleted          bool           `json:"deleted,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Map flattens the metadata into a payload map. Extra keys never shadow the
// typed fields.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.ContentHash != "" {
		out["content_hash"] = m.ContentHash
	}
	if m.ParentDocumentID != "" {
		out["parent_document_id"] = m.ParentDocumentID
		out["chunk_index"] = m.ChunkIndex
		out["chunk_count"] = m.ChunkCount
	}
	if m.BaseURL != "" {
		out["base_url"] = m.BaseURL
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	if !m.UpdatedAt.IsZero() {
		out["updated_at"] = m.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if m.Deleted {
		out["deleted"] = true
	}
	return out
}

// Document is a unit of content produced by a connector. Chunks are
// Documents too and carry ParentDocumentID/ChunkIndex in their metadata.
type Document struct {
	ID         string
	Content    string
	Metadata   Metadata
	Source     string
	SourceType string
	CreatedAt  time.Time
	URL        string
}

// Ref returns the source the document belongs to.
func (d *Document) Ref() SourceRef {
	return SourceRef{Type: d.SourceType, Name: d.Source}
}

// IsChunk reports whether the document was produced by splitting another.
func (d *Document) IsChunk() bool {
	return d.Metadata.ParentDocumentID != ""
}

// ParentID returns the id of the logical source document: the parent for a
// chunk, the document itself otherwise.
func (d *Document) ParentID() string {
	if d.IsChunk() {
		return d.Metadata.ParentDocumentID
	}
	return d.ID
}

// LastUpdated is the connector-reported modification time, falling back to
// CreatedAt.
func (d *Document) LastUpdated() time.Time {
	if !d.Metadata.UpdatedAt.IsZero() {
		return d.Metadata.UpdatedAt
	}
	return d.CreatedAt
}

// URI returns the comparison key of the document.
func (d *Document) URI() string {
	return BuildURI(d.SourceType, d.Source, d.Metadata.BaseURL, d.ID)
}

// BuildURI joins the identity fields as source_type:source:base_url:document_id.
// URIs are compared, never parsed, so separators inside fields are harmless.
func BuildURI(sourceType, source, baseURL, documentID string) string {
	var b strings.Builder
	b.Grow(len(sourceType) + len(source) + len(baseURL) + len(documentID) + 3)
	b.WriteString(sourceType)
	b.WriteByte(':')
	b.WriteString(source)
	b.WriteByte(':')
	b.WriteString(baseURL)
	b.WriteByte(':')
	b.WriteString(documentID)
	return b.String()
}

// ContentHash returns the fingerprint of a document. A hash supplied by the
// connector wins; otherwise it is the hex BLAKE2b-256 of the content.
func ContentHash(doc *Document) string {
	if doc.Metadata.ContentHash != "" {
		return doc.Metadata.ContentHash
	}
	return HashContent(doc.Content)
}

// HashContent returns the hex BLAKE2b-256 digest of text.
func HashContent(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkID derives the identifier of the chunk at index of the document
// with parentURI. Document ids repeat across sources, URIs do not. The
// result is a valid UUID so vector stores can use it as a point id.
func ChunkID(parentURI string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(parentURI+"#"+strconv.Itoa(index))).String()
}

// NewChunk builds the index-th of count chunks of parent.
func NewChunk(parent *Document, index, count int, content string) *Document {
	md := parent.Metadata
	md.ParentDocumentID = parent.ID
	md.ChunkIndex = index
	md.ChunkCount = count
	if md.ContentHash == "" {
		md.ContentHash = ContentHash(parent)
	}
	if len(parent.Metadata.Extra) > 0 {
		md.Extra = make(map[string]any, len(parent.Metadata.Extra))
		for k, v := range parent.Metadata.Extra {
			md.Extra[k] = v
		}
	}
	return &Document{
		ID:         ChunkID(parent.URI(), index),
		Content:    content,
		Metadata:   md,
		Source:     parent.Source,
		SourceType: parent.SourceType,
		CreatedAt:  parent.CreatedAt,
		URL:        parent.URL,
	}
}

// StateKey identifies a DocumentState.
type StateKey struct {
	SourceType string
	Source     string
	DocumentID string
}

// Ref returns the source the key belongs to.
func (k StateKey) Ref() SourceRef {
	return SourceRef{Type: k.SourceType, Name: k.Source}
}

// DocumentState is the persisted fingerprint of one logical source document.
// Chunks never get a state of their own.
type DocumentState struct {
	SourceType   string    `json:"source_type"`
	Source       string    `json:"source"`
	DocumentID   string    `json:"document_id"`
	BaseURL      string    `json:"base_url,omitempty"`
	URL          string    `json:"url,omitempty"`
	ContentHash  string    `json:"content_hash"`
	LastUpdated  time.Time `json:"last_updated"`
	LastIngested time.Time `json:"last_ingested,omitzero"`
	IsDeleted    bool      `json:"is_deleted"`
	Version      int64     `json:"version"`
}

// Key returns the identity of the state.
func (s *DocumentState) Key() StateKey {
	return StateKey{SourceType: s.SourceType, Source: s.Source, DocumentID: s.DocumentID}
}

// URI returns the comparison key of the state.
func (s *DocumentState) URI() string {
	return BuildURI(s.SourceType, s.Source, s.BaseURL, s.DocumentID)
}

// StateFromDocument computes the state a document would be stored with.
// LastIngested and Version are left for the store to fill.
func StateFromDocument(doc *Document) *DocumentState {
	return &DocumentState{
		SourceType:  doc.SourceType,
		Source:      doc.Source,
		DocumentID:  doc.ID,
		BaseURL:     doc.Metadata.BaseURL,
		URL:         doc.URL,
		ContentHash: ContentHash(doc),
		LastUpdated: doc.LastUpdated(),
	}
}

// DeletedDocument builds the synthetic document reported for a state whose
// URI disappeared from a fetch.
func DeletedDocument(state *DocumentState) *Document {
	return &Document{
		ID:         state.DocumentID,
		Source:     state.Source,
		SourceType: state.SourceType,
		URL:        state.URL,
		CreatedAt:  state.LastUpdated,
		Metadata: Metadata{
			BaseURL:     state.BaseURL,
			ContentHash: state.ContentHash,
			UpdatedAt:   state.LastUpdated,
			Deleted:     true,
		},
	}
}

// IngestionStatus is the outcome of one sync run.
type IngestionStatus string

const (
	IngestionSuccess IngestionStatus = "success"
	IngestionPartial IngestionStatus = "partial"
	IngestionFailed  IngestionStatus = "failed"
)

// IngestionHistory records the last run against a source. Last write wins.
type IngestionHistory struct {
	SourceType              string          `json:"source_type"`
	Source                  string          `json:"source"`
	LastSuccessfulIngestion time.Time       `json:"last_successful_ingestion,omitzero"`
	Status                  IngestionStatus `json:"status"`
	DocumentCount           int             `json:"document_count"`
	ErrorMessage            string          `json:"error_message,omitempty"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

// Ref returns the source the history belongs to.
func (h *IngestionHistory) Ref() SourceRef {
	return SourceRef{Type: h.SourceType, Name: h.Source}
}

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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidState indicates a DocumentState failed validation.
	ErrInvalidState = errors.New("invalid document state")

	// ErrInvalidHistory indicates an IngestionHistory failed validation.
	ErrInvalidHistory = errors.New("invalid ingestion history")

	// ErrEmptyDocumentID indicates the document ID is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrEmptySource indicates the source name is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrEmptySourceType indicates the source type is empty.
	ErrEmptySourceType = errors.New("source type cannot be empty")

	// ErrEmptyContentHash indicates a state has no content hash.
	ErrEmptyContentHash = errors.New("content hash cannot be empty")

	// ErrInvalidStatus indicates an unknown IngestionStatus value.
	ErrInvalidStatus = errors.New("invalid ingestion status")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")
)

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
	"fmt"
	"time"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Source and SourceType must not be empty
//
// NOT validated:
//   - Content (empty documents are legal and still tracked)
//   - CreatedAt (connectors may not know it)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}
	if err := validateRef(doc.SourceType, doc.Source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// ValidateDocumentState validates a DocumentState before it is persisted.
func ValidateDocumentState(state *DocumentState) error {
	if state == nil {
		return fmt.Errorf("%w: state is nil", ErrInvalidState)
	}
	if state.DocumentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidState, ErrEmptyDocumentID)
	}
	if err := validateRef(state.SourceType, state.Source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if state.ContentHash == "" {
		return fmt.Errorf("%w: %w", ErrInvalidState, ErrEmptyContentHash)
	}
	return nil
}

// ValidateIngestionHistory validates an IngestionHistory before it is persisted.
func ValidateIngestionHistory(history *IngestionHistory) error {
	if history == nil {
		return fmt.Errorf("%w: history is nil", ErrInvalidHistory)
	}
	if err := validateRef(history.SourceType, history.Source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHistory, err)
	}
	switch history.Status {
	case IngestionSuccess, IngestionPartial, IngestionFailed:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidHistory, ErrInvalidStatus, history.Status)
	}
	if !IsValidTimestamp(history.LastSuccessfulIngestion) {
		return fmt.Errorf("%w: %w", ErrInvalidHistory, ErrInvalidTimestamp)
	}
	return nil
}

// ValidateSourceRef checks that both parts of a source reference are set.
func ValidateSourceRef(ref SourceRef) error {
	return validateRef(ref.Type, ref.Name)
}

func validateRef(sourceType, source string) error {
	if sourceType == "" {
		return ErrEmptySourceType
	}
	if source == "" {
		return ErrEmptySource
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}

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


package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/docsync/core"
)

// MarshalDocumentState serializes a DocumentState to bytes.
func MarshalDocumentState(state *core.DocumentState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalDocumentState deserializes a DocumentState from bytes.
func UnmarshalDocumentState(data []byte) (*core.DocumentState, error) {
	var state core.DocumentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &state, nil
}

// MarshalIngestionHistory serializes an IngestionHistory to bytes.
func MarshalIngestionHistory(history *core.IngestionHistory) ([]byte, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalIngestionHistory deserializes an IngestionHistory from bytes.
func UnmarshalIngestionHistory(data []byte) (*core.IngestionHistory, error) {
	var history core.IngestionHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &history, nil
}

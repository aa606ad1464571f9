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
	"testing"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentState_ZeroLastIngestedSurvives(t *testing.T) {
	state := &core.DocumentState{
		SourceType:  "localfile",
		Source:      "docs",
		DocumentID:  "a",
		ContentHash: "h",
		LastUpdated: time.Date(2025, 5, 1, 8, 30, 0, 123000, time.UTC),
		Version:     3,
	}

	data, err := MarshalDocumentState(state)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_ingested")

	decoded, err := UnmarshalDocumentState(data)
	require.NoError(t, err)
	assert.True(t, decoded.LastIngested.IsZero())
	assert.True(t, state.LastUpdated.Equal(decoded.LastUpdated))
	assert.Equal(t, int64(3), decoded.Version)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := UnmarshalDocumentState([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalIngestionHistory([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestListOptions_Matches(t *testing.T) {
	base := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	live := &core.DocumentState{LastUpdated: base}
	gone := &core.DocumentState{LastUpdated: base, IsDeleted: true}

	assert.True(t, ListOptions{}.Matches(live))
	assert.False(t, ListOptions{}.Matches(gone))
	assert.True(t, ListOptions{IncludeDeleted: true}.Matches(gone))

	since := base
	assert.True(t, ListOptions{Since: &since}.Matches(live), "since is inclusive")

	later := base.Add(time.Second)
	assert.False(t, ListOptions{Since: &later}.Matches(live))
}

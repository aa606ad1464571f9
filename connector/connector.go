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


package connector

import (
	"context"

	"github.com/poiesic/docsync/core"
)

// Connector fetches the documents of a single source.
type Connector interface {
	// Source identifies the source. Every returned document carries the
	// same SourceType and Source.
	Source() core.SourceRef

	// GetDocuments returns every document currently in the source.
	GetDocuments(ctx context.Context) ([]*core.Document, error)
}

// Watcher is implemented by connectors that can report changes as they
// happen. Watch blocks until ctx is done, calling onChange after each
// burst of changes settles.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

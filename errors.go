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


package docsync

import "errors"

var (
	// ErrConnectorFetch indicates a connector could not list its documents.
	// Only the affected source is aborted.
	ErrConnectorFetch = errors.New("connector fetch failed")

	// ErrWatchUnsupported indicates a connector cannot watch its source.
	ErrWatchUnsupported = errors.New("connector does not support watching")

	// ErrUnknownBackend indicates a configured backend has no implementation.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrPipelineRequired indicates NewEngine was called without a pipeline.
	ErrPipelineRequired = errors.New("ingestion pipeline is required")

	// ErrEngineClosed indicates the engine was used after Close.
	ErrEngineClosed = errors.New("engine is closed")
)

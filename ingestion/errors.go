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


package ingestion

import "errors"

var (
	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrVectorStoreRequired is returned when a vector store client is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrInvalidConfig is returned for unusable pipeline settings.
	ErrInvalidConfig = errors.New("invalid pipeline config")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be positive")

	// ErrChunking marks a document that could not be split.
	ErrChunking = errors.New("chunking failed")

	// ErrEmbedding marks chunks whose embedding batch failed.
	ErrEmbedding = errors.New("embedding failed")

	// ErrEmbeddingTimeout marks chunks whose embedding batch timed out.
	ErrEmbeddingTimeout = errors.New("embedding timed out")

	// ErrUpsert marks chunks whose upsert batch failed.
	ErrUpsert = errors.New("upsert failed")

	// ErrShutdown is returned by Run when it was cancelled before finishing.
	ErrShutdown = errors.New("pipeline shut down")
)

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


// Package ingestion runs documents through the chunk, embed and upsert
// stages that put their content into a vector index.
//
// The stages are connected by bounded channels:
//
//	documents -> [chunk tasks on an ants pool] -> chunkQueue
//	          -> [EmbedWorkers batching embedders] -> embedQueue
//	          -> [UpsertWorkers batching upserters] -> vector store
//
// A full channel blocks its producer; that is the only flow control between
// stages. Each stage closes the channel it feeds once all of its producers
// are done, so consumers drain and exit without sentinels.
//
// Failures are isolated: a document that cannot be chunked, or a batch that
// cannot be embedded or upserted, is recorded in the Result and the run
// continues. Partial success is a normal outcome.
//
// Cancellation is cooperative. Every stage loop selects on the run context,
// which is cancelled by the caller's context or by the lifecycle.Manager.
// After cancellation Run waits at most ShutdownGrace for workers before
// abandoning them.
package ingestion

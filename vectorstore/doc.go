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


// Package vectorstore defines the contract between the ingestion pipeline
// and a vector index.
//
// A Point is one embedded chunk. Its Payload always carries the source and
// the id of the logical document the chunk came from, which is what
// deletions key on: DeletePointsByDocumentID removes every chunk of a
// document of one source at once.
//
// Two implementations are provided:
//   - vectorstore/qdrant talks to a Qdrant server over gRPC
//   - vectorstore/chromem embeds chromem-go, in memory or persisted to disk
package vectorstore

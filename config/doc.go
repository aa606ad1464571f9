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


// Package config loads the docsync configuration.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables prefixed with DOCSYNC_
//  2. The YAML file given to Load
//  3. Defaults
//
// Environment variables map to keys by splitting on the first underscore
// after the prefix, so DOCSYNC_PIPELINE_EMBED_WORKERS sets
// pipeline.embed_workers. The vector store backends are one level deeper:
// DOCSYNC_VECTORSTORE_QDRANT_HOST sets vectorstore.qdrant.host. Sources can
// only be configured in the file.
//
// Example file:
//
//	state:
//	  backend: badger
//	  path: /var/lib/docsync/state
//	pipeline:
//	  embed_workers: 4
//	  embedding_batch_size: 64
//	embedding:
//	  provider: openai
//	  host: http://localhost:11434
//	  model: embeddinggemma
//	vectorstore:
//	  backend: qdrant
//	  qdrant:
//	    host: qdrant.internal
//	sources:
//	  - type: localfile
//	    name: handbook
//	    root: /srv/handbook
//	    extensions: [md, txt]
package config

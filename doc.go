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


// Package docsync keeps a vector store in sync with content sources.
//
// An Engine runs one sync per source: fetch the current listing from a
// connector, classify it against stored state, push new and updated
// documents through the ingestion pipeline, record state for every
// document that was fully ingested and propagate deletions. Documents that
// fail anywhere keep their old state and are picked up again by the next
// run.
//
// Open builds an Engine and its collaborators from a config.Config:
//
//	cfg, err := config.Load("docsync.yaml")
//	engine, err := docsync.Open(ctx, cfg)
//	defer engine.Close()
//	connectors, err := docsync.Connectors(cfg)
//	reports, err := engine.SyncAll(ctx, connectors)
package docsync

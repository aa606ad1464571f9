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


// Package detect classifies a fetch of documents against persisted state.
//
// A Detector compares what a connector returned with the DocumentStates
// stored for the same source and reports three sets:
//
//   - New: the URI was never seen (or only seen as deleted)
//   - Updated: the content hash changed, or the reported modification time
//     is strictly newer than the stored one
//   - Deleted: a stored URI is missing from the fetch
//
// Unchanged documents are dropped. Detection never writes state; callers
// persist states once documents have actually been ingested, so a failed
// ingestion is retried on the next run.
//
// Detectors have an explicit lifecycle:
//
//	err := detect.Run(ctx, store, func(d *detect.Detector) error {
//	    changes, err := d.DetectChanges(ctx, source, docs, nil)
//	    ...
//	})
package detect

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


package badger

import (
	"github.com/poiesic/docsync/core"
)

// Key prefixes for different data types
const (
	documentStatePrefix    = "docst"
	ingestionHistoryPrefix = "ingst"
	schemaVersionKey       = "meta:schema"
	schemaVersion          = "1"
)

// keySep separates variable-length key components. Source names and
// document ids are free text, so a byte that never appears in them keeps
// prefix scans exact.
const keySep = 0x00

// makeSourcePrefix generates the prefix shared by every record of a source.
// Format: prefix:type\x00name\x00
func makeSourcePrefix(prefix string, ref core.SourceRef) []byte {
	buf := make([]byte, 0, len(prefix)+len(ref.Type)+len(ref.Name)+3)
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	buf = append(buf, ref.Type...)
	buf = append(buf, keySep)
	buf = append(buf, ref.Name...)
	buf = append(buf, keySep)
	return buf
}

// makeDocumentStateKey generates the key of one document state.
// Format: docst:type\x00name\x00documentID
func makeDocumentStateKey(key core.StateKey) []byte {
	prefix := makeSourcePrefix(documentStatePrefix, key.Ref())
	return append(prefix, key.DocumentID...)
}

// makeIngestionHistoryKey generates the key of a source's ingestion history.
func makeIngestionHistoryKey(ref core.SourceRef) []byte {
	return makeSourcePrefix(ingestionHistoryPrefix, ref)
}

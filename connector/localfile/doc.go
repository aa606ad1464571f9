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


// Package localfile implements a connector over a directory tree.
//
// Each regular file below the root whose extension matches the filter
// becomes one Document. Its ID is the slash-separated path relative to the
// root, its UpdatedAt the file's modification time. Hidden files and
// directories are skipped, as are files that are too large or not valid
// UTF-8.
//
// Watch uses fsnotify to follow the tree and reports a change once events
// have been quiet for the debounce interval.
package localfile

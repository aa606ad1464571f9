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


// Package lifecycle tracks the goroutines of a process and drives its
// shutdown.
//
// A Manager owns a root context. Tasks started with Go run under children of
// that context and are tracked until they return. Executors such as ants
// pools can be handed to the Manager and are released during Cleanup.
//
// HandleSignals installs the two-stage interrupt behaviour used by the CLI:
// the first signal cancels everything and arms a forced exit after
// ForceExitDelay; a second signal of the same kind makes one bounded cleanup
// attempt and then exits immediately. One Manager per process handles
// signals at a time.
package lifecycle

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

import (
	"context"
	"time"
)

// batchLoop collects items from in into batches of up to size and hands
// each batch to flush. A partial batch is flushed once idle passes without
// new input, and when in is closed. The loop ends when in is closed, when
// ctx is done (the pending batch is dropped), or when flush returns false.
func batchLoop[T any](ctx context.Context, in <-chan T, size int, idle time.Duration, flush func([]T) bool) {
	batch := make([]T, 0, size)
	timer := time.NewTimer(idle)
	timer.Stop()
	defer timer.Stop()

	emit := func() bool {
		if len(batch) == 0 {
			return true
		}
		out := batch
		batch = make([]T, 0, size)
		return flush(out)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				emit()
				return
			}
			batch = append(batch, item)
			if len(batch) >= size {
				timer.Stop()
				if !emit() {
					return
				}
				continue
			}
			timer.Reset(idle)
		case <-timer.C:
			if !emit() {
				return
			}
		}
	}
}

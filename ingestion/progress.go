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
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints a one-line running tally of processed chunks.
// Chunk counts are only known once each document has been split, so the
// total grows during a run.
type ProgressTracker struct {
	mu sync.Mutex

	writer   io.Writer
	every    int
	total    int
	upserted int
	failed   int
	printed  int
	started  time.Time
	running  bool
}

// NewProgressTracker returns a tracker that prints to writer each time
// another every chunks have been processed. total may be zero.
func NewProgressTracker(writer io.Writer, total, every int) *ProgressTracker {
	return &ProgressTracker{
		writer: writer,
		total:  total,
		every:  max(every, 1),
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = time.Now()
	p.running = true
	p.upserted, p.failed, p.printed = 0, 0, 0
}

// AddTotal raises the expected total by n.
func (p *ProgressTracker) AddTotal(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += n
}

// Upserted records n chunks written to the vector store.
func (p *ProgressTracker) Upserted(n int) {
	p.add(n, 0)
}

// Failed records n chunks given up on.
func (p *ProgressTracker) Failed(n int) {
	p.add(0, n)
}

func (p *ProgressTracker) add(upserted, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.upserted += upserted
	p.failed += failed
	if p.done()-p.printed >= p.every {
		p.print()
		p.printed = p.done()
	}
}

// Finish prints the final line. A cancelled run finishes below its total.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.print()
	fmt.Fprintln(p.writer)
	p.running = false
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

func (p *ProgressTracker) done() int {
	return min(p.upserted+p.failed, p.total)
}

// print must be called with mu held.
func (p *ProgressTracker) print() {
	done := p.done()
	pct := 0.0
	if p.total > 0 {
		pct = float64(done) / float64(p.total) * 100
	}
	rate := float64(done) / time.Since(p.started).Seconds()

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%)", done, p.total, pct)
	if p.failed > 0 {
		fmt.Fprintf(p.writer, ", %d failed", p.failed)
	}
	fmt.Fprintf(p.writer, " - %.1f chunks/s", rate)
}

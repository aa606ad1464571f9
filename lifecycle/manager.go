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


package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Executor is a worker pool the Manager releases on cleanup.
// *ants.Pool satisfies it.
type Executor interface {
	// Release stops the executor without waiting for running work.
	Release()
	// ReleaseTimeout stops the executor and waits for running work.
	ReleaseTimeout(timeout time.Duration) error
}

// Task is a tracked goroutine.
type Task struct {
	name    string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Name returns the name the task was started with.
func (t *Task) Name() string { return t.name }

// Started returns when the task was started.
func (t *Task) Started() time.Time { return t.started }

// Cancel cancels the task's context.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the task has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's error once Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Manager tracks tasks and owns shutdown.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	tasks     map[*Task]struct{}
	executors []Executor
	cleaned   bool

	shuttingDown atomic.Bool
	cleanupOnce  sync.Once
	signalOnce   sync.Once
	exitOnce     sync.Once
	stopSignals  chan struct{}
	exitTimer    *time.Timer

	forceExitDelay time.Duration
	cleanupTimeout time.Duration
	exit           func(code int)
	logger         *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithForceExitDelay sets how long after the first signal the process is
// forced to exit. Default: 10s
func WithForceExitDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.forceExitDelay = d
	}
}

// WithCleanupTimeout bounds how long Cleanup waits for tasks. Default: 5s
func WithCleanupTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.cleanupTimeout = d
	}
}

// WithExitFunc replaces os.Exit for forced exits.
func WithExitFunc(exit func(code int)) Option {
	return func(m *Manager) {
		m.exit = exit
	}
}

// WithParent derives the root context from parent instead of Background.
func WithParent(parent context.Context) Option {
	return func(m *Manager) {
		m.ctx, m.cancel = context.WithCancel(parent)
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:            ctx,
		cancel:         cancel,
		tasks:          make(map[*Task]struct{}),
		stopSignals:    make(chan struct{}),
		forceExitDelay: 10 * time.Second,
		cleanupTimeout: 5 * time.Second,
		exit:           os.Exit,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "lifecycle")
	return m
}

// Context is cancelled when shutdown starts.
func (m *Manager) Context() context.Context { return m.ctx }

// Done is closed when shutdown starts.
func (m *Manager) Done() <-chan struct{} { return m.ctx.Done() }

// ShuttingDown reports whether shutdown has started.
func (m *Manager) ShuttingDown() bool { return m.shuttingDown.Load() }

// Go runs fn in a tracked goroutine. Once shutdown has started fn still
// runs, with an already cancelled context, so callers' bookkeeping holds.
func (m *Manager) Go(name string, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(m.ctx)
	t := &Task{
		name:    name,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	m.tasks[t] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.tasks, t)
			m.mu.Unlock()
			close(t.done)
		}()
		t.err = fn(ctx)
		if t.err != nil && !errors.Is(t.err, context.Canceled) {
			m.logger.Error("task failed", "task", name, "err", t.err)
		}
	}()
	return t
}

// Tasks returns the tasks still running, oldest first.
func (m *Manager) Tasks() []*Task {
	m.mu.Lock()
	out := make([]*Task, 0, len(m.tasks))
	for t := range m.tasks {
		out = append(out, t)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b *Task) int {
		if c := a.started.Compare(b.started); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	return out
}

// CancelAll cancels every running task. The Manager itself stays usable.
func (m *Manager) CancelAll() {
	for _, t := range m.Tasks() {
		t.Cancel()
	}
}

// Wait blocks until every task has returned or timeout passes. It reports
// whether all tasks returned.
func (m *Manager) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		tasks := m.Tasks()
		if len(tasks) == 0 {
			return true
		}
		for _, t := range tasks {
			select {
			case <-t.done:
			case <-timer.C:
				return false
			}
		}
	}
}

// OwnExecutor hands e to the Manager for release during Cleanup. If cleanup
// already ran, e is released immediately.
func (m *Manager) OwnExecutor(e Executor) {
	m.mu.Lock()
	if !m.cleaned {
		m.executors = append(m.executors, e)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	e.Release()
}

// Shutdown sets the shutdown flag and cancels every task. It does not wait.
func (m *Manager) Shutdown() {
	if m.shuttingDown.CompareAndSwap(false, true) {
		m.logger.Info("shutting down")
	}
	m.cancel()
}

// Cleanup shuts down, waits up to the cleanup timeout for tasks and releases
// the executors. Only the first call does anything.
func (m *Manager) Cleanup() {
	m.cleanupOnce.Do(func() {
		m.Shutdown()

		clean := m.Wait(m.cleanupTimeout)
		if !clean {
			names := make([]string, 0)
			for _, t := range m.Tasks() {
				names = append(names, t.Name())
			}
			m.logger.Warn("abandoning tasks that did not stop in time",
				"timeout", m.cleanupTimeout, "tasks", names)
		}

		m.mu.Lock()
		executors := m.executors
		m.executors = nil
		m.cleaned = true
		m.mu.Unlock()

		for _, e := range executors {
			if !clean {
				e.Release()
				continue
			}
			if err := e.ReleaseTimeout(m.cleanupTimeout); err != nil {
				m.logger.Warn("executor did not release in time", "err", err)
			}
		}
		m.logger.Debug("cleanup complete", "clean", clean)
	})
}

// signalOwner is the Manager currently handling process signals.
var signalOwner atomic.Pointer[Manager]

// HandleSignals starts watching sigs (default SIGINT and SIGTERM). Only the
// first call has any effect, and only one Manager per process handles
// signals at a time; the others log and keep running without them.
func (m *Manager) HandleSignals(sigs ...os.Signal) {
	m.signalOnce.Do(func() {
		if !signalOwner.CompareAndSwap(nil, m) {
			m.logger.Warn("signals are already handled by another manager")
			return
		}
		if len(sigs) == 0 {
			sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
		}
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, sigs...)
		go func() {
			m.watch(ch)
			signal.Stop(ch)
			signalOwner.CompareAndSwap(m, nil)
		}()
	})
}

// StopSignals stops signal handling and disarms a pending forced exit.
func (m *Manager) StopSignals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.stopSignals:
	default:
		close(m.stopSignals)
	}
	if m.exitTimer != nil {
		m.exitTimer.Stop()
	}
	signalOwner.CompareAndSwap(m, nil)
}

func (m *Manager) watch(ch <-chan os.Signal) {
	var first os.Signal
	select {
	case first = <-ch:
	case <-m.stopSignals:
		return
	}

	m.logger.Warn("received signal, shutting down", "signal", first.String(), "force_exit_after", m.forceExitDelay)
	m.Shutdown()

	m.mu.Lock()
	select {
	case <-m.stopSignals:
		m.mu.Unlock()
		return
	default:
	}
	m.exitTimer = time.AfterFunc(m.forceExitDelay, func() {
		m.logger.Error("shutdown took too long, forcing exit")
		m.forceExit(1)
	})
	m.mu.Unlock()

	// Only a repeat of the first signal escalates.
	for {
		select {
		case sig := <-ch:
			if sig != first {
				m.logger.Warn("ignoring signal during shutdown", "signal", sig.String(), "first", first.String())
				continue
			}
			m.logger.Error("received second signal, forcing exit", "signal", sig.String())
			done := make(chan struct{})
			go func() {
				m.Cleanup()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(m.cleanupTimeout):
			}
			m.forceExit(1)
			return
		case <-m.stopSignals:
			return
		}
	}
}

func (m *Manager) forceExit(code int) {
	m.exitOnce.Do(func() {
		m.exit(code)
	})
}

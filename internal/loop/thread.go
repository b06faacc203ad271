// File: internal/loop/thread.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The worker thread driving one loop. State machine:
// Created -> Running -> ShuttingDown -> Stopped. The done channel lets the
// scheduler wait for Stopped against a single deadline instead of
// busy-polling.

package loop

import (
	"runtime"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/evsched/affinity"
)

// ThreadState is the lifecycle position of a loop thread.
type ThreadState int32

const (
	ThreadCreated ThreadState = iota
	ThreadRunning
	ThreadShuttingDown
	ThreadStopped
)

// String returns the state name.
func (s ThreadState) String() string {
	switch s {
	case ThreadCreated:
		return "created"
	case ThreadRunning:
		return "running"
	case ThreadShuttingDown:
		return "shutting-down"
	case ThreadStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Thread binds one loop 1:1 to a locked OS thread for the loop's whole
// life. No work stealing, no migration.
type Thread struct {
	loop   *Loop
	log    zerolog.Logger
	state  atomic.Int32
	done   chan struct{}
	pinCPU int
}

// NewThread wraps loop. pinCPU < 0 disables CPU pinning.
func NewThread(l *Loop, pinCPU int, log zerolog.Logger) *Thread {
	return &Thread{
		loop:   l,
		log:    log.With().Int("loop", l.Index()).Logger(),
		done:   make(chan struct{}),
		pinCPU: pinCPU,
	}
}

// Start launches the worker. Called exactly once, at scheduler
// construction.
func (t *Thread) Start() {
	go t.run()
}

func (t *Thread) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if t.pinCPU >= 0 {
		if err := affinity.Pin(t.pinCPU); err != nil {
			t.log.Warn().Err(err).Int("cpu", t.pinCPU).Msg("cpu pinning unavailable")
		}
	}

	t.state.CompareAndSwap(int32(ThreadCreated), int32(ThreadRunning))
	t.loop.Run()
	t.state.Store(int32(ThreadStopped))
	close(t.done)
}

// BeginShutdown requests a graceful stop: the thread leaves Running but
// the loop keeps draining until Stop forces it out of its wait.
func (t *Thread) BeginShutdown() {
	t.state.CompareAndSwap(int32(ThreadRunning), int32(ThreadShuttingDown))
	t.state.CompareAndSwap(int32(ThreadCreated), int32(ThreadShuttingDown))
	t.loop.Wakeup()
}

// Stop forces the loop out of its wait cycle.
func (t *Thread) Stop() {
	t.loop.Stop()
}

// Done is closed once the thread reports Stopped.
func (t *Thread) Done() <-chan struct{} { return t.done }

// State returns the current lifecycle position.
func (t *Thread) State() ThreadState {
	return ThreadState(t.state.Load())
}

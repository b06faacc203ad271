// File: api/task.go
// Package api defines the Task capability interface consumed by evsched.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Task is the consumer-owned object that receives dispatched events. The
// scheduler holds a non-owning reference and never manages a task's
// lifetime; it calls no methods beyond the two below.
//
// IsActive is consulted immediately before every delivery. A task torn
// down by its owner while watchers for it are still installed is expected:
// the event is then silently discarded. Because dispatch runs on the
// owning loop's thread, at most one delivery attempt may race a concurrent
// Uninstall; IsActive is the guard for exactly that window.
type Task interface {
	// IsActive reports whether the task still accepts events.
	IsActive() bool

	// HandleEvent processes one dispatched event. It runs on the owning
	// loop's thread and must not block.
	HandleEvent(h Handle, kind EventKind)
}

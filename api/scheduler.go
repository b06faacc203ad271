// Package api
// Author: momentics <momentics@gmail.com>
//
// Scheduler contract: a fixed pool of event loops, each driven by its own
// OS thread, addressed purely by integer index 0..N-1.

package api

import (
	"os"
	"time"
)

// Scheduler is the registration and lifecycle surface of the event
// scheduler. All install operations may be called from any thread; they
// synchronize with the target loop and wake it so the new watcher is
// noticed promptly. Passing an out-of-range loop index to any operation is
// a programmer error and panics; passing a stale or zero Handle is always
// a safe no-op.
type Scheduler interface {
	GracefulShutdown

	// InstallAsync creates and starts a pure cross-thread wakeup watcher.
	InstallAsync(loop int, task Task) (Handle, error)

	// SendAsync wakes the owning loop once; the bound task receives one
	// EventAsync if it is still active. No-op for zero/stale handles.
	SendAsync(h Handle)

	// InstallSocket registers readiness interest for fd. kind selects
	// EventSocketRead, EventSocketWrite or the combined value; delivery
	// reports exactly the interests that actually fired.
	InstallSocket(loop int, kind EventKind, task Task, fd int) (Handle, error)

	// StartSocket enables a stopped socket watcher. Idempotent.
	StartSocket(h Handle)

	// StopSocket disables a socket watcher without destroying it.
	// Idempotent.
	StopSocket(h Handle)

	// ModifySocket replaces the readiness interest of a socket watcher in
	// place. A stopped watcher records the interest and applies it on
	// StartSocket. No-op for zero/stale handles and non-socket kinds.
	ModifySocket(h Handle, kind EventKind)

	// InstallPeriodic schedules the first firing after offset, then every
	// interval until uninstalled.
	InstallPeriodic(loop int, task Task, offset, interval time.Duration) (Handle, error)

	// RearmPeriodic replaces the schedule of an existing periodic watcher
	// and forces an immediate re-evaluation of its next deadline.
	RearmPeriodic(h Handle, offset, interval time.Duration)

	// InstallSignal delivers one EventSignal to the bound task each time
	// the process receives sig. Multiple loops may register the same
	// signal independently; every live watcher sees each occurrence,
	// though bursts may coalesce.
	InstallSignal(loop int, task Task, sig os.Signal) (Handle, error)

	// InstallTimer fires exactly once after timeout unless cleared first.
	InstallTimer(loop int, task Task, timeout time.Duration) (Handle, error)

	// ClearTimer cancels a pending one-shot timer; no-op if already fired
	// or cleared.
	ClearTimer(h Handle)

	// RearmTimer resets a timer, fired or not, to fire after timeout.
	RearmTimer(h Handle, timeout time.Duration)

	// Uninstall stops and permanently releases a watcher of any kind. The
	// handle is dead the moment Uninstall returns; a delivery already in
	// flight on the owning thread may still complete, guarded by the
	// task-liveness check.
	Uninstall(h Handle)

	// Wakeup forces the given loop out of its blocking wait at least once.
	Wakeup(loop int)

	// Stats snapshots per-loop dispatch counters and scheduler uptime.
	Stats() map[string]any
}

// GracefulShutdown unifies ordered teardown across components.
type GracefulShutdown interface {
	// Shutdown stops every loop thread, waits a bounded time for them to
	// report stopped, then destroys loops and frees watchers. It never
	// blocks indefinitely and is idempotent; teardown errors are
	// aggregated for logging only.
	Shutdown() error
}

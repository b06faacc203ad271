// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral demultiplexer interface and backend selection.

package reactor

import (
	"fmt"
	"time"

	"github.com/momentics/evsched/api"
)

// Backend selects the concrete polling mechanism. The choice is made once
// at construction; BackendAuto picks the platform default.
type Backend int

const (
	BackendAuto Backend = iota
	BackendEpoll
	BackendKqueue
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendEpoll:
		return "epoll"
	case BackendKqueue:
		return "kqueue"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Event describes one readiness notification returned by Wait. A
// descriptor ready for both reading and writing within one wait cycle is
// reported as a single Event with both flags set.
type Event struct {
	FD       int
	Readable bool
	Writable bool
}

// Demultiplexer is one polling context. Add/Mod/Del and Wakeup are safe to
// call from any thread while another thread blocks in Wait; Wait itself is
// driven by exactly one thread for the demultiplexer's whole life.
type Demultiplexer interface {
	// Add registers readiness interest for fd.
	Add(fd int, read, write bool) error

	// Mod replaces the registered interest for fd.
	Mod(fd int, read, write bool) error

	// Del removes fd from the interest set.
	Del(fd int) error

	// Wait blocks until readiness, wakeup or timeout, filling events and
	// returning the count. A negative timeout blocks indefinitely; waker
	// firings are drained internally and never surfaced. An interrupted
	// wait returns (0, nil).
	Wait(events []Event, timeout time.Duration) (int, error)

	// Wakeup forces a blocked Wait to return at least once. Callable from
	// any thread.
	Wakeup() error

	// Close releases the polling context. Only safe once the driving
	// thread has stopped.
	Close() error
}

// AvailableBackends reports the polling mechanisms this platform supports.
func AvailableBackends() []Backend {
	return platformBackends()
}

// DefaultBackend returns the platform's preferred mechanism.
func DefaultBackend() Backend {
	bs := platformBackends()
	if len(bs) == 0 {
		return BackendAuto
	}
	return bs[0]
}

// New constructs a demultiplexer for the requested backend. Requesting a
// mechanism the platform does not support fails with
// api.ErrBackendUnavailable.
func New(b Backend) (Demultiplexer, error) {
	if b == BackendAuto {
		b = DefaultBackend()
	}
	for _, s := range platformBackends() {
		if s == b {
			return platformNew(b)
		}
	}
	return nil, fmt.Errorf("reactor: %s: %w", b, api.ErrBackendUnavailable)
}

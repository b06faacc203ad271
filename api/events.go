// File: api/events.go
// Package api defines event kinds and watcher handles for evsched.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "strings"

// EventKind is a bitmask describing the category of a dispatched event.
// EventSocketRead|EventSocketWrite is a valid combined value: a descriptor
// that becomes readable and writable within one wait cycle is delivered as
// a single combined event, never as two.
type EventKind uint32

const (
	// EventAsync is a pure cross-thread wakeup event.
	EventAsync EventKind = 1 << iota
	// EventSocketRead indicates read readiness on a watched descriptor.
	EventSocketRead
	// EventSocketWrite indicates write readiness on a watched descriptor.
	EventSocketWrite
	// EventPeriodic indicates a periodic schedule firing.
	EventPeriodic
	// EventSignal indicates delivery of a watched OS signal.
	EventSignal
	// EventTimer indicates a one-shot timer expiry.
	EventTimer
)

// EventSocketReadWrite is the combined readiness value.
const EventSocketReadWrite = EventSocketRead | EventSocketWrite

// String returns a human-readable form of the kind, joining combined
// values with "|".
func (k EventKind) String() string {
	if k == 0 {
		return "none"
	}
	var parts []string
	for _, e := range [...]struct {
		bit  EventKind
		name string
	}{
		{EventAsync, "async"},
		{EventSocketRead, "read"},
		{EventSocketWrite, "write"},
		{EventPeriodic, "periodic"},
		{EventSignal, "signal"},
		{EventTimer, "timer"},
	} {
		if k&e.bit != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}

// Handle is the opaque identity of one installed watcher. It is valid from
// a successful install until Uninstall returns for it; every operation
// accepting a Handle treats the zero value and stale (already uninstalled)
// handles as safe no-ops.
//
// A Handle never migrates: it refers to the loop it was installed on for
// its entire lifetime.
type Handle struct {
	loop int32
	slot uint32
	gen  uint32
}

// MakeHandle assembles a Handle. It exists for scheduler implementations;
// consumers receive handles from install operations and must treat them as
// opaque values.
func MakeHandle(loop int, slot, gen uint32) Handle {
	return Handle{loop: int32(loop), slot: slot, gen: gen}
}

// IsZero reports whether h is the null handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// Loop returns the index of the loop that owns the watcher.
func (h Handle) Loop() int { return int(h.loop) }

// Slot returns the arena slot of the watcher within its loop.
func (h Handle) Slot() uint32 { return h.slot }

// Generation returns the slot generation captured at install time. A
// handle resolves only while the slot generation still matches; freeing a
// slot bumps the generation, so stale handles are detectably invalid.
func (h Handle) Generation() uint32 { return h.gen }

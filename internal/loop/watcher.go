// File: internal/loop/watcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tagged watcher records and the generation-checked slot arena. A freed
// slot bumps its generation, so a stale handle held by a caller resolves
// to nothing instead of a dangling record.

package loop

import (
	"os"
	"time"

	"github.com/momentics/evsched/api"
)

// watcher is one registration: an event source bound to a task. The kind
// tag selects which of the per-kind fields are meaningful.
type watcher struct {
	kind api.EventKind
	task api.Task

	// Socket watchers.
	fd      int
	read    bool
	write   bool
	started bool

	// Timer and periodic watchers.
	timer *timerNode

	// Signal watchers.
	signal os.Signal
}

// slot is one arena cell. gen starts at 1 and is bumped on every free, so
// the zero Handle (gen 0) never resolves.
type slot struct {
	gen    uint32
	active bool
	w      watcher
}

// arena is the watcher table of one loop. Not self-synchronized: the
// owning loop's mutex guards all access.
type arena struct {
	slots []slot
	free  []uint32
	live  int
}

func newArena() *arena {
	return &arena{}
}

// alloc places w into a free slot and returns its index and generation.
func (a *arena) alloc(w watcher) (uint32, uint32) {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.active = true
	s.w = w
	a.live++
	return idx, s.gen
}

// lookup resolves a slot index + generation to its watcher, or nil when
// the slot was freed (and possibly reused) since the handle was issued.
func (a *arena) lookup(idx, gen uint32) *watcher {
	if idx >= uint32(len(a.slots)) {
		return nil
	}
	s := &a.slots[idx]
	if !s.active || s.gen != gen {
		return nil
	}
	return &s.w
}

// at resolves an active slot by index alone, returning its current
// generation. Used on the socket dispatch path, where the fd table already
// names the slot.
func (a *arena) at(idx uint32) (*watcher, uint32, bool) {
	if idx >= uint32(len(a.slots)) {
		return nil, 0, false
	}
	s := &a.slots[idx]
	if !s.active {
		return nil, 0, false
	}
	return &s.w, s.gen, true
}

// release frees a slot and invalidates every handle pointing at it.
func (a *arena) release(idx, gen uint32) bool {
	if a.lookup(idx, gen) == nil {
		return false
	}
	s := &a.slots[idx]
	s.active = false
	s.gen++
	s.w = watcher{}
	a.free = append(a.free, idx)
	a.live--
	return true
}

// size reports the number of live watchers.
func (a *arena) size() int { return a.live }

// timerNode is the heap bookkeeping of a timer or periodic watcher. It
// stays attached to the watcher after a one-shot fires so the watcher can
// be rearmed; index is -1 whenever the node is not queued.
type timerNode struct {
	slot     uint32
	gen      uint32
	deadline time.Time
	interval time.Duration
	periodic bool
	index    int
}

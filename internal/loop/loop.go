// File: internal/loop/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One event loop: the mutation surface called from any thread and the
// wait/dispatch cycle driven by exactly one thread. Watcher-set mutation
// happens under the loop mutex; dispatch copies the task reference out
// under the mutex, re-checks the slot generation, then delivers outside
// the lock guarded by the task-liveness check.

package loop

import (
	"container/heap"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/evsched/api"
	"github.com/momentics/evsched/reactor"
)

// eventBatch bounds readiness notifications consumed per wait cycle.
const eventBatch = 128

// inboxEntry is one cross-thread delivery request (async send or signal
// occurrence) queued for the owning thread to dispatch.
type inboxEntry struct {
	slot uint32
	gen  uint32
	kind api.EventKind
}

// delivery is a dispatch resolved under the mutex, executed outside it.
type delivery struct {
	task api.Task
	h    api.Handle
	kind api.EventKind
}

// Loop owns one demultiplexer and the watchers bound to it.
type Loop struct {
	index int
	demux reactor.Demultiplexer
	log   zerolog.Logger

	mu     sync.Mutex
	arena  *arena
	fds    map[int]uint32 // fd -> arena slot, socket dispatch path
	timers timerHeap
	inbox  *queue.Queue

	stopping atomic.Bool
	closed   atomic.Bool

	dispatched  atomic.Uint64
	skipped     atomic.Uint64
	timersFired atomic.Uint64
	wakeups     atomic.Uint64
}

// New creates a loop backed by the requested polling mechanism.
func New(index int, backend reactor.Backend, log zerolog.Logger) (*Loop, error) {
	demux, err := reactor.New(backend)
	if err != nil {
		return nil, err
	}
	return &Loop{
		index: index,
		demux: demux,
		log:   log.With().Int("loop", index).Logger(),
		arena: newArena(),
		fds:   make(map[int]uint32),
		inbox: queue.New(),
	}, nil
}

// Index returns the loop's position in the scheduler's pool.
func (l *Loop) Index() int { return l.index }

func (l *Loop) handle(slot, gen uint32) api.Handle {
	return api.MakeHandle(l.index, slot, gen)
}

// InstallAsync registers a pure wakeup watcher.
func (l *Loop) InstallAsync(task api.Task) (api.Handle, error) {
	if l.closed.Load() {
		return api.Handle{}, api.ErrLoopClosed
	}
	l.mu.Lock()
	slot, gen := l.arena.alloc(watcher{kind: api.EventAsync, task: task})
	l.mu.Unlock()
	return l.handle(slot, gen), nil
}

// PostAsync queues one EventAsync for the watcher and wakes the loop.
// Stale handles fall through silently.
func (l *Loop) PostAsync(h api.Handle) {
	l.post(h, api.EventAsync)
}

// PostSignal queues one EventSignal occurrence for the watcher.
func (l *Loop) PostSignal(h api.Handle) {
	l.post(h, api.EventSignal)
}

func (l *Loop) post(h api.Handle, kind api.EventKind) {
	l.mu.Lock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind != kind {
		l.mu.Unlock()
		return
	}
	l.inbox.Add(inboxEntry{slot: h.Slot(), gen: h.Generation(), kind: kind})
	l.mu.Unlock()
	_ = l.demux.Wakeup()
}

// InstallSocket registers readiness interest for fd and starts watching
// immediately. Backend failures (e.g. exhausted watch resources) are
// surfaced to the caller and leave the watcher set untouched.
func (l *Loop) InstallSocket(kind api.EventKind, task api.Task, fd int) (api.Handle, error) {
	read := kind&api.EventSocketRead != 0
	write := kind&api.EventSocketWrite != 0
	if !read && !write || kind&^api.EventSocketReadWrite != 0 {
		return api.Handle{}, api.NewError(api.ErrCodeInvalidArgument, "socket watcher requires read and/or write interest")
	}
	if l.closed.Load() {
		return api.Handle{}, api.ErrLoopClosed
	}

	l.mu.Lock()
	if err := l.demux.Add(fd, read, write); err != nil {
		l.mu.Unlock()
		return api.Handle{}, api.WrapError(api.ErrCodeResourceExhausted, "register socket", err).WithContext("fd", fd)
	}
	slot, gen := l.arena.alloc(watcher{
		kind:    kind,
		task:    task,
		fd:      fd,
		read:    read,
		write:   write,
		started: true,
	})
	l.fds[fd] = slot
	l.mu.Unlock()
	return l.handle(slot, gen), nil
}

// StartSocket re-enables a stopped socket watcher. Starting an
// already-started watcher is a no-op.
func (l *Loop) StartSocket(h api.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind&api.EventSocketReadWrite == 0 || w.started {
		return
	}
	if err := l.demux.Add(w.fd, w.read, w.write); err != nil {
		l.log.Error().Err(err).Int("fd", w.fd).Msg("restart socket watcher")
		return
	}
	w.started = true
	l.fds[w.fd] = h.Slot()
}

// StopSocket disables a socket watcher without destroying it. Stopping an
// already-stopped watcher is a no-op.
func (l *Loop) StopSocket(h api.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind&api.EventSocketReadWrite == 0 || !w.started {
		return
	}
	if err := l.demux.Del(w.fd); err != nil {
		l.log.Error().Err(err).Int("fd", w.fd).Msg("stop socket watcher")
	}
	w.started = false
	delete(l.fds, w.fd)
}

// ModifySocket replaces the readiness interest of a socket watcher in
// place. A stopped watcher only records the new interest; it takes effect
// on StartSocket. Invalid kinds and stale handles fall through silently.
func (l *Loop) ModifySocket(h api.Handle, kind api.EventKind) {
	read := kind&api.EventSocketRead != 0
	write := kind&api.EventSocketWrite != 0
	if !read && !write || kind&^api.EventSocketReadWrite != 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind&api.EventSocketReadWrite == 0 {
		return
	}
	if w.started {
		if err := l.demux.Mod(w.fd, read, write); err != nil {
			l.log.Error().Err(err).Int("fd", w.fd).Msg("modify socket watcher")
			return
		}
	}
	w.kind = kind
	w.read, w.write = read, write
}

// InstallPeriodic schedules the first firing after offset, then every
// interval until uninstalled.
func (l *Loop) InstallPeriodic(task api.Task, offset, interval time.Duration) (api.Handle, error) {
	if interval <= 0 {
		return api.Handle{}, api.NewError(api.ErrCodeInvalidArgument, "periodic interval must be positive")
	}
	if l.closed.Load() {
		return api.Handle{}, api.ErrLoopClosed
	}
	node := &timerNode{
		deadline: time.Now().Add(offset),
		interval: interval,
		periodic: true,
		index:    -1,
	}
	l.mu.Lock()
	slot, gen := l.arena.alloc(watcher{kind: api.EventPeriodic, task: task, timer: node})
	node.slot, node.gen = slot, gen
	l.timers.schedule(node)
	l.mu.Unlock()
	_ = l.demux.Wakeup()
	return l.handle(slot, gen), nil
}

// RearmPeriodic replaces the schedule and forces the blocked wait to
// re-evaluate the next deadline immediately.
func (l *Loop) RearmPeriodic(h api.Handle, offset, interval time.Duration) {
	l.mu.Lock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind != api.EventPeriodic {
		l.mu.Unlock()
		return
	}
	w.timer.deadline = time.Now().Add(offset)
	if interval > 0 {
		w.timer.interval = interval
	}
	l.timers.schedule(w.timer)
	l.mu.Unlock()
	_ = l.demux.Wakeup()
}

// InstallSignal records a watcher bound to one OS signal. Subscription to
// the process signal stream is owned by the scheduler; the loop only keeps
// the binding and dispatches occurrences posted via PostSignal.
func (l *Loop) InstallSignal(task api.Task, sig os.Signal) (api.Handle, error) {
	if l.closed.Load() {
		return api.Handle{}, api.ErrLoopClosed
	}
	l.mu.Lock()
	slot, gen := l.arena.alloc(watcher{kind: api.EventSignal, task: task, signal: sig})
	l.mu.Unlock()
	return l.handle(slot, gen), nil
}

// InstallTimer registers a one-shot timer firing once after timeout.
func (l *Loop) InstallTimer(task api.Task, timeout time.Duration) (api.Handle, error) {
	if l.closed.Load() {
		return api.Handle{}, api.ErrLoopClosed
	}
	node := &timerNode{
		deadline: time.Now().Add(timeout),
		index:    -1,
	}
	l.mu.Lock()
	slot, gen := l.arena.alloc(watcher{kind: api.EventTimer, task: task, timer: node})
	node.slot, node.gen = slot, gen
	l.timers.schedule(node)
	l.mu.Unlock()
	_ = l.demux.Wakeup()
	return l.handle(slot, gen), nil
}

// ClearTimer cancels a pending one-shot timer. Already fired or already
// cleared timers are left alone.
func (l *Loop) ClearTimer(h api.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind != api.EventTimer {
		return
	}
	l.timers.unschedule(w.timer)
}

// RearmTimer resets a timer, fired or not, to fire once after timeout.
func (l *Loop) RearmTimer(h api.Handle, timeout time.Duration) {
	l.mu.Lock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind != api.EventTimer {
		l.mu.Unlock()
		return
	}
	w.timer.deadline = time.Now().Add(timeout)
	l.timers.schedule(w.timer)
	l.mu.Unlock()
	_ = l.demux.Wakeup()
}

// Uninstall stops and releases a watcher of any kind, switching on the
// recorded kind for the kind-specific stop sequence. It reports the kind
// so the scheduler can maintain signal subscriptions. The handle is dead
// on return; at most one dispatch already in flight on the owning thread
// may still complete, guarded by the task-liveness check.
func (l *Loop) Uninstall(h api.Handle) (api.EventKind, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil {
		return 0, false
	}
	kind := w.kind
	switch {
	case kind&api.EventSocketReadWrite != 0:
		if w.started {
			if err := l.demux.Del(w.fd); err != nil {
				l.log.Error().Err(err).Int("fd", w.fd).Msg("uninstall socket watcher")
			}
			delete(l.fds, w.fd)
		}
	case kind == api.EventTimer || kind == api.EventPeriodic:
		l.timers.unschedule(w.timer)
	case kind == api.EventAsync || kind == api.EventSignal:
		// Pending inbox entries fail the generation check and vanish.
	}
	l.arena.release(h.Slot(), h.Generation())
	return kind, true
}

// SignalOf returns the signal a live signal watcher is bound to.
func (l *Loop) SignalOf(h api.Handle) (os.Signal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.arena.lookup(h.Slot(), h.Generation())
	if w == nil || w.kind != api.EventSignal {
		return nil, false
	}
	return w.signal, true
}

// WatcherCount reports the number of live watchers, wakers included.
func (l *Loop) WatcherCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.arena.size()
}

// Wakeup forces a blocked wait to return at least once.
func (l *Loop) Wakeup() {
	_ = l.demux.Wakeup()
}

// Stop marks the loop stopping and forces the wait out. Thread-safe and
// idempotent.
func (l *Loop) Stop() {
	l.stopping.Store(true)
	_ = l.demux.Wakeup()
}

// Stopping reports whether Stop was requested.
func (l *Loop) Stopping() bool { return l.stopping.Load() }

// Close releases the demultiplexer. Only legal after the driving thread
// has reported stopped; the scheduler enforces that order.
func (l *Loop) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.demux.Close()
}

// Counters returns the dispatch statistics accumulated so far.
func (l *Loop) Counters() (dispatched, skipped, timersFired, wakeups uint64) {
	return l.dispatched.Load(), l.skipped.Load(), l.timersFired.Load(), l.wakeups.Load()
}

// Run drives the blocking wait/dispatch cycle until Stop. Events of one
// loop are dispatched strictly one at a time in the order the wait call
// reports them; there is no cross-loop ordering.
func (l *Loop) Run() {
	events := make([]reactor.Event, eventBatch)
	for !l.stopping.Load() {
		n, err := l.demux.Wait(events, l.nextTimeout())
		if err != nil {
			if l.stopping.Load() {
				return
			}
			l.log.Error().Err(err).Msg("demultiplexer wait failed")
			return
		}
		l.wakeups.Add(1)
		l.drainInbox()
		for i := 0; i < n; i++ {
			l.dispatchSocket(events[i])
		}
		l.fireTimers()
	}
}

// nextTimeout derives the poll timeout from the earliest timer deadline.
// Negative means block indefinitely.
func (l *Loop) nextTimeout() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.timers.head()
	if n == nil {
		return -1
	}
	d := time.Until(n.deadline)
	if d < 0 {
		return 0
	}
	return d
}

// drainInbox dispatches queued cross-thread events in arrival order.
func (l *Loop) drainInbox() {
	l.mu.Lock()
	var pending []inboxEntry
	for l.inbox.Length() > 0 {
		pending = append(pending, l.inbox.Remove().(inboxEntry))
	}
	l.mu.Unlock()

	for _, e := range pending {
		l.mu.Lock()
		w := l.arena.lookup(e.slot, e.gen)
		if w == nil {
			l.mu.Unlock()
			continue
		}
		d := delivery{task: w.task, h: l.handle(e.slot, e.gen), kind: e.kind}
		l.mu.Unlock()
		l.deliver(d)
	}
}

// dispatchSocket resolves one readiness notification to its watcher. Both
// interests firing in one wait cycle yield a single combined event.
func (l *Loop) dispatchSocket(ev reactor.Event) {
	l.mu.Lock()
	slot, ok := l.fds[ev.FD]
	if !ok {
		l.mu.Unlock()
		return
	}
	w, gen, ok := l.arena.at(slot)
	if !ok || !w.started {
		l.mu.Unlock()
		return
	}
	var kind api.EventKind
	if ev.Readable && w.read {
		kind |= api.EventSocketRead
	}
	if ev.Writable && w.write {
		kind |= api.EventSocketWrite
	}
	if kind == 0 {
		l.mu.Unlock()
		return
	}
	d := delivery{task: w.task, h: l.handle(slot, gen), kind: kind}
	l.mu.Unlock()
	l.deliver(d)
}

// fireTimers pops every due node, requeues periodics at now+interval, and
// dispatches outside the lock.
func (l *Loop) fireTimers() {
	now := time.Now()
	var fired []delivery

	l.mu.Lock()
	for {
		n := l.timers.head()
		if n == nil || n.deadline.After(now) {
			break
		}
		heap.Pop(&l.timers)
		w := l.arena.lookup(n.slot, n.gen)
		if w == nil {
			continue
		}
		if n.periodic && n.interval > 0 {
			n.deadline = now.Add(n.interval)
			l.timers.schedule(n)
		}
		fired = append(fired, delivery{task: w.task, h: l.handle(n.slot, n.gen), kind: w.kind})
	}
	l.mu.Unlock()

	for _, d := range fired {
		l.timersFired.Add(1)
		l.deliver(d)
	}
}

// deliver applies the uniform dispatch policy: a task reporting inactive
// means the event is silently discarded, never an error.
func (l *Loop) deliver(d delivery) {
	if !d.task.IsActive() {
		l.skipped.Add(1)
		return
	}
	l.dispatched.Add(1)
	d.task.HandleEvent(d.h, d.kind)
}

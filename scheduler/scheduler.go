// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The scheduler owns N (loop, thread, waker) triples, fixed at
// construction and read-only afterwards, so routing a registration to its
// loop needs no locking. Every loop carries one reserved waker watcher,
// installed before any user registration is possible; it serves both
// normal cross-thread wakeups and shutdown.

package scheduler

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/evsched/api"
	"github.com/momentics/evsched/control"
	"github.com/momentics/evsched/internal/loop"
	"github.com/momentics/evsched/reactor"
)

// Buffered depth of the process signal stream. Bursts beyond it coalesce,
// which the delivery contract permits.
const signalQueueDepth = 64

var _ api.Scheduler = (*Scheduler)(nil)

// wakerTask backs the reserved per-loop waker watcher. The wakeup itself
// is the effect: the loop re-checks its state on every wait return, so
// delivery is a no-op.
type wakerTask struct{}

func (wakerTask) IsActive() bool                            { return true }
func (wakerTask) HandleEvent(_ api.Handle, _ api.EventKind) {}

// Scheduler is the concrete api.Scheduler implementation.
type Scheduler struct {
	cfg     config
	log     zerolog.Logger
	loops   []*loop.Loop
	threads []*loop.Thread
	wakers  []api.Handle
	metrics *control.MetricsRegistry
	started time.Time

	closed       atomic.Bool
	shutdownOnce sync.Once

	sigMu       sync.Mutex
	sigCh       chan os.Signal
	sigQuit     chan struct{}
	sigWatchers map[api.Handle]os.Signal
	sigRefs     map[os.Signal]int
}

// AvailableBackends reports the polling mechanisms supported on this
// platform.
func AvailableBackends() []reactor.Backend {
	return reactor.AvailableBackends()
}

// New constructs a scheduler with the given number of loops, starts one
// worker thread per loop and installs each loop's reserved waker. The
// count must be positive; the backend defaults to the platform's preferred
// mechanism. On any construction failure every already-created loop is
// released before returning.
func New(concurrency int, opts ...Option) (*Scheduler, error) {
	if concurrency < 1 {
		return nil, fmt.Errorf("scheduler: concurrency %d: %w", concurrency, api.ErrInvalidConcurrency)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Scheduler{
		cfg:         cfg,
		log:         cfg.logger.With().Str("component", "scheduler").Logger(),
		metrics:     control.NewMetricsRegistry(),
		started:     time.Now(),
		sigCh:       make(chan os.Signal, signalQueueDepth),
		sigQuit:     make(chan struct{}),
		sigWatchers: make(map[api.Handle]os.Signal),
		sigRefs:     make(map[os.Signal]int),
	}

	s.log.Debug().
		Int("concurrency", concurrency).
		Stringer("backend", cfg.backend).
		Msg("constructing scheduler")

	for i := 0; i < concurrency; i++ {
		l, err := loop.New(i, cfg.backend, cfg.logger)
		if err != nil {
			for _, created := range s.loops {
				_ = created.Close()
			}
			return nil, fmt.Errorf("scheduler: create loop %d: %w", i, err)
		}
		s.loops = append(s.loops, l)
	}

	// Reserved wakers go in before any user registration is possible.
	s.wakers = make([]api.Handle, concurrency)
	for i, l := range s.loops {
		h, err := l.InstallAsync(wakerTask{})
		if err != nil {
			for _, created := range s.loops {
				_ = created.Close()
			}
			return nil, fmt.Errorf("scheduler: install waker %d: %w", i, err)
		}
		s.wakers[i] = h
	}

	for i, l := range s.loops {
		pin := -1
		if cfg.pinThreads {
			pin = i % runtime.NumCPU()
		}
		t := loop.NewThread(l, pin, cfg.logger)
		s.threads = append(s.threads, t)
		t.Start()
	}

	go s.signalRelay()

	return s, nil
}

// Concurrency returns the number of loops in the pool.
func (s *Scheduler) Concurrency() int { return len(s.loops) }

// lookupLoop resolves a loop index. An out-of-range index is a programmer
// error: continuing with it risks corrupting another loop's watcher set,
// so it faults at the call site instead of returning a soft error.
func (s *Scheduler) lookupLoop(i int) *loop.Loop {
	if i < 0 || i >= len(s.loops) {
		panic(fmt.Sprintf("scheduler: unknown loop %d (pool size %d)", i, len(s.loops)))
	}
	return s.loops[i]
}

// routeHandle resolves a handle's owning loop, or nil for zero handles and
// after shutdown.
func (s *Scheduler) routeHandle(h api.Handle) *loop.Loop {
	if h.IsZero() || s.closed.Load() {
		return nil
	}
	return s.lookupLoop(h.Loop())
}

// InstallAsync creates and starts an async watcher on the loop.
func (s *Scheduler) InstallAsync(loopIdx int, task api.Task) (api.Handle, error) {
	l := s.lookupLoop(loopIdx)
	if s.closed.Load() {
		return api.Handle{}, api.ErrSchedulerClosed
	}
	return l.InstallAsync(task)
}

// SendAsync wakes the owning loop once; the bound task receives one
// EventAsync if still active. Zero and stale handles are no-ops.
func (s *Scheduler) SendAsync(h api.Handle) {
	if l := s.routeHandle(h); l != nil {
		l.PostAsync(h)
	}
}

// InstallSocket registers readiness interest in fd on the loop.
func (s *Scheduler) InstallSocket(loopIdx int, kind api.EventKind, task api.Task, fd int) (api.Handle, error) {
	l := s.lookupLoop(loopIdx)
	if s.closed.Load() {
		return api.Handle{}, api.ErrSchedulerClosed
	}
	return l.InstallSocket(kind, task, fd)
}

// StartSocket enables a stopped socket watcher. Idempotent.
func (s *Scheduler) StartSocket(h api.Handle) {
	if l := s.routeHandle(h); l != nil {
		l.StartSocket(h)
	}
}

// StopSocket disables a socket watcher without destroying it. Idempotent.
func (s *Scheduler) StopSocket(h api.Handle) {
	if l := s.routeHandle(h); l != nil {
		l.StopSocket(h)
	}
}

// ModifySocket replaces a socket watcher's readiness interest in place.
func (s *Scheduler) ModifySocket(h api.Handle, kind api.EventKind) {
	if l := s.routeHandle(h); l != nil {
		l.ModifySocket(h, kind)
	}
}

// InstallPeriodic schedules the first firing after offset, then every
// interval until uninstalled.
func (s *Scheduler) InstallPeriodic(loopIdx int, task api.Task, offset, interval time.Duration) (api.Handle, error) {
	l := s.lookupLoop(loopIdx)
	if s.closed.Load() {
		return api.Handle{}, api.ErrSchedulerClosed
	}
	return l.InstallPeriodic(task, offset, interval)
}

// RearmPeriodic replaces a periodic watcher's schedule and forces an
// immediate re-evaluation of its next deadline.
func (s *Scheduler) RearmPeriodic(h api.Handle, offset, interval time.Duration) {
	if l := s.routeHandle(h); l != nil {
		l.RearmPeriodic(h, offset, interval)
	}
}

// InstallTimer registers a one-shot timer on the loop.
func (s *Scheduler) InstallTimer(loopIdx int, task api.Task, timeout time.Duration) (api.Handle, error) {
	l := s.lookupLoop(loopIdx)
	if s.closed.Load() {
		return api.Handle{}, api.ErrSchedulerClosed
	}
	return l.InstallTimer(task, timeout)
}

// ClearTimer cancels a pending one-shot timer; no-op if already fired or
// cleared.
func (s *Scheduler) ClearTimer(h api.Handle) {
	if l := s.routeHandle(h); l != nil {
		l.ClearTimer(h)
	}
}

// RearmTimer resets a timer, fired or not, to fire after timeout.
func (s *Scheduler) RearmTimer(h api.Handle, timeout time.Duration) {
	if l := s.routeHandle(h); l != nil {
		l.RearmTimer(h, timeout)
	}
}

// Uninstall stops and permanently releases a watcher of any kind. Errors
// local to one watcher never affect other watchers or loops.
func (s *Scheduler) Uninstall(h api.Handle) {
	l := s.routeHandle(h)
	if l == nil {
		return
	}
	kind, ok := l.Uninstall(h)
	if ok && kind == api.EventSignal {
		s.dropSignalWatcher(h)
	}
}

// Wakeup forces the loop out of its blocking wait at least once by
// sending on its reserved waker.
func (s *Scheduler) Wakeup(loopIdx int) {
	l := s.lookupLoop(loopIdx)
	if s.closed.Load() {
		return
	}
	l.PostAsync(s.wakers[loopIdx])
}

// publish refreshes the registry with the current per-loop counters.
func (s *Scheduler) publish() {
	for i, l := range s.loops {
		dispatched, skipped, timersFired, wakeups := l.Counters()
		prefix := fmt.Sprintf("loop%d.", i)
		s.metrics.Set(prefix+"dispatched", dispatched)
		s.metrics.Set(prefix+"skipped", skipped)
		s.metrics.Set(prefix+"timers", timersFired)
		s.metrics.Set(prefix+"wakeups", wakeups)
		s.metrics.Set(prefix+"watchers", l.WatcherCount())
	}
	s.metrics.Set("uptime", time.Since(s.started))
}

// Stats snapshots per-loop dispatch counters and scheduler uptime.
func (s *Scheduler) Stats() map[string]any {
	s.publish()
	return s.metrics.GetSnapshot()
}

// Stat refreshes the counters and returns one metric by key.
func (s *Scheduler) Stat(key string) (any, bool) {
	s.publish()
	return s.metrics.Get(key)
}

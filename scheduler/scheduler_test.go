// File: scheduler/scheduler_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler lifecycle, registration routing and dispatch policy.

package scheduler_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/evsched/api"
	"github.com/momentics/evsched/scheduler"
)

// recordingTask counts deliveries and remembers kinds and timestamps.
type recordingTask struct {
	active  atomic.Bool
	calls   atomic.Int64
	mu      sync.Mutex
	kinds   []api.EventKind
	stamps  []time.Time
	onEvent func(h api.Handle, kind api.EventKind)
}

func newRecordingTask() *recordingTask {
	t := &recordingTask{}
	t.active.Store(true)
	return t
}

func (t *recordingTask) IsActive() bool { return t.active.Load() }

func (t *recordingTask) HandleEvent(h api.Handle, kind api.EventKind) {
	t.mu.Lock()
	t.kinds = append(t.kinds, kind)
	t.stamps = append(t.stamps, time.Now())
	t.mu.Unlock()
	t.calls.Add(1)
	if t.onEvent != nil {
		t.onEvent(h, kind)
	}
}

func (t *recordingTask) kindAt(i int) (api.EventKind, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.kinds) {
		return 0, false
	}
	return t.kinds[i], true
}

func (t *recordingTask) stampAt(i int) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.stamps) {
		return time.Time{}, false
	}
	return t.stamps[i], true
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached within %v: %s", d, msg)
}

func mustScheduler(t *testing.T, n int, opts ...scheduler.Option) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(n, opts...)
	if err != nil {
		t.Fatalf("New(%d): %v", n, err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func watcherCount(t *testing.T, s *scheduler.Scheduler, loop int) int {
	t.Helper()
	v, ok := s.Stat("loop" + itoa(loop) + ".watchers")
	if !ok {
		t.Fatalf("no watcher count for loop %d", loop)
	}
	return v.(int)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [8]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

func TestNewRejectsNonPositiveConcurrency(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := scheduler.New(n); !errors.Is(err, api.ErrInvalidConcurrency) {
			t.Fatalf("New(%d) = %v, want ErrInvalidConcurrency", n, err)
		}
	}
}

func TestAvailableBackendsNonEmpty(t *testing.T) {
	if len(scheduler.AvailableBackends()) == 0 {
		t.Fatal("no backends available")
	}
}

func TestShutdownIsIdempotentAndBlocksRegistration(t *testing.T) {
	s, err := scheduler.New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := s.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if _, err := s.InstallTimer(0, newRecordingTask(), time.Second); !errors.Is(err, api.ErrSchedulerClosed) {
		t.Fatalf("install after shutdown = %v, want ErrSchedulerClosed", err)
	}
}

func TestUnknownLoopIndexPanics(t *testing.T) {
	s := mustScheduler(t, 2)
	for _, idx := range []int{-1, 2, 99} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("loop index %d did not panic", idx)
				}
			}()
			_, _ = s.InstallTimer(idx, newRecordingTask(), time.Second)
		}()
	}
}

// Installing then immediately uninstalling any kind leaves the loop's
// watcher set unchanged and produces no deliveries for that handle.
func TestInstallUninstallLeavesWatcherSetUnchanged(t *testing.T) {
	s := mustScheduler(t, 2)
	task := newRecordingTask()

	installs := []func() (api.Handle, error){
		func() (api.Handle, error) { return s.InstallAsync(1, task) },
		func() (api.Handle, error) { return s.InstallTimer(1, task, time.Hour) },
		func() (api.Handle, error) { return s.InstallPeriodic(1, task, time.Hour, time.Hour) },
	}

	before := watcherCount(t, s, 1)
	for i, install := range installs {
		h, err := install()
		if err != nil {
			t.Fatalf("install %d: %v", i, err)
		}
		if watcherCount(t, s, 1) != before+1 {
			t.Fatalf("install %d did not grow the watcher set", i)
		}
		s.Uninstall(h)
		if after := watcherCount(t, s, 1); after != before {
			t.Fatalf("install %d: watcher set %d after uninstall, want %d", i, after, before)
		}
		s.SendAsync(h) // stale handle, must be a silent no-op
	}

	time.Sleep(50 * time.Millisecond)
	if n := task.calls.Load(); n != 0 {
		t.Fatalf("uninstalled watchers delivered %d events", n)
	}
}

func TestStaleAndZeroHandlesAreNoOps(t *testing.T) {
	s := mustScheduler(t, 1)

	var zero api.Handle
	s.SendAsync(zero)
	s.ClearTimer(zero)
	s.RearmTimer(zero, time.Second)
	s.RearmPeriodic(zero, 0, time.Second)
	s.StartSocket(zero)
	s.StopSocket(zero)
	s.ModifySocket(zero, api.EventSocketRead)
	s.Uninstall(zero)

	task := newRecordingTask()
	h, err := s.InstallAsync(0, task)
	if err != nil {
		t.Fatalf("InstallAsync: %v", err)
	}
	s.Uninstall(h)

	s.SendAsync(h)
	s.RearmTimer(h, time.Millisecond)
	s.Uninstall(h)

	time.Sleep(30 * time.Millisecond)
	if n := task.calls.Load(); n != 0 {
		t.Fatalf("stale handle produced %d deliveries", n)
	}
}

func TestAsyncDelivery(t *testing.T) {
	s := mustScheduler(t, 2)
	task := newRecordingTask()

	h, err := s.InstallAsync(1, task)
	if err != nil {
		t.Fatalf("InstallAsync: %v", err)
	}
	s.SendAsync(h)

	waitFor(t, 2*time.Second, func() bool { return task.calls.Load() == 1 }, "async delivery")
	if kind, _ := task.kindAt(0); kind != api.EventAsync {
		t.Fatalf("kind = %v, want async", kind)
	}
}

// A loop whose bound task reports inactive must deliver nothing.
func TestInactiveTaskIsSkippedSilently(t *testing.T) {
	s := mustScheduler(t, 1)
	task := newRecordingTask()
	task.active.Store(false)

	h, err := s.InstallAsync(0, task)
	if err != nil {
		t.Fatalf("InstallAsync: %v", err)
	}
	s.SendAsync(h)

	waitFor(t, 2*time.Second, func() bool {
		v, ok := s.Stat("loop0.skipped")
		return ok && v.(uint64) >= 1
	}, "skip counter")
	if n := task.calls.Load(); n != 0 {
		t.Fatalf("inactive task received %d events", n)
	}
}

func TestWakeupReachesLoop(t *testing.T) {
	s := mustScheduler(t, 1)
	s.Wakeup(0)
	// The reserved waker is a live async watcher; its delivery counts.
	waitFor(t, 2*time.Second, func() bool {
		v, ok := s.Stat("loop0.dispatched")
		return ok && v.(uint64) >= 1
	}, "waker dispatch")
}

// Concurrent registration from N goroutines onto N distinct loops
// followed by scheduler-wide destruction terminates within the bounded
// shutdown wait.
func TestConcurrentRegistrationThenShutdown(t *testing.T) {
	const n = 4
	s, err := scheduler.New(n, scheduler.WithShutdownTimeout(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(loopIdx int) {
			defer wg.Done()
			task := newRecordingTask()
			for j := 0; j < 50; j++ {
				if _, err := s.InstallTimer(loopIdx, task, time.Hour); err != nil {
					t.Errorf("loop %d install %d: %v", loopIdx, j, err)
					return
				}
				h, err := s.InstallAsync(loopIdx, task)
				if err != nil {
					t.Errorf("loop %d async %d: %v", loopIdx, j, err)
					return
				}
				s.SendAsync(h)
			}
		}(i)
	}
	wg.Wait()

	start := time.Now()
	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("shutdown took %v, want bounded", elapsed)
	}
}

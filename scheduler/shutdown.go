// File: scheduler/shutdown.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ordered teardown. Control flows top-down: signal every thread
// gracefully, force-stop every thread, wait bounded for all of them to
// report stopped, then destroy loops — wakers first, loop 0 last, because
// index 0 may wrap a shared default polling context. A thread that misses
// the deadline is logged and its loop deliberately leaked: destroying a
// polling context a thread might still be waiting on trades a bounded
// leak for a use-after-free.

package scheduler

import (
	"os/signal"
	"time"
)

// Shutdown tears the scheduler down in bounded time. Idempotent; teardown
// errors are aggregated for logging only and never propagated, since
// teardown must be unconditional and total.
func (s *Scheduler) Shutdown() error {
	s.shutdownOnce.Do(s.teardown)
	return nil
}

func (s *Scheduler) teardown() {
	s.closed.Store(true)

	// Quiesce the signal relay before loops start dying.
	signal.Stop(s.sigCh)
	close(s.sigQuit)

	// Begin shutdown sequence within threads, then force them out of
	// their wait cycles.
	for _, t := range s.threads {
		t.BeginShutdown()
	}
	for _, t := range s.threads {
		t.Stop()
	}

	// Bounded wait: one deadline shared by all threads.
	timer := time.NewTimer(s.cfg.shutdownTimeout)
	defer timer.Stop()

	stopped := make([]bool, len(s.threads))
	expired := false
	for i, t := range s.threads {
		if expired {
			select {
			case <-t.Done():
				stopped[i] = true
			default:
			}
			continue
		}
		select {
		case <-t.Done():
			stopped[i] = true
		case <-timer.C:
			expired = true
			select {
			case <-t.Done():
				stopped[i] = true
			default:
			}
		}
	}

	for i, t := range s.threads {
		if !stopped[i] {
			s.log.Warn().
				Int("loop", i).
				Stringer("state", t.State()).
				Dur("deadline", s.cfg.shutdownTimeout).
				Msg("thread failed to stop within shutdown deadline; leaking its loop")
		}
	}

	// Destroy loops strictly after their thread stopped: waker watcher
	// first, then the polling context. All loops except index 0 before
	// index 0.
	destroy := func(i int) {
		if !stopped[i] {
			return
		}
		s.loops[i].Uninstall(s.wakers[i])
		if err := s.loops[i].Close(); err != nil {
			s.log.Error().Err(err).Int("loop", i).Msg("close loop")
		}
	}
	for i := 1; i < len(s.loops); i++ {
		destroy(i)
	}
	if len(s.loops) > 0 {
		destroy(0)
	}

	s.log.Debug().Msg("scheduler torn down")
}

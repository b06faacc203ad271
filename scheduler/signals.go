// File: scheduler/signals.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process signal relay. One buffered channel receives every watched
// signal; the relay goroutine fans each occurrence out to every loop
// holding a live watcher for that signal number (delivery-to-all policy).
// Under a signal storm the runtime and the channel buffer coalesce
// occurrences, which the contract permits.

package scheduler

import (
	"os"
	"os/signal"

	"github.com/momentics/evsched/api"
)

// InstallSignal registers a watcher delivering one EventSignal to the
// bound task per received occurrence of sig. Multiple loops may register
// the same signal independently; each live watcher sees every occurrence.
func (s *Scheduler) InstallSignal(loopIdx int, task api.Task, sig os.Signal) (api.Handle, error) {
	l := s.lookupLoop(loopIdx)
	if s.closed.Load() {
		return api.Handle{}, api.ErrSchedulerClosed
	}

	h, err := l.InstallSignal(task, sig)
	if err != nil {
		return api.Handle{}, err
	}

	s.sigMu.Lock()
	s.sigWatchers[h] = sig
	s.sigRefs[sig]++
	if s.sigRefs[sig] == 1 {
		signal.Notify(s.sigCh, sig)
	}
	s.sigMu.Unlock()

	return h, nil
}

// dropSignalWatcher removes the subscription bookkeeping for an
// uninstalled signal watcher. When the last watcher for a signal number
// goes away, the relay channel's subscription is rebuilt from the
// remaining refcounts. signal.Reset is never used here: it acts
// process-wide and would sever every other os/signal consumer in the
// program, not just this scheduler's channel.
func (s *Scheduler) dropSignalWatcher(h api.Handle) {
	s.sigMu.Lock()
	defer s.sigMu.Unlock()
	sig, ok := s.sigWatchers[h]
	if !ok {
		return
	}
	delete(s.sigWatchers, h)
	s.sigRefs[sig]--
	if s.sigRefs[sig] > 0 {
		return
	}
	delete(s.sigRefs, sig)
	signal.Stop(s.sigCh)
	if len(s.sigRefs) > 0 {
		remaining := make([]os.Signal, 0, len(s.sigRefs))
		for watched := range s.sigRefs {
			remaining = append(remaining, watched)
		}
		signal.Notify(s.sigCh, remaining...)
	}
}

// signalRelay drains the process signal stream until shutdown.
func (s *Scheduler) signalRelay() {
	for {
		select {
		case sig := <-s.sigCh:
			s.fanOut(sig)
		case <-s.sigQuit:
			return
		}
	}
}

// fanOut posts one occurrence to every loop with a live watcher for sig.
func (s *Scheduler) fanOut(sig os.Signal) {
	s.sigMu.Lock()
	var targets []api.Handle
	for h, watched := range s.sigWatchers {
		if watched == sig {
			targets = append(targets, h)
		}
	}
	s.sigMu.Unlock()

	for _, h := range targets {
		s.loops[h.Loop()].PostSignal(h)
	}
}

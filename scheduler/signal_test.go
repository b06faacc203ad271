//go:build linux || darwin

// File: scheduler/signal_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process signal relay and fan-out across loops.

package scheduler_test

import (
	"os"
	"os/signal"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/evsched/api"
	"github.com/momentics/evsched/scheduler"
)

// One process signal fans out to every installed watcher, including
// watchers living on different loops.
func TestSignalFansOutToAllWatchers(t *testing.T) {
	s := mustScheduler(t, 2)

	first := newRecordingTask()
	second := newRecordingTask()

	h0, err := s.InstallSignal(0, first, unix.SIGUSR1)
	if err != nil {
		t.Fatalf("InstallSignal loop 0: %v", err)
	}
	h1, err := s.InstallSignal(1, second, unix.SIGUSR1)
	if err != nil {
		t.Fatalf("InstallSignal loop 1: %v", err)
	}

	if err := unix.Kill(os.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return first.calls.Load() >= 1 && second.calls.Load() >= 1
	}, "signal fan-out to both loops")

	if kind, _ := first.kindAt(0); kind != api.EventSignal {
		t.Fatalf("loop 0 kind = %v, want signal", kind)
	}
	if kind, _ := second.kindAt(0); kind != api.EventSignal {
		t.Fatalf("loop 1 kind = %v, want signal", kind)
	}

	s.Uninstall(h0)
	s.Uninstall(h1)
}

// Removing the scheduler's last watcher for a signal narrows only the
// scheduler's own subscription. An independent os/signal consumer
// registered before the uninstall keeps receiving the signal, and a
// watcher for a different signal on the same scheduler stays live.
func TestUninstallPreservesOtherSignalConsumers(t *testing.T) {
	other := make(chan os.Signal, 1)
	signal.Notify(other, unix.SIGUSR2)
	defer signal.Stop(other)

	s := mustScheduler(t, 1)

	usr2 := newRecordingTask()
	h2, err := s.InstallSignal(0, usr2, unix.SIGUSR2)
	if err != nil {
		t.Fatalf("InstallSignal SIGUSR2: %v", err)
	}
	usr1 := newRecordingTask()
	h1, err := s.InstallSignal(0, usr1, unix.SIGUSR1)
	if err != nil {
		t.Fatalf("InstallSignal SIGUSR1: %v", err)
	}

	s.Uninstall(h2)

	if err := unix.Kill(os.Getpid(), unix.SIGUSR2); err != nil {
		t.Fatalf("kill SIGUSR2: %v", err)
	}
	select {
	case <-other:
	case <-time.After(2 * time.Second):
		t.Fatal("independent consumer lost its subscription after uninstall")
	}
	time.Sleep(50 * time.Millisecond)
	if n := usr2.calls.Load(); n != 0 {
		t.Fatalf("uninstalled signal watcher received %d deliveries", n)
	}

	// The rebuilt subscription still carries the scheduler's remaining
	// signal.
	if err := unix.Kill(os.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatalf("kill SIGUSR1: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return usr1.calls.Load() >= 1 }, "remaining watcher delivery")
	s.Uninstall(h1)
}

// Two watchers on one loop both receive the raise; dropping one leaves
// the other live.
func TestSignalRefcountSurvivesPartialUninstall(t *testing.T) {
	s, err := scheduler.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Shutdown()

	a := newRecordingTask()
	b := newRecordingTask()

	ha, err := s.InstallSignal(0, a, unix.SIGUSR1)
	if err != nil {
		t.Fatalf("InstallSignal a: %v", err)
	}
	hb, err := s.InstallSignal(0, b, unix.SIGUSR1)
	if err != nil {
		t.Fatalf("InstallSignal b: %v", err)
	}

	s.Uninstall(ha)

	if err := unix.Kill(os.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return b.calls.Load() >= 1 }, "surviving watcher delivery")

	if n := a.calls.Load(); n != 0 {
		t.Fatalf("uninstalled watcher received %d deliveries", n)
	}
	s.Uninstall(hb)
}

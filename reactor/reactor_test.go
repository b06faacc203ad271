//go:build linux || darwin

// File: reactor/reactor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestAvailableBackends(t *testing.T) {
	bs := AvailableBackends()
	if len(bs) == 0 {
		t.Fatal("no backends reported on a supported platform")
	}
	if DefaultBackend() != bs[0] {
		t.Fatalf("default %v not first available %v", DefaultBackend(), bs[0])
	}
}

func TestNewRejectsUnsupportedBackend(t *testing.T) {
	supported := map[Backend]bool{}
	for _, b := range AvailableBackends() {
		supported[b] = true
	}
	for _, b := range []Backend{BackendEpoll, BackendKqueue} {
		if supported[b] {
			continue
		}
		if _, err := New(b); err == nil {
			t.Fatalf("New(%v) succeeded on a platform without it", b)
		}
	}
}

func TestWakeupInterruptsWait(t *testing.T) {
	d, err := New(BackendAuto)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	done := make(chan struct{})
	go func() {
		events := make([]Event, 8)
		n, werr := d.Wait(events, -1)
		if werr != nil {
			t.Errorf("Wait: %v", werr)
		}
		if n != 0 {
			t.Errorf("waker surfaced %d events, want 0", n)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if err := d.Wakeup(); err != nil {
		t.Fatalf("Wakeup: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wakeup did not interrupt a blocked Wait")
	}
}

func TestPipeReadiness(t *testing.T) {
	d, err := New(BackendAuto)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	if err := d.Add(p[0], true, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := unix.Write(p[1], []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make([]Event, 8)
	n, err := d.Wait(events, time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if n != 1 || events[0].FD != p[0] || !events[0].Readable {
		t.Fatalf("events = %v (n=%d), want fd %d readable", events[:n], n, p[0])
	}

	if err := d.Del(p[0]); err != nil {
		t.Fatalf("Del: %v", err)
	}

	// After Del the descriptor must stay silent even though data pends.
	n, err = d.Wait(events, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait after Del: %v", err)
	}
	if n != 0 {
		t.Fatalf("deleted fd still reported: %v", events[:n])
	}
}

//go:build darwin

// File: reactor/kqueue_darwin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Darwin kqueue demultiplexer. The waker is an EVFILT_USER event, so no
// pipe descriptors are consumed.

package reactor

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Ident of the reserved user-event waker within the kqueue.
const wakerIdent = 0

type kqueueDemux struct {
	kq     int
	closed atomic.Bool
	evbuf  []unix.Kevent_t
}

func platformBackends() []Backend {
	return []Backend{BackendKqueue}
}

func platformNew(b Backend) (Demultiplexer, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	kev := unix.Kevent_t{
		Ident:  wakerIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(kq)
		return nil, err
	}
	return &kqueueDemux{kq: kq, evbuf: make([]unix.Kevent_t, 128)}, nil
}

func interestChanges(fd int, read, write bool, add bool) []unix.Kevent_t {
	flags := uint16(unix.EV_DELETE)
	if add {
		flags = unix.EV_ADD
	}
	var changes []unix.Kevent_t
	if read {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if write {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return changes
}

func (d *kqueueDemux) Add(fd int, read, write bool) error {
	changes := interestChanges(fd, read, write, true)
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(d.kq, changes, nil, nil)
	return err
}

// Mod re-adds the requested filters (EV_ADD on an existing filter updates
// it) and deletes the unrequested ones; kqueue has no single-call modify.
// Adds go first: kevent stops processing changes at the first error when
// no output slots are given, and only the deletes may legitimately ENOENT.
func (d *kqueueDemux) Mod(fd int, read, write bool) error {
	changes := interestChanges(fd, read, write, true)
	changes = append(changes, interestChanges(fd, !read, !write, false)...)
	_, err := unix.Kevent(d.kq, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (d *kqueueDemux) Del(fd int) error {
	_, err := unix.Kevent(d.kq, interestChanges(fd, true, true, false), nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (d *kqueueDemux) Wakeup() error {
	kev := unix.Kevent_t{
		Ident:  wakerIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(d.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (d *kqueueDemux) Wait(events []Event, timeout time.Duration) (int, error) {
	if d.closed.Load() {
		return 0, unix.EBADF
	}

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(d.kq, nil, d.evbuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	// kqueue reports read and write readiness as separate kevents; merge
	// them per descriptor so both interests firing in one wait cycle are
	// delivered as a single combined event.
	out := 0
	index := make(map[int]int, n)
	for i := 0; i < n; i++ {
		kev := d.evbuf[i]
		if kev.Filter == unix.EVFILT_USER && kev.Ident == wakerIdent {
			continue
		}
		fd := int(kev.Ident)
		j, seen := index[fd]
		if !seen {
			if out >= len(events) {
				continue
			}
			j = out
			events[j] = Event{FD: fd}
			index[fd] = j
			out++
		}
		switch kev.Filter {
		case unix.EVFILT_READ:
			events[j].Readable = true
		case unix.EVFILT_WRITE:
			events[j].Writable = true
		}
		if kev.Flags&unix.EV_EOF != 0 {
			events[j].Readable = true
			events[j].Writable = true
		}
	}
	return out, nil
}

func (d *kqueueDemux) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(d.kq)
}

//go:build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll demultiplexer with an eventfd waker registered in the same
// interest set. Level-triggered: readiness is re-reported until consumed,
// matching the at-least-once delivery contract of the event loops above.

package reactor

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

type epollDemux struct {
	epfd   int
	wakefd int
	closed atomic.Bool
	evbuf  []unix.EpollEvent
}

func platformBackends() []Backend {
	return []Backend{BackendEpoll}
}

func platformNew(b Backend) (Demultiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	return &epollDemux{
		epfd:   epfd,
		wakefd: wakefd,
		evbuf:  make([]unix.EpollEvent, 128),
	}, nil
}

func interestToEpoll(read, write bool) uint32 {
	var flags uint32
	if read {
		flags |= unix.EPOLLIN
	}
	if write {
		flags |= unix.EPOLLOUT
	}
	return flags
}

func (d *epollDemux) Add(fd int, read, write bool) error {
	ev := &unix.EpollEvent{Events: interestToEpoll(read, write), Fd: int32(fd)}
	return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (d *epollDemux) Mod(fd int, read, write bool) error {
	ev := &unix.EpollEvent{Events: interestToEpoll(read, write), Fd: int32(fd)}
	return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (d *epollDemux) Del(fd int) error {
	return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wakeup writes the eventfd. EAGAIN means the counter is already pending,
// which is as good as a fresh wakeup.
func (d *epollDemux) Wakeup() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(d.wakefd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (d *epollDemux) Wait(events []Event, timeout time.Duration) (int, error) {
	if d.closed.Load() {
		return 0, unix.EBADF
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
		// Round sub-millisecond deadlines up so we never spin.
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	n, err := unix.EpollWait(d.epfd, d.evbuf, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	out := 0
	var wakebuf [8]byte
	for i := 0; i < n && out < len(events); i++ {
		ev := d.evbuf[i]
		fd := int(ev.Fd)
		if fd == d.wakefd {
			for {
				if _, rerr := unix.Read(d.wakefd, wakebuf[:]); rerr != nil {
					break
				}
			}
			continue
		}
		e := Event{FD: fd}
		if ev.Events&unix.EPOLLIN != 0 {
			e.Readable = true
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			e.Writable = true
		}
		// Error and hangup surface as combined readiness so the owning
		// task observes EOF/errno on its next I/O attempt.
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			e.Readable = true
			e.Writable = true
		}
		events[out] = e
		out++
	}
	return out, nil
}

func (d *epollDemux) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	unix.Close(d.wakefd)
	return unix.Close(d.epfd)
}

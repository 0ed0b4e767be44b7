//go:build linux

package reactor

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epoll is a level-triggered poller. An eventfd registered next to the
// sockets implements Wake.
type epoll struct {
	fd     int
	wakeFD int
	raw    []unix.EpollEvent
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}

	p := &epoll{fd: fd, wakeFD: wfd}
	if err := p.ctl(unix.EPOLL_CTL_ADD, wfd, unix.EPOLLIN); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func epollEvents(in interest) uint32 {
	var ev uint32
	if in&interestRead != 0 {
		ev |= unix.EPOLLIN
	}
	if in&interestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epoll) ctl(op, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(p.fd, op, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl fd %d: %w", fd, err)
	}
	return nil
}

func (p *epoll) Add(fd int, in interest) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, epollEvents(in))
}

func (p *epoll) Modify(fd int, in interest) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, epollEvents(in))
}

func (p *epoll) Remove(fd int) error {
	if err := unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *epoll) Wait(events []event, timeout time.Duration) (int, error) {
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]

	n, err := unix.EpollWait(p.fd, raw, int(timeout.Milliseconds()))
	if err == unix.EINTR {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	j := 0
	for _, ev := range raw[:n] {
		if int(ev.Fd) == p.wakeFD {
			p.drainWake()
			continue
		}
		events[j] = event{
			fd:       int(ev.Fd),
			readable: ev.Events&unix.EPOLLIN != 0,
			writable: ev.Events&unix.EPOLLOUT != 0,
			hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		}
		j++
	}
	return j, nil
}

func (p *epoll) Wake() error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, err := unix.Write(p.wakeFD, b[:])
	if err == unix.EAGAIN {
		// Counter saturated, a wakeup is already pending.
		return nil
	}
	return err
}

func (p *epoll) drainWake() {
	var b [8]byte
	unix.Read(p.wakeFD, b[:])
}

func (p *epoll) Close() error {
	unix.Close(p.wakeFD)
	return unix.Close(p.fd)
}

package reactor

import (
	"errors"
	"net"
	"time"
)

var errWouldBlock = errors.New("reactor: operation would block")

type interest uint8

const (
	interestRead interest = 1 << iota
	interestWrite
)

// event is a readiness notification for one descriptor.
type event struct {
	fd       int
	readable bool
	writable bool
	// hangup is set when the peer is gone or the socket has an error.
	hangup bool
}

// poller multiplexes readiness of many descriptors. Wake interrupts a
// blocked Wait from another goroutine.
type poller interface {
	Add(fd int, in interest) error
	Modify(fd int, in interest) error
	Remove(fd int) error
	Wait(events []event, timeout time.Duration) (int, error)
	Wake() error
	Close() error
}

// fdio performs the non-blocking socket calls. Read and Write report
// errWouldBlock instead of EAGAIN.
type fdio interface {
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Accept(fd int) (int, net.Addr, error)
	Close(fd int) error
}

type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

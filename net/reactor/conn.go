package reactor

import (
	"net"
	"time"

	"github.com/freekieb7/flint/buffer"
)

// State is the lifecycle stage of a connection.
type State uint8

const (
	StateReading State = iota
	StateDecoding
	StateDispatching
	StateWriting
	StateDraining
	StateClosing
)

var stateNames = [...]string{"reading", "decoding", "dispatching", "writing", "draining", "closing"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Conn is a connection owned by one shard. Its methods are meant for the
// protocol session and must only be called from the shard's event loop.
type Conn struct {
	fd     int
	id     string
	remote net.Addr

	in  buffer.Buffer
	out buffer.Buffer

	session Session
	state   State

	high int

	lastActive   time.Time
	requestStart time.Time
	now          func() time.Time

	interest        interest
	readPaused      bool
	stalled         bool
	closeAfterFlush bool
	closed          bool
}

// ID is a unique identifier for logs.
func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// In is the inbound buffer. Sessions consume from it.
func (c *Conn) In() *buffer.Buffer { return &c.in }

// Write queues p for sending. It never blocks; the shard flushes the queue
// once the session returns.
func (c *Conn) Write(p []byte) (int, error) {
	c.state = StateWriting
	return c.out.Write(p)
}

// Outbound returns the number of queued bytes not written yet.
func (c *Conn) Outbound() int { return c.out.Len() }

// Congested reports whether the outbound queue reached the high watermark.
// Sessions stop processing buffered requests while it does.
func (c *Conn) Congested() bool {
	if c.out.Len() >= c.high {
		c.stalled = true
		return true
	}
	return false
}

// CloseAfterFlush closes the connection once queued output is written.
// Further input is ignored.
func (c *Conn) CloseAfterFlush() {
	c.closeAfterFlush = true
	c.state = StateDraining
}

// Closing reports whether CloseAfterFlush was called.
func (c *Conn) Closing() bool { return c.closeAfterFlush }

func (c *Conn) SetState(s State) { c.state = s }

func (c *Conn) State() State { return c.state }

// BeginRequest marks the start of a partially received request for the
// request timeout. Repeated calls keep the first start time.
func (c *Conn) BeginRequest() {
	if c.requestStart.IsZero() {
		c.requestStart = c.now()
	}
}

// EndRequest clears the request timer.
func (c *Conn) EndRequest() {
	c.requestStart = time.Time{}
}

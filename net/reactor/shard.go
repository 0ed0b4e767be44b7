package reactor

import (
	"errors"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Buffers above this capacity are dropped once empty instead of being kept
// for the next request.
const retainBufferCap = 64 << 10

type handoff struct {
	fd   int
	addr net.Addr
}

// shard is one event loop. Everything but the inbox and the stop request is
// touched only from the loop goroutine.
type shard struct {
	id      int
	cfg     *Config
	poller  poller
	io      fdio
	clock   clock
	proto   Protocol
	logger  *slog.Logger
	metrics *Metrics
	active  *atomic.Int64

	conns     map[int]*Conn
	events    []event
	lastSweep time.Time
	draining  bool

	mu       sync.Mutex
	inbox    []handoff
	closed   bool
	stopping bool
	deadline time.Time
}

func newShard(id int, r *Reactor, p poller) *shard {
	return &shard{
		id:      id,
		cfg:     &r.cfg,
		poller:  p,
		io:      r.io,
		clock:   r.clock,
		proto:   r.proto,
		logger:  r.logger.With("shard", id),
		metrics: r.metrics,
		active:  &r.active,
		conns:   make(map[int]*Conn),
		events:  make([]event, r.cfg.MaxEvents),
	}
}

// enqueue hands an accepted socket to the shard. Safe for concurrent use.
func (s *shard) enqueue(fd int, addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.io.Close(fd)
		s.release()
		return
	}
	s.inbox = append(s.inbox, handoff{fd: fd, addr: addr})
	s.poller.Wake()
}

// stop asks the loop to drain and exit. Safe for concurrent use.
func (s *shard) stop(deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping && !deadline.Before(s.deadline) {
		return
	}
	s.stopping = true
	s.deadline = deadline
	if !s.closed {
		s.poller.Wake()
	}
}

func (s *shard) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	s.lastSweep = s.clock.Now()
	for s.tick() {
	}
	s.shutdown()
}

// tick runs one iteration of the loop and reports whether to continue.
func (s *shard) tick() bool {
	s.mu.Lock()
	stopping, deadline := s.stopping, s.deadline
	s.mu.Unlock()

	timeout := s.cfg.WaitTimeout
	if stopping {
		timeout = max(min(timeout, deadline.Sub(s.clock.Now())), time.Millisecond)
	}

	n, err := s.poller.Wait(s.events, timeout)
	if err != nil {
		s.logger.Error("poll failed", "error", err)
		return false
	}

	// stop may have woken this Wait.
	s.mu.Lock()
	stopping, deadline = s.stopping, s.deadline
	s.mu.Unlock()

	for _, ev := range s.events[:n] {
		s.handle(ev)
	}
	s.drainInbox()

	now := s.clock.Now()
	if now.Sub(s.lastSweep) >= s.cfg.SweepInterval {
		s.sweep(now)
		s.lastSweep = now
	}

	if stopping {
		return !s.drain(now, deadline)
	}
	return true
}

func (s *shard) shutdown() {
	s.closeAll(CloseShutdown)

	s.mu.Lock()
	s.closed = true
	inbox := s.inbox
	s.inbox = nil
	s.poller.Close()
	s.mu.Unlock()

	for _, h := range inbox {
		s.io.Close(h.fd)
		s.release()
	}
}

func (s *shard) drainInbox() {
	s.mu.Lock()
	inbox := s.inbox
	s.inbox = nil
	s.mu.Unlock()

	for _, h := range inbox {
		s.open(h.fd, h.addr)
	}
}

func (s *shard) open(fd int, addr net.Addr) {
	if err := s.poller.Add(fd, interestRead); err != nil {
		s.logger.Warn("register connection failed", "remote", addr, "error", err)
		s.io.Close(fd)
		s.release()
		s.metrics.Closed.WithLabelValues(CloseError).Inc()
		return
	}

	now := s.clock.Now()
	c := &Conn{
		fd:         fd,
		id:         uuid.NewString(),
		remote:     addr,
		high:       s.cfg.HighWatermark,
		lastActive: now,
		now:        s.clock.Now,
		interest:   interestRead,
	}
	s.conns[fd] = c
	c.session = s.proto.Open(c)

	s.logger.Debug("connection opened", "conn", c.id, "remote", addr)

	if s.draining {
		c.CloseAfterFlush()
		s.flush(c)
	}
}

func (s *shard) handle(ev event) {
	c, ok := s.conns[ev.fd]
	if !ok {
		return
	}

	if ev.hangup {
		s.close(c, ClosePeer, nil)
		return
	}

	if ev.writable {
		if !s.flush(c) {
			return
		}
		// Output drained enough to resume requests that were held back.
		if c.stalled && !c.readPaused && !c.closeAfterFlush {
			s.process(c)
			if c.closed {
				return
			}
		}
	}

	if ev.readable {
		s.read(c)
	}
}

func (s *shard) read(c *Conn) {
	if c.readPaused || c.closeAfterFlush {
		return
	}

	c.state = StateReading
	p := c.in.Reserve(s.cfg.ReadBufferSize)
	n, err := s.io.Read(c.fd, p)

	switch {
	case errors.Is(err, errWouldBlock):
		return
	case err != nil:
		s.close(c, CloseError, err)
		return
	case n == 0:
		if c.out.Len() == 0 {
			s.close(c, ClosePeer, nil)
			return
		}
		c.CloseAfterFlush()
		s.updateInterest(c)
		return
	}

	c.in.Commit(n)
	c.lastActive = s.clock.Now()
	s.metrics.BytesRead.Add(float64(n))

	s.process(c)
}

// process lets the session consume buffered input and flushes its output.
// It repeats while the session stopped on backpressure that the flush
// relieved.
func (s *shard) process(c *Conn) {
	for {
		c.stalled = false
		c.state = StateDecoding

		if err := c.session.Serve(c); err != nil {
			s.close(c, CloseError, err)
			return
		}
		if !s.flush(c) {
			return
		}

		if !c.stalled || c.readPaused || c.closeAfterFlush || c.out.Len() >= c.high {
			return
		}
	}
}

// flush writes queued output until the socket would block. It returns false
// when the connection got closed.
func (s *shard) flush(c *Conn) bool {
	for c.out.Len() > 0 {
		n, err := s.io.Write(c.fd, c.out.Bytes())
		if n > 0 {
			c.out.Discard(n)
			c.lastActive = s.clock.Now()
			s.metrics.BytesWritten.Add(float64(n))
		}
		if errors.Is(err, errWouldBlock) || (err == nil && n == 0) {
			break
		}
		if err != nil {
			s.close(c, CloseError, err)
			return false
		}
	}

	if c.out.Len() == 0 {
		if c.closeAfterFlush {
			s.close(c, CloseDone, nil)
			return false
		}
		if c.out.Cap() > retainBufferCap {
			c.out.Release()
		}
		if c.in.Len() == 0 && c.in.Cap() > retainBufferCap {
			c.in.Release()
		}
		c.state = StateReading
	}

	s.updateInterest(c)
	return !c.closed
}

// updateInterest applies the watermarks and syncs the poller registration.
func (s *shard) updateInterest(c *Conn) {
	out := c.out.Len()
	switch {
	case !c.readPaused && out >= c.high:
		c.readPaused = true
		s.metrics.ReadPauses.Inc()
	case c.readPaused && out <= s.cfg.LowWatermark:
		c.readPaused = false
	}

	var want interest
	if !c.readPaused && !c.closeAfterFlush && !s.draining {
		want |= interestRead
	}
	if out > 0 {
		want |= interestWrite
	}
	if want == c.interest {
		return
	}

	if err := s.poller.Modify(c.fd, want); err != nil {
		s.close(c, CloseError, err)
		return
	}
	c.interest = want
}

func (s *shard) sweep(now time.Time) {
	for _, c := range s.conns {
		if s.cfg.RequestTimeout > 0 && !c.requestStart.IsZero() && now.Sub(c.requestStart) >= s.cfg.RequestTimeout {
			c.requestStart = time.Time{}
			s.metrics.Timeouts.Inc()
			c.session.OnTimeout(c)
			s.flush(c)
			continue
		}

		if s.cfg.IdleTimeout > 0 && now.Sub(c.lastActive) >= s.cfg.IdleTimeout {
			s.logger.Debug("evicting idle connection", "conn", c.id, "idle", now.Sub(c.lastActive))
			s.close(c, CloseIdle, nil)
		}
	}
}

// drain closes connections as their output empties and force-closes the
// rest at the deadline. It reports whether no connection is left.
func (s *shard) drain(now, deadline time.Time) bool {
	if !s.draining {
		s.draining = true
		for _, c := range s.conns {
			c.CloseAfterFlush()
			s.flush(c)
		}
	}

	if !now.Before(deadline) {
		s.closeAll(CloseShutdown)
	}
	return len(s.conns) == 0
}

func (s *shard) closeAll(reason string) {
	for _, c := range s.conns {
		s.close(c, reason, nil)
	}
}

func (s *shard) close(c *Conn, reason string, err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.state = StateClosing

	s.poller.Remove(c.fd)
	s.io.Close(c.fd)
	delete(s.conns, c.fd)

	c.session.Close(c, err)
	c.in.Release()
	c.out.Release()

	s.release()
	s.metrics.Closed.WithLabelValues(reason).Inc()

	if err != nil {
		s.logger.Warn("connection closed", "conn", c.id, "remote", c.remote, "reason", reason, "error", err)
		return
	}
	s.logger.Debug("connection closed", "conn", c.id, "remote", c.remote, "reason", reason)
}

func (s *shard) release() {
	s.active.Add(-1)
	s.metrics.Active.Dec()
}

package reactor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type fakePoller struct {
	interests map[int]interest
	pending   []event
	wakes     int
	closed    bool
	// onWait runs inside the next Wait, like a call racing the poll.
	onWait func()
}

func newFakePoller() *fakePoller {
	return &fakePoller{interests: make(map[int]interest)}
}

func (p *fakePoller) Add(fd int, in interest) error {
	if _, ok := p.interests[fd]; ok {
		return fmt.Errorf("fd %d already registered", fd)
	}
	p.interests[fd] = in
	return nil
}

func (p *fakePoller) Modify(fd int, in interest) error {
	if _, ok := p.interests[fd]; !ok {
		return fmt.Errorf("fd %d not registered", fd)
	}
	p.interests[fd] = in
	return nil
}

func (p *fakePoller) Remove(fd int) error {
	delete(p.interests, fd)
	return nil
}

func (p *fakePoller) Wait(events []event, _ time.Duration) (int, error) {
	if p.closed {
		return 0, errors.New("poller closed")
	}
	if fn := p.onWait; fn != nil {
		p.onWait = nil
		fn()
	}
	n := copy(events, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *fakePoller) Wake() error {
	p.wakes++
	return nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

func (p *fakePoller) push(ev event) {
	p.pending = append(p.pending, ev)
}

// fakeIO is an in-memory socket table. Writes to an fd with a limit accept
// at most that many bytes before reporting errWouldBlock.
type fakeIO struct {
	in     map[int][]byte
	eof    map[int]bool
	out    map[int][]byte
	limit  map[int]int
	closed map[int]bool
	accept []int
}

func newFakeIO() *fakeIO {
	return &fakeIO{
		in:     make(map[int][]byte),
		eof:    make(map[int]bool),
		out:    make(map[int][]byte),
		limit:  make(map[int]int),
		closed: make(map[int]bool),
	}
}

func (f *fakeIO) Read(fd int, p []byte) (int, error) {
	data := f.in[fd]
	if len(data) == 0 {
		if f.eof[fd] {
			return 0, nil
		}
		return 0, errWouldBlock
	}
	n := copy(p, data)
	f.in[fd] = data[n:]
	return n, nil
}

func (f *fakeIO) Write(fd int, p []byte) (int, error) {
	n := len(p)
	if lim, ok := f.limit[fd]; ok {
		n = min(n, lim)
		f.limit[fd] = lim - n
		if n == 0 {
			return 0, errWouldBlock
		}
	}
	f.out[fd] = append(f.out[fd], p[:n]...)
	return n, nil
}

func (f *fakeIO) Accept(int) (int, net.Addr, error) {
	if len(f.accept) == 0 {
		return -1, nil, errWouldBlock
	}
	fd := f.accept[0]
	f.accept = f.accept[1:]
	return fd, testAddr(fd), nil
}

func (f *fakeIO) Close(fd int) error {
	f.closed[fd] = true
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testAddr(fd int) net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + fd}
}

// lineProto answers every LF terminated line with the line padded to width
// bytes. "quit" answers "bye" and closes, "fail" fails the session.
type lineProto struct {
	width int

	mu       sync.Mutex
	sessions []*lineSession
}

func (p *lineProto) Open(*Conn) Session {
	s := &lineSession{width: p.width}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s
}

func (p *lineProto) last() *lineSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[len(p.sessions)-1]
}

type lineSession struct {
	width    int
	timeouts int
	closed   bool
	closeErr error
}

func (s *lineSession) reply(line string) string {
	if s.width == 0 {
		return line + "\n"
	}
	return fmt.Sprintf("%-*s\n", s.width-1, line)
}

func (s *lineSession) Serve(c *Conn) error {
	for !c.Closing() && !c.Congested() {
		data := c.In().Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			if len(data) > 0 {
				c.BeginRequest()
			}
			return nil
		}
		c.EndRequest()

		line := string(data[:i])
		c.In().Discard(i + 1)

		switch line {
		case "fail":
			return errors.New("session failed")
		case "quit":
			c.Write([]byte("bye\n"))
			c.CloseAfterFlush()
		default:
			c.Write([]byte(s.reply(line)))
		}
	}
	return nil
}

func (s *lineSession) OnTimeout(c *Conn) {
	s.timeouts++
	c.Write([]byte("timeout\n"))
	c.CloseAfterFlush()
}

func (s *lineSession) Close(_ *Conn, err error) {
	s.closed = true
	s.closeErr = err
}

type harness struct {
	t     *testing.T
	r     *Reactor
	s     *shard
	p     *fakePoller
	io    *fakeIO
	clock *fakeClock
	proto *lineProto
	reg   *prometheus.Registry
}

func newHarness(t *testing.T, cfg Config, width int) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		p:     newFakePoller(),
		io:    newFakeIO(),
		clock: &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		proto: &lineProto{width: width},
		reg:   prometheus.NewRegistry(),
	}

	r, err := New(cfg, h.proto,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithMetrics(NewMetrics(WithRegistry(h.reg))),
	)
	if err != nil {
		t.Fatalf("new reactor: %v", err)
	}
	r.io = h.io
	r.clock = h.clock
	h.r = r

	h.s = newShard(0, r, h.p)
	h.s.lastSweep = h.clock.Now()
	return h
}

// connect hands fd to the shard the way the acceptor does and opens it.
func (h *harness) connect(fd int) *Conn {
	h.t.Helper()

	h.r.active.Add(1)
	h.s.enqueue(fd, testAddr(fd))
	h.s.tick()

	c, ok := h.s.conns[fd]
	if !ok {
		h.t.Fatalf("connection %d not opened", fd)
	}
	return c
}

func (h *harness) send(fd int, data string) {
	h.io.in[fd] = append(h.io.in[fd], data...)
	h.p.push(event{fd: fd, readable: true})
}

func (h *harness) written(fd int) string {
	return string(h.io.out[fd])
}

// metric returns the value of a counter or gauge, optionally the series
// with the given label value.
func (h *harness) metric(name string, labelValue ...string) float64 {
	h.t.Helper()

	families, err := h.reg.Gather()
	if err != nil {
		h.t.Fatalf("gather: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			for _, want := range labelValue {
				found := false
				for _, lp := range m.GetLabel() {
					if lp.GetValue() == want {
						found = true
					}
				}
				if !found {
					continue series
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

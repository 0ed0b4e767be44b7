package reactor

import (
	"strings"
	"testing"
	"time"

	"github.com/freekieb7/flint/test"
)

func TestShardServesRequests(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	c := h.connect(10)

	test.Equal(t, interestRead, h.p.interests[10])
	test.Equal(t, "127.0.0.1:40010", c.RemoteAddr().String())
	test.True(t, c.ID() != "")

	h.send(10, "ping\npo")
	h.s.tick()
	test.Equal(t, "ping\n", h.written(10))
	test.False(t, c.requestStart.IsZero())

	h.send(10, "ng\n")
	h.s.tick()
	test.Equal(t, "ping\npong\n", h.written(10))
	test.True(t, c.requestStart.IsZero())
	test.Equal(t, StateReading, c.State())
	test.Equal(t, float64(10), h.metric("flint_reactor_read_bytes_total"))
	test.Equal(t, float64(10), h.metric("flint_reactor_written_bytes_total"))
}

func TestShardBackpressure(t *testing.T) {
	h := newHarness(t, Config{HighWatermark: 16, LowWatermark: 4}, 10)
	c := h.connect(10)

	// The peer does not read.
	h.io.limit[10] = 0

	h.send(10, "a\nb\nc\nd\n")
	h.s.tick()

	test.True(t, c.readPaused)
	test.Equal(t, interestWrite, h.p.interests[10])
	test.Equal(t, 20, c.Outbound())
	test.Equal(t, "", h.written(10))
	test.Equal(t, float64(1), h.metric("flint_reactor_read_pauses_total"))

	// Input is left in the socket while paused.
	h.send(10, "e\n")
	h.s.tick()
	test.Equal(t, "e\n", string(h.io.in[10]))

	// The peer catches up: queued output is written and the held back
	// requests are answered before reading resumes.
	delete(h.io.limit, 10)
	h.p.push(event{fd: 10, writable: true})
	h.s.tick()

	test.False(t, c.readPaused)
	test.Equal(t, interestRead, h.p.interests[10])
	test.Equal(t, 0, c.Outbound())

	h.p.push(event{fd: 10, readable: true})
	h.s.tick()

	want := ""
	for _, line := range []string{"a", "b", "c", "d", "e"} {
		want += line + strings.Repeat(" ", 8) + "\n"
	}
	test.Equal(t, want, h.written(10))
}

func TestShardPartialWrites(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.connect(10)

	h.io.limit[10] = 3
	h.send(10, "hello\n")
	h.s.tick()

	test.Equal(t, "hel", h.written(10))
	test.Equal(t, interestRead|interestWrite, h.p.interests[10])

	h.io.limit[10] = 100
	h.p.push(event{fd: 10, writable: true})
	h.s.tick()

	test.Equal(t, "hello\n", h.written(10))
	test.Equal(t, interestRead, h.p.interests[10])
}

func TestShardIdleEviction(t *testing.T) {
	h := newHarness(t, Config{IdleTimeout: 5 * time.Second, SweepInterval: time.Second}, 0)
	h.connect(10)
	h.connect(11)

	h.clock.Advance(3 * time.Second)
	h.send(11, "keep\n")
	h.s.tick()

	h.clock.Advance(3 * time.Second)
	h.s.tick()

	test.True(t, h.io.closed[10])
	test.False(t, h.io.closed[11])
	test.True(t, h.proto.sessions[0].closed)
	test.Equal(t, 1, len(h.s.conns))
	test.Equal(t, 1, h.r.ActiveConns())
	test.Equal(t, float64(1), h.metric("flint_reactor_connections_closed_total", CloseIdle))

	_, registered := h.p.interests[10]
	test.False(t, registered)
}

func TestShardRequestTimeout(t *testing.T) {
	h := newHarness(t, Config{RequestTimeout: 2 * time.Second, IdleTimeout: time.Minute}, 0)
	h.connect(10)

	h.send(10, "partial")
	h.s.tick()

	h.clock.Advance(time.Second)
	h.s.tick()
	test.Equal(t, 0, h.proto.last().timeouts)

	h.clock.Advance(2 * time.Second)
	h.s.tick()

	test.Equal(t, 1, h.proto.last().timeouts)
	test.Equal(t, "timeout\n", h.written(10))
	test.True(t, h.io.closed[10])
	test.Equal(t, float64(1), h.metric("flint_reactor_request_timeouts_total"))
	test.Equal(t, float64(1), h.metric("flint_reactor_connections_closed_total", CloseDone))
}

func TestShardPeerClose(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.connect(10)

	h.io.eof[10] = true
	h.p.push(event{fd: 10, readable: true})
	h.s.tick()

	test.True(t, h.io.closed[10])
	test.Equal(t, float64(1), h.metric("flint_reactor_connections_closed_total", ClosePeer))
}

func TestShardPeerCloseFlushesPendingOutput(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	c := h.connect(10)

	h.io.limit[10] = 0
	h.send(10, "last\n")
	h.io.eof[10] = true
	h.s.tick()

	h.p.push(event{fd: 10, readable: true})
	h.s.tick()
	test.True(t, c.Closing())
	test.False(t, h.io.closed[10])
	test.Equal(t, interestWrite, h.p.interests[10])

	delete(h.io.limit, 10)
	h.p.push(event{fd: 10, writable: true})
	h.s.tick()

	test.Equal(t, "last\n", h.written(10))
	test.True(t, h.io.closed[10])
}

func TestShardHangup(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.connect(10)

	h.p.push(event{fd: 10, hangup: true, readable: true})
	h.s.tick()

	test.True(t, h.io.closed[10])
	test.True(t, h.proto.last().closed)
	test.True(t, h.proto.last().closeErr == nil)
}

func TestShardSessionError(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.connect(10)

	h.send(10, "ok\nfail\nnever\n")
	h.s.tick()

	test.True(t, h.io.closed[10])
	test.Equal(t, "", h.written(10))
	test.True(t, h.proto.last().closeErr != nil)
	test.Equal(t, float64(1), h.metric("flint_reactor_connections_closed_total", CloseError))
}

func TestShardCloseAfterFlush(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.connect(10)

	h.send(10, "one\nquit\nignored\n")
	h.s.tick()

	test.Equal(t, "one\nbye\n", h.written(10))
	test.True(t, h.io.closed[10])
}

func TestShardShutdownDrains(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.connect(10)

	h.io.limit[10] = 0
	h.send(10, "pending\n")
	h.s.tick()

	h.s.stop(h.clock.Now().Add(5 * time.Second))
	test.True(t, h.s.tick())
	test.False(t, h.io.closed[10])

	// Connections handed over while draining are closed right away.
	h.r.active.Add(1)
	h.s.enqueue(12, testAddr(12))
	test.True(t, h.s.tick())
	test.True(t, h.io.closed[12])

	delete(h.io.limit, 10)
	h.p.push(event{fd: 10, writable: true})
	test.False(t, h.s.tick())

	test.Equal(t, "pending\n", h.written(10))
	test.True(t, h.io.closed[10])

	h.s.shutdown()
	test.True(t, h.p.closed)
	test.Equal(t, 0, h.r.ActiveConns())

	// Late handoffs after shutdown are closed by enqueue itself.
	h.r.active.Add(1)
	h.s.enqueue(13, testAddr(13))
	test.True(t, h.io.closed[13])
	test.Equal(t, 0, h.r.ActiveConns())
}

func TestShardStopDuringWait(t *testing.T) {
	h := newHarness(t, Config{}, 0)

	h.p.onWait = func() {
		h.s.stop(h.clock.Now().Add(5 * time.Second))
	}
	test.False(t, h.s.tick())
}

func TestShardShutdownDeadline(t *testing.T) {
	h := newHarness(t, Config{}, 0)
	h.connect(10)

	h.io.limit[10] = 0
	h.send(10, "stuck\n")
	h.s.tick()

	h.s.stop(h.clock.Now().Add(time.Second))
	test.True(t, h.s.tick())

	h.clock.Advance(2 * time.Second)
	test.False(t, h.s.tick())

	test.True(t, h.io.closed[10])
	test.Equal(t, float64(1), h.metric("flint_reactor_connections_closed_total", CloseShutdown))
}

func TestShardReleasesLargeBuffers(t *testing.T) {
	h := newHarness(t, Config{ReadBufferSize: 128 << 10}, 0)
	c := h.connect(10)

	h.send(10, strings.Repeat("x", 100<<10)+"\n")
	h.s.tick()

	test.Equal(t, 0, c.Outbound())
	test.Equal(t, 0, c.out.Cap())
	test.Equal(t, 0, c.in.Cap())
}

func TestAcceptorDistributesAndLimits(t *testing.T) {
	h := newHarness(t, Config{MaxConns: 2}, 0)
	second := newShard(1, h.r, newFakePoller())

	a := &acceptor{
		ln:      &Listener{fd: 3},
		poller:  newFakePoller(),
		io:      h.io,
		shards:  []*shard{h.s, second},
		cfg:     &h.r.cfg,
		active:  &h.r.active,
		metrics: h.r.metrics,
		logger:  h.r.logger,
	}

	h.io.accept = []int{10, 11, 12}
	a.acceptAll()

	test.Equal(t, 2, h.r.ActiveConns())
	test.Equal(t, 1, len(h.s.inbox))
	test.Equal(t, 1, len(second.inbox))
	test.True(t, h.io.closed[12])
	test.Equal(t, float64(2), h.metric("flint_reactor_connections_accepted_total"))
	test.Equal(t, float64(1), h.metric("flint_reactor_connections_rejected_total"))

	a.stop()
	test.True(t, a.stopped.Load())
	test.NoError(t, a.run())
}

func TestConnState(t *testing.T) {
	test.Equal(t, "dispatching", StateDispatching.String())
	test.Equal(t, "unknown", State(42).String())
}

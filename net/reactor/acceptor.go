package reactor

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

type acceptor struct {
	ln      *Listener
	poller  poller
	io      fdio
	shards  []*shard
	cfg     *Config
	active  *atomic.Int64
	metrics *Metrics
	logger  *slog.Logger

	next    int
	stopped atomic.Bool

	// mu keeps stop from waking a poller that was already closed.
	mu     sync.Mutex
	closed bool
}

func (a *acceptor) run() error {
	defer a.closePoller()

	events := make([]event, 1)
	for !a.stopped.Load() {
		n, err := a.poller.Wait(events, a.cfg.WaitTimeout)
		if err != nil {
			return err
		}
		if n > 0 && !a.stopped.Load() {
			a.acceptAll()
		}
	}
	return nil
}

// acceptAll drains the backlog and distributes connections round-robin.
func (a *acceptor) acceptAll() {
	for {
		fd, addr, err := a.io.Accept(a.ln.fd)
		if errors.Is(err, errWouldBlock) {
			return
		}
		if err != nil {
			a.logger.Warn("accept failed", "error", err)
			return
		}

		if a.cfg.MaxConns > 0 && a.active.Load() >= int64(a.cfg.MaxConns) {
			a.io.Close(fd)
			a.metrics.Rejected.Inc()
			a.logger.Debug("connection limit reached", "remote", addr, "max_conns", a.cfg.MaxConns)
			continue
		}

		a.active.Add(1)
		a.metrics.Accepted.Inc()
		a.metrics.Active.Inc()

		s := a.shards[a.next%len(a.shards)]
		a.next++
		s.enqueue(fd, addr)
	}
}

func (a *acceptor) stop() {
	a.stopped.Store(true)

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.closed {
		a.poller.Wake()
	}
}

func (a *acceptor) closePoller() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.poller.Close()
}

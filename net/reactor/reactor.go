// Package reactor is a non-blocking TCP transport built on epoll.
//
// An acceptor hands new sockets round-robin to a fixed set of shards. Each
// shard is a goroutine locked to an OS thread with its own poller and is the
// only owner of its connections, so connection state needs no locking.
// Protocols plug in through the Protocol and Session interfaces and run
// synchronously on the shard.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrUnsupportedPlatform = errors.New("reactor: only supported on linux")
	ErrReactorClosed       = errors.New("reactor: closed")
	ErrAlreadyServing      = errors.New("reactor: already serving")
)

// Protocol creates a session for every accepted connection.
type Protocol interface {
	Open(c *Conn) Session
}

// Session is the per-connection protocol state.
type Session interface {
	// Serve consumes c.In() and queues output with c.Write. A returned
	// error closes the connection without flushing.
	Serve(c *Conn) error
	// OnTimeout is called when a request stayed incomplete longer than the
	// request timeout.
	OnTimeout(c *Conn)
	// Close releases session state. err is nil for orderly closes.
	Close(c *Conn, err error)
}

// Listener is a listening socket created by Listen.
type Listener struct {
	fd    int
	addr  net.Addr
	close func(fd int) error
	once  sync.Once
}

// Addr returns the bound address, including the port picked for ":0".
func (l *Listener) Addr() net.Addr { return l.addr }

// Close closes the socket. It is safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.close(l.fd)
	})
	return err
}

// Option configures a Reactor.
type Option func(*Reactor)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reactor) {
		r.logger = logger
	}
}

// WithMetrics sets the collectors. By default metrics go to a private
// registry.
func WithMetrics(m *Metrics) Option {
	return func(r *Reactor) {
		r.metrics = m
	}
}

const (
	reactorIdle int32 = iota
	reactorServing
	reactorClosed
)

// Reactor runs the acceptor and the shards.
type Reactor struct {
	cfg     Config
	proto   Protocol
	logger  *slog.Logger
	metrics *Metrics

	newPoller func() (poller, error)
	io        fdio
	clock     clock

	shards   []*shard
	acceptor *acceptor
	active   atomic.Int64

	mu    sync.Mutex
	state int32
	done  chan struct{}
}

// New creates a reactor serving proto.
func New(cfg Config, proto Protocol, opts ...Option) (*Reactor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reactor: invalid config: %w", err)
	}

	r := &Reactor{
		cfg:       cfg.WithDefaults(),
		proto:     proto,
		logger:    slog.Default(),
		newPoller: newPoller,
		io:        defaultIO(),
		clock:     systemClock{},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics()
	}

	return r, nil
}

// Config returns the effective configuration.
func (r *Reactor) Config() Config { return r.cfg }

// ActiveConns returns the number of open connections.
func (r *Reactor) ActiveConns() int { return int(r.active.Load()) }

// Serve runs the reactor on ln until Shutdown is called or the acceptor
// fails. The reactor takes ownership of ln.
func (r *Reactor) Serve(ln *Listener) error {
	r.mu.Lock()
	switch r.state {
	case reactorServing:
		r.mu.Unlock()
		return ErrAlreadyServing
	case reactorClosed:
		r.mu.Unlock()
		ln.Close()
		return ErrReactorClosed
	}

	if err := r.start(ln); err != nil {
		r.mu.Unlock()
		ln.Close()
		return err
	}
	r.state = reactorServing
	r.mu.Unlock()

	r.logger.Info("reactor serving", "addr", ln.Addr(), "shards", len(r.shards))

	var wg sync.WaitGroup
	for _, s := range r.shards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run()
		}()
	}

	err := r.acceptor.run()
	ln.Close()

	if err != nil {
		r.logger.Error("acceptor failed", "error", err)
		r.stopShards(r.clock.Now())
	}

	wg.Wait()
	close(r.done)
	return err
}

func (r *Reactor) start(ln *Listener) error {
	for i := range r.cfg.Shards {
		p, err := r.newPoller()
		if err != nil {
			r.closePollers()
			return err
		}
		r.shards = append(r.shards, newShard(i, r, p))
	}

	p, err := r.newPoller()
	if err != nil {
		r.closePollers()
		return err
	}
	if err := p.Add(ln.fd, interestRead); err != nil {
		p.Close()
		r.closePollers()
		return err
	}

	r.acceptor = &acceptor{
		ln:      ln,
		poller:  p,
		io:      r.io,
		shards:  r.shards,
		cfg:     &r.cfg,
		active:  &r.active,
		metrics: r.metrics,
		logger:  r.logger,
	}
	return nil
}

func (r *Reactor) closePollers() {
	for _, s := range r.shards {
		s.poller.Close()
	}
	r.shards = nil
}

// Shutdown stops accepting, lets connections flush their pending output and
// closes them. Connections still open when the shutdown timeout or the ctx
// deadline passes are closed forcibly.
func (r *Reactor) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	prev := r.state
	r.state = reactorClosed
	r.mu.Unlock()

	if prev != reactorServing {
		return nil
	}

	deadline := r.clock.Now().Add(r.cfg.ShutdownTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.acceptor.stop()
	r.stopShards(deadline)

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reactor) stopShards(deadline time.Time) {
	for _, s := range r.shards {
		s.stop(deadline)
	}
}

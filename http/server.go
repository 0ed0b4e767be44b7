package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/freekieb7/flint/net/reactor"
	"github.com/freekieb7/flint/schedule"
)

var (
	ErrServerRunning    = errors.New("http: server already running")
	ErrServerNotRunning = errors.New("http: server not running")
)

type Option func(*Server)

// WithReactorConfig sets the transport configuration.
func WithReactorConfig(cfg reactor.Config) Option {
	return func(s *Server) {
		s.reactorCfg = cfg
	}
}

// WithLimits bounds the header block and the body of requests.
func WithLimits(maxHeaderBytes, maxBodyBytes int) Option {
	return func(s *Server) {
		if maxHeaderBytes > 0 {
			s.maxHeaderBytes = maxHeaderBytes
		}
		if maxBodyBytes > 0 {
			s.maxBodyBytes = maxBodyBytes
		}
	}
}

// WithChunkSize sets the chunk size of chunked responses.
func WithChunkSize(n int) Option {
	return func(s *Server) {
		s.encoder.ChunkSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry registers the transport metrics with registry instead of a
// private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

func WithTracing(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.dispatchOpts = append(s.dispatchOpts, WithTracerProvider(tp))
	}
}

func WithMetering(mp metric.MeterProvider) Option {
	return func(s *Server) {
		s.dispatchOpts = append(s.dispatchOpts, WithMeterProvider(mp))
	}
}

// WithJob runs job in the background while the server is running.
func WithJob(job *schedule.Job) Option {
	return func(s *Server) {
		s.jobs = append(s.jobs, job)
	}
}

// run is one Start..Shutdown cycle.
type run struct {
	reactor  *reactor.Reactor
	listener *reactor.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

func (r *run) wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Server is an HTTP/1.x server on top of the reactor. Routes are registered
// through the embedded Group before Start; the route table is frozen once
// the server starts.
type Server struct {
	*Group

	name           string
	router         *Router
	dispatcher     *Dispatcher
	dispatchOpts   []DispatcherOption
	encoder        Encoder
	reactorCfg     reactor.Config
	maxHeaderBytes int
	maxBodyBytes   int
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *reactor.Metrics
	jobs           []*schedule.Job
	date           dateCache

	mu  sync.Mutex
	run *run
	ctx atomic.Pointer[context.Context]
}

// NewServer creates a server. name is sent in the Server header.
func NewServer(name string, opts ...Option) *Server {
	s := &Server{
		name:           name,
		router:         NewRouter(),
		encoder:        Encoder{ChunkSize: DefaultChunkSize},
		maxHeaderBytes: DefaultMaxHeaderBytes,
		maxBodyBytes:   DefaultMaxBodyBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = reactor.NewMetrics(reactor.WithRegistry(s.registry))
	s.dispatcher = NewDispatcher(s.router, append([]DispatcherOption{WithDispatchLogger(s.logger)}, s.dispatchOpts...)...)
	s.Group = &Group{reg: &registry{router: s.router}}

	return s
}

func (s *Server) Name() string { return s.name }

func (s *Server) Router() *Router { return s.router }

// Routes returns the registered routes.
func (s *Server) Routes() []*Route { return s.router.Routes() }

// Registry returns the registry holding the transport metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Err returns the joined registration errors.
func (s *Server) Err() error { return s.Group.reg.err() }

// CurrentDate returns the cached Date header value.
func (s *Server) CurrentDate() string { return s.date.get() }

// Addr returns the listening address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return nil
	}
	return s.run.listener.Addr()
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		return ErrServerRunning
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("http: invalid routes: %w", err)
	}

	r, err := reactor.New(s.reactorCfg, protocol{server: s},
		reactor.WithLogger(s.logger),
		reactor.WithMetrics(s.metrics),
	)
	if err != nil {
		return err
	}

	ln, err := reactor.Listen(addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	scheduler := schedule.NewScheduler(schedule.WithLogger(s.logger))
	for _, job := range s.backgroundJobs() {
		if err := scheduler.AddJob(job); err != nil {
			cancel()
			ln.Close()
			return err
		}
	}

	s.router.Freeze()
	s.date.refresh(time.Now())
	s.ctx.Store(&ctx)

	current := &run{
		reactor:  r,
		listener: ln,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.run = current

	go scheduler.Run(ctx)
	go func() {
		current.err = r.Serve(ln)
		cancel()
		close(current.done)
	}()

	s.logger.Info("server started", "name", s.name, "addr", ln.Addr(), "routes", len(s.router.Routes()))
	return nil
}

func (s *Server) backgroundJobs() []*schedule.Job {
	date := schedule.NewJob("date", time.Second, func(context.Context) error {
		s.date.refresh(time.Now())
		return nil
	})
	return append([]*schedule.Job{date}, s.jobs...)
}

// ListenAndServe starts the server and blocks until ctx is done, then shuts
// down gracefully. It also returns when the transport fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Start(addr); err != nil {
		return err
	}

	s.mu.Lock()
	current := s.run
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		err := s.Shutdown(shutdownCtx)
		if errors.Is(err, ErrServerNotRunning) {
			// Stopped through another Shutdown call.
			return current.wait(shutdownCtx)
		}
		return err
	case <-current.done:
		s.clear(current)
		return current.err
	}
}

// Shutdown stops accepting connections, flushes pending responses and
// closes all connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	current := s.run
	s.mu.Unlock()

	if current == nil {
		return ErrServerNotRunning
	}

	if err := current.reactor.Shutdown(ctx); err != nil {
		return err
	}
	// Serve reports ErrReactorClosed when the shutdown won the race with
	// its start.
	if err := current.wait(ctx); err != nil && !errors.Is(err, reactor.ErrReactorClosed) {
		return err
	}

	s.clear(current)
	s.logger.Info("server stopped", "name", s.name)
	return nil
}

// Stop shuts down with the configured shutdown timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()
	return s.Shutdown(ctx)
}

func (s *Server) clear(current *run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current.cancel()
	if s.run == current {
		s.run = nil
	}
}

func (s *Server) shutdownTimeout() time.Duration {
	return s.reactorCfg.WithDefaults().ShutdownTimeout
}

// baseContext is the parent of every request context. It is canceled when
// the server stops.
func (s *Server) baseContext() context.Context {
	if ctx := s.ctx.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

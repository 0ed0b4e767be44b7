// Package admin serves the operational side-channel of a flint server:
// Prometheus metrics, a health check and the route table. It runs on the
// standard library server on its own address, away from the reactor.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	flinthttp "github.com/freekieb7/flint/http"
)

var ErrNotStarted = errors.New("admin: not started")

// Target is the server the endpoints report on.
type Target interface {
	Name() string
	Addr() net.Addr
	Routes() []*flinthttp.Route
	Registry() *prometheus.Registry
}

// RouteInfo is one entry of /routes.
type RouteInfo struct {
	Methods   string `json:"methods"`
	Pattern   string `json:"pattern"`
	Protected bool   `json:"protected"`
}

// Routes lists the routes of target.
func Routes(target Target) []RouteInfo {
	routes := target.Routes()
	infos := make([]RouteInfo, 0, len(routes))
	for _, r := range routes {
		infos = append(infos, RouteInfo{
			Methods:   r.Method.String(),
			Pattern:   r.Pattern,
			Protected: r.Auth != nil,
		})
	}
	return infos
}

// Handler returns the admin endpoints for target.
func Handler(target Target, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(target.Registry(), promhttp.HandlerOpts{
		Registry:      target.Registry(),
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		ErrorHandling: promhttp.ContinueOnError,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if target.Addr() == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"server": target.Name(),
			"addr":   target.Addr().String(),
		})
	})

	r.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Routes(target))
	})

	return otelhttp.NewHandler(r, "admin")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server runs the admin endpoints.
type Server struct {
	addr   string
	logger *slog.Logger
	srv    *http.Server

	mu   sync.Mutex
	ln   net.Listener
	done chan error
}

func New(addr string, target Target, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = &http.Server{
		Handler:           Handler(target, s.logger),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	return s
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.done = make(chan error, 1)
	done := s.done
	s.mu.Unlock()

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	s.logger.Info("admin server started", "addr", ln.Addr())
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return ErrNotStarted
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-done
}

package http

import (
	"errors"
	"strings"
	"sync"
)

// RouteOption adjusts a single registration or every route of a group.
type RouteOption func(*routeConfig)

type routeConfig struct {
	auth       AuthModule
	public     bool
	middleware []Middleware
}

// WithAuth guards the route with an auth module.
func WithAuth(auth AuthModule) RouteOption {
	return func(c *routeConfig) {
		c.auth = auth
	}
}

// Public exempts the route from the auth module of its group.
func Public() RouteOption {
	return func(c *routeConfig) {
		c.public = true
	}
}

// WithMiddleware wraps the handler. Group middleware runs outside route
// middleware.
func WithMiddleware(middleware ...Middleware) RouteOption {
	return func(c *routeConfig) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// Controller registers a set of related routes. Mounting a controller
// gives all of them a common prefix and options, typically one auth module.
type Controller interface {
	Routes(g *Group)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(g *Group)

func (f ControllerFunc) Routes(g *Group) { f(g) }

type registry struct {
	router *Router
	mu     sync.Mutex
	errs   []error
}

func (r *registry) add(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *registry) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

// Group registers routes under a common prefix with common options.
// Registration errors are collected and reported by Server.Err and
// Server.Start.
type Group struct {
	reg    *registry
	prefix string
	opts   []RouteOption
}

func (g *Group) Handle(method Method, pattern string, handler Handler, opts ...RouteOption) {
	var cfg routeConfig
	for _, opt := range g.opts {
		opt(&cfg)
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	auth := cfg.auth
	if cfg.public {
		auth = nil
	}
	if handler != nil {
		handler = Chain(handler, cfg.middleware...)
	}

	if err := g.reg.router.Register(method, joinPath(g.prefix, pattern), handler, auth); err != nil {
		g.reg.add(err)
	}
}

func (g *Group) Get(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodGet, pattern, handler, opts...)
}

func (g *Group) Head(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodHead, pattern, handler, opts...)
}

func (g *Group) Post(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodPost, pattern, handler, opts...)
}

func (g *Group) Put(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodPut, pattern, handler, opts...)
}

func (g *Group) Patch(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodPatch, pattern, handler, opts...)
}

func (g *Group) Delete(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodDelete, pattern, handler, opts...)
}

func (g *Group) Options(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodOptions, pattern, handler, opts...)
}

func (g *Group) Trace(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodTrace, pattern, handler, opts...)
}

func (g *Group) Connect(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodConnect, pattern, handler, opts...)
}

// Any registers the handler for every method, extension methods included.
func (g *Group) Any(pattern string, handler Handler, opts ...RouteOption) {
	g.Handle(MethodAll, pattern, handler, opts...)
}

// Group creates a nested group and passes it to fn.
func (g *Group) Group(prefix string, fn func(g *Group), opts ...RouteOption) {
	fn(g.sub(prefix, opts))
}

// Mount registers a controller under prefix.
func (g *Group) Mount(prefix string, c Controller, opts ...RouteOption) {
	c.Routes(g.sub(prefix, opts))
}

func (g *Group) sub(prefix string, opts []RouteOption) *Group {
	return &Group{
		reg:    g.reg,
		prefix: joinPath(g.prefix, prefix),
		opts:   append(append([]RouteOption(nil), g.opts...), opts...),
	}
}

func joinPath(prefix, pattern string) string {
	if prefix == "" {
		return pattern
	}
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(pattern, "/")
}

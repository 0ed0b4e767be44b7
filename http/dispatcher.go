package http

import (
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/freekieb7/flint/http"

// Dispatcher resolves requests against a router, runs the route's auth
// module and invokes the handler. It never lets a handler panic escape.
type Dispatcher struct {
	router     *Router
	logger     *slog.Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
}

func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.logger = logger
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.meterProvider = mp
	}
}

// WithPropagator overrides the global propagator used to continue traces
// from request headers.
func WithPropagator(p propagation.TextMapPropagator) DispatcherOption {
	return func(c *dispatcherConfig) {
		c.propagator = p
	}
}

func NewDispatcher(router *Router, opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		propagator:     otel.GetTextMapPropagator(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &Dispatcher{
		router:     router,
		logger:     cfg.logger,
		tracer:     cfg.tracerProvider.Tracer(instrumentationName),
		propagator: cfg.propagator,
	}

	meter := cfg.meterProvider.Meter(instrumentationName)

	var err error
	d.requests, err = meter.Int64Counter("flint.http.server.requests",
		metric.WithDescription("Number of dispatched requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		d.logger.Warn("creating request counter failed", "error", err)
		d.requests = noop.Int64Counter{}
	}

	d.duration, err = meter.Float64Histogram("flint.http.server.duration",
		metric.WithDescription("Time spent dispatching a request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		d.logger.Warn("creating duration histogram failed", "error", err)
		d.duration = noop.Float64Histogram{}
	}

	return d
}

// Dispatch fills res for req. Routing failures produce 404 or 405, auth
// failures 401 or 403, and a panicking handler or auth module 500.
func (d *Dispatcher) Dispatch(req *Request, res *Response) {
	start := time.Now()

	ctx := d.propagator.Extract(req.Context(), headerCarrier{headers: &req.Headers})
	ctx, span := d.tracer.Start(ctx, "HTTP "+req.MethodName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.MethodName),
			attribute.String("url.path", req.Path),
		),
	)
	req.SetContext(ctx)

	pattern := d.dispatch(req, res)

	status := int(res.Status)
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if pattern != "" {
		span.SetAttributes(attribute.String("http.route", pattern))
	}
	if status >= 500 {
		span.SetStatus(codes.Error, StatusText(res.Status))
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("http.request.method", req.Method.String()),
		attribute.String("http.route", pattern),
		attribute.Int("http.response.status_code", status),
	)
	d.requests.Add(ctx, 1, attrs)
	d.duration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (d *Dispatcher) dispatch(req *Request, res *Response) (pattern string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"method", req.MethodName,
				"path", req.Path,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res.Error(StatusInternalServerError)
		}
	}()

	match := d.router.Resolve(req.Method, req.Path)
	switch match.Outcome {
	case NotFound:
		res.Error(StatusNotFound)
		return ""
	case MethodNotAllowed:
		res.Error(StatusMethodNotAllowed)
		res.Headers.Set("Allow", (match.Allowed &^ MethodExtension).String())
		return ""
	}

	route := match.Route
	req.Params = match.Params

	if route.Auth != nil && !d.authorize(req, res, route.Auth) {
		return route.Pattern
	}

	route.Handler(req, res)
	return route.Pattern
}

func (d *Dispatcher) authorize(req *Request, res *Response, auth AuthModule) bool {
	challenger, canChallenge := auth.(Challenger)

	ctx, ok := auth.Map(req)
	if ok && auth.Check(ctx) {
		req.Auth = ctx
		return true
	}

	// Missing credentials are always 401. Rejected credentials are 401 when
	// the client can retry through a challenge and 403 otherwise.
	if ok && !canChallenge {
		res.Error(StatusForbidden)
		return false
	}

	res.Error(StatusUnauthorized)
	if canChallenge {
		res.Headers.Set("WWW-Authenticate", challenger.Challenge())
	}
	return false
}

package reactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Close reasons used as the "reason" label of closed connections.
const (
	CloseDone     = "done"
	ClosePeer     = "peer"
	CloseIdle     = "idle"
	CloseError    = "error"
	CloseShutdown = "shutdown"
)

// MetricsConfig configures the reactor's Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "flint").
	Namespace string

	// Subsystem is the metrics subsystem (default: "reactor").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: a fresh registry owned by the Metrics.
	Registry prometheus.Registerer
}

// MetricsOption configures the reactor metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics are the connection level collectors of a reactor.
type Metrics struct {
	Active       prometheus.Gauge
	Accepted     prometheus.Counter
	Rejected     prometheus.Counter
	Closed       *prometheus.CounterVec
	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter
	ReadPauses   prometheus.Counter
	Timeouts     prometheus.Counter
}

// NewMetrics creates and registers the reactor collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := MetricsConfig{
		Namespace: "flint",
		Subsystem: "reactor",
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		Active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_active",
			Help:        "Number of open client connections",
			ConstLabels: config.ConstLabels,
		}),

		Accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_accepted_total",
			Help:        "Total number of accepted connections",
			ConstLabels: config.ConstLabels,
		}),

		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_rejected_total",
			Help:        "Total number of connections closed at accept because of the connection limit",
			ConstLabels: config.ConstLabels,
		}),

		Closed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_closed_total",
			Help:        "Total number of closed connections by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "read_bytes_total",
			Help:        "Total bytes read from client sockets",
			ConstLabels: config.ConstLabels,
		}),

		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "written_bytes_total",
			Help:        "Total bytes written to client sockets",
			ConstLabels: config.ConstLabels,
		}),

		ReadPauses: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "read_pauses_total",
			Help:        "Times reading was paused because output reached the high watermark",
			ConstLabels: config.ConstLabels,
		}),

		Timeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_timeouts_total",
			Help:        "Total number of requests that were not received in time",
			ConstLabels: config.ConstLabels,
		}),
	}
}

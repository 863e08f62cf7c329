// Package metrics exposes Prometheus collectors for the project form:
// staging outcomes, preview renders, image deletes, uploads and sessions.
//
// A *Metrics satisfies staged.Observer and imagedelete.Observer, so it can
// be handed to controllers and flows directly. All methods are safe on a
// nil receiver, which is how disabled metrics are represented.
//
//	m := metrics.New(metrics.WithNamespace("projectform"))
//	ctrl := staged.New(staged.Config{..., Observer: m})
//	r.Handle("/metrics", m.Handler())
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/projectform/pkg/imagedelete"
	"github.com/vango-dev/projectform/pkg/staged"
	"github.com/vango-dev/projectform/pkg/upload"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "projectform").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "projectform",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors.
type Metrics struct {
	filesStaged    prometheus.Counter
	filesRejected  *prometheus.CounterVec
	previews       *prometheus.CounterVec
	deletes        *prometheus.CounterVec
	uploads        prometheus.Counter
	uploadBytes    prometheus.Histogram
	activeSessions prometheus.Gauge
	protocolErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var (
	_ staged.Observer      = (*Metrics)(nil)
	_ imagedelete.Observer = (*Metrics)(nil)
)

// New registers the collectors. Registering twice on the same registry
// panics, so callers create one Metrics per process.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	m := &Metrics{
		filesStaged: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "files_staged_total",
			Help:        "Total number of files added to a staged list",
			ConstLabels: config.ConstLabels,
		}),

		filesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "files_rejected_total",
			Help:        "Total number of files rejected by staging validation",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		previews: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "previews_total",
			Help:        "Preview reads by result (rendered, dropped, failed)",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		deletes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "image_deletes_total",
			Help:        "Persisted image delete activations by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		uploads: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "uploads_total",
			Help:        "Total number of files accepted by the upload endpoint",
			ConstLabels: config.ConstLabels,
		}),

		uploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "upload_size_bytes",
			Help:        "Size of uploaded files in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{10240, 102400, 1048576, 5242880, 10485760}, // 10KB to 10MB
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of active WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),

		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "protocol_errors_total",
			Help:        "Protocol errors reported to clients by code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),
	}

	if g, ok := config.Registry.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// FilesStaged implements staged.Observer.
func (m *Metrics) FilesStaged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filesStaged.Add(float64(n))
}

// FilesRejected implements staged.Observer.
func (m *Metrics) FilesRejected(reason staged.Reason, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.filesRejected.WithLabelValues(string(reason)).Add(float64(n))
}

// PreviewRendered implements staged.Observer.
func (m *Metrics) PreviewRendered() {
	if m != nil {
		m.previews.WithLabelValues("rendered").Inc()
	}
}

// PreviewDropped implements staged.Observer.
func (m *Metrics) PreviewDropped() {
	if m != nil {
		m.previews.WithLabelValues("dropped").Inc()
	}
}

// PreviewFailed implements staged.Observer.
func (m *Metrics) PreviewFailed() {
	if m != nil {
		m.previews.WithLabelValues("failed").Inc()
	}
}

// DeleteFinished implements imagedelete.Observer.
func (m *Metrics) DeleteFinished(outcome imagedelete.Outcome) {
	if m != nil {
		m.deletes.WithLabelValues(string(outcome)).Inc()
	}
}

// UploadSaved records a stored upload. It matches upload.Config.OnSaved.
func (m *Metrics) UploadSaved(resp upload.Response) {
	if m == nil {
		return
	}
	m.uploads.Inc()
	m.uploadBytes.Observe(float64(resp.Size))
}

// SessionOpened records a new WebSocket session.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.activeSessions.Inc()
	}
}

// SessionClosed records the end of a WebSocket session.
func (m *Metrics) SessionClosed() {
	if m != nil {
		m.activeSessions.Dec()
	}
}

// ProtocolError records an error message sent to a client.
func (m *Metrics) ProtocolError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.protocolErrors.WithLabelValues(code).Inc()
}

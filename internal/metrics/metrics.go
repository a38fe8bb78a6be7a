// Package metrics exposes registry activity as Prometheus collectors.
//
// Components take a Recorder; Nop is used when metrics are not configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives registry activity.
type Recorder interface {
	// SetSize reports the number of handles currently in a set.
	SetSize(set string, n int)
	// Event counts one delivered event of the given kind.
	Event(set string, kind string)
	// WatcherFailure counts a watcher callback that panicked.
	WatcherFailure(set string)
	// Evicted counts entries dropped from a caching registry.
	Evicted(cache string, n int)
	// Generation reports the current cache generation.
	Generation(cache string, gen uint64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) SetSize(string, int) {}
func (Nop) Event(string, string) {}
func (Nop) WatcherFailure(string) {}
func (Nop) Evicted(string, int) {}
func (Nop) Generation(string, uint64) {}

// Config configures the Prometheus recorder.
type Config struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Registry    prometheus.Registerer
}

// Option configures the Prometheus recorder.
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

// WithConstLabels sets constant labels on every metric.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the registerer. Default: prometheus.DefaultRegisterer.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "rankreg",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus records into Prometheus collectors.
type Prometheus struct {
	setSize         *prometheus.GaugeVec
	eventsTotal     *prometheus.CounterVec
	watcherFailures *prometheus.CounterVec
	evictionsTotal  *prometheus.CounterVec
	generation      *prometheus.GaugeVec
}

// New creates the collectors and registers them. Registering twice on the
// same registry panics, as with promauto.
func New(opts ...Option) *Prometheus {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Prometheus{
		setSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "set_size",
			Help:        "Number of handles currently held by a ranked set",
			ConstLabels: cfg.ConstLabels,
		}, []string{"set"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "events_total",
			Help:        "Total number of add, modify and remove events dispatched",
			ConstLabels: cfg.ConstLabels,
		}, []string{"set", "kind"}),

		watcherFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "watcher_failures_total",
			Help:        "Total number of watcher callbacks that panicked",
			ConstLabels: cfg.ConstLabels,
		}, []string{"set"}),

		evictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "cache_evictions_total",
			Help:        "Total number of idle entries evicted from caching registries",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cache"}),

		generation: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "cache_generation",
			Help:        "Current flush generation of a caching registry",
			ConstLabels: cfg.ConstLabels,
		}, []string{"cache"}),
	}
}

func (p *Prometheus) SetSize(set string, n int) {
	p.setSize.WithLabelValues(set).Set(float64(n))
}

func (p *Prometheus) Event(set string, kind string) {
	p.eventsTotal.WithLabelValues(set, kind).Inc()
}

func (p *Prometheus) WatcherFailure(set string) {
	p.watcherFailures.WithLabelValues(set).Inc()
}

func (p *Prometheus) Evicted(cache string, n int) {
	if n <= 0 {
		return
	}
	p.evictionsTotal.WithLabelValues(cache).Add(float64(n))
}

func (p *Prometheus) Generation(cache string, gen uint64) {
	p.generation.WithLabelValues(cache).Set(float64(gen))
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Prometheus)(nil)
)

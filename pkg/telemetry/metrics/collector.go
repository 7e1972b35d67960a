package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures the metrics collector.
type Config struct {
	// Enabled toggles metric recording. A disabled collector still
	// registers its metrics so dashboards see zeros rather than gaps.
	Enabled bool

	// Namespace is the metric name prefix. Default: "ganymede".
	Namespace string

	// Subsystem is the metric subsystem. Default: "tracking".
	Subsystem string

	// DecisionDurationBuckets are the histogram buckets for admission
	// latency. The defaults cover the in-memory fast path through a
	// Redis round trip.
	DecisionDurationBuckets []float64
}

// Collector records admission telemetry to Prometheus. It implements
// tracking.Observer.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	trackedKeys      *prometheus.GaugeVec
	storeErrors      prometheus.Counter
}

// NewCollector creates a collector registered against registry. A nil
// registry gets a fresh one, exposed through Registry and Handler.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "ganymede"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "tracking"
	}
	if len(cfg.DecisionDurationBuckets) == 0 {
		cfg.DecisionDurationBuckets = []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total admission decisions by dimension and verdict",
			},
			[]string{"dimension", "verdict"},
		),

		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "Time spent deciding one request's admission",
				Buckets:   cfg.DecisionDurationBuckets,
			},
		),

		trackedKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tracked_keys",
				Help:      "Number of keys currently cached per dimension",
			},
			[]string{"dimension"},
		),

		storeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "store_errors_total",
				Help:      "Shared counter store failures",
			},
		),
	}

	registry.MustRegister(
		c.decisionsTotal,
		c.decisionDuration,
		c.trackedKeys,
		c.storeErrors,
	)

	return c
}

// ObserveDecision records one admission decision. An allowed request carries
// an empty dimension; it is reported under "none" to keep the label set
// closed.
func (c *Collector) ObserveDecision(dimension string, allowed bool, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}

	verdict := "denied"
	if allowed {
		verdict = "allowed"
	}
	if dimension == "" {
		dimension = "none"
	}

	c.decisionsTotal.WithLabelValues(dimension, verdict).Inc()
	c.decisionDuration.Observe(elapsed.Seconds())
}

// ObserveStoreError records a shared counter store failure.
func (c *Collector) ObserveStoreError() {
	if !c.config.Enabled {
		return
	}
	c.storeErrors.Inc()
}

// SetTrackedKeys reports the current cache size for a dimension.
func (c *Collector) SetTrackedKeys(dimension string, n int) {
	if !c.config.Enabled {
		return
	}
	c.trackedKeys.WithLabelValues(dimension).Set(float64(n))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

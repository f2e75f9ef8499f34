// Package prometheus provides a Prometheus-backed fetch.Collector. It is a
// separate package so importing it, and therefore client_golang, is opt-in.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tidecache/fetch"
)

// Collector implements fetch.Collector for Prometheus.
type Collector struct {
	cacheOps    *prometheus.CounterVec
	cacheBytes  prometheus.Gauge
	sessionReqs *prometheus.CounterVec
	sessionDur  *prometheus.HistogramVec
	pushesTotal *prometheus.CounterVec
}

// Config provides configuration options for the Prometheus collector.
type Config struct {
	// Registry is the Prometheus registry to use. If nil, uses
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace for metrics (default: "fetch").
	Namespace string
}

// NewCollector creates a new Prometheus collector with the default registry.
func NewCollector() *Collector {
	return NewCollectorWithConfig(Config{})
}

// NewCollectorWithConfig creates a new Prometheus collector with custom
// configuration.
func NewCollectorWithConfig(cfg Config) *Collector {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "fetch"
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		cacheOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_operations_total",
				Help:      "Total CacheStore operations by kind.",
			},
			[]string{"operation"}, // hit, miss, store, evict
		),
		cacheBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "cache_bytes_stored",
				Help:      "Retained bytes of the most recently stored CacheStore entry.",
			},
		),
		sessionReqs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "session_dispatch_total",
				Help:      "Total requests dispatched through a SessionPool session.",
			},
			[]string{"origin", "http_version", "result"},
		),
		sessionDur: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "session_dispatch_duration_seconds",
				Help:      "Time to response head for a dispatched request.",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2, 5, 10, 30},
			},
			[]string{"origin", "http_version"},
		),
		pushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "pushes_received_total",
				Help:      "Total HTTP/2 server pushes ingested by PushRegistry.",
			},
			[]string{"origin", "stored"},
		),
	}
}

func (c *Collector) CacheHit(string)  { c.cacheOps.WithLabelValues("hit").Inc() }
func (c *Collector) CacheMiss(string) { c.cacheOps.WithLabelValues("miss").Inc() }

func (c *Collector) CacheStore(_ string, bytes int64) {
	c.cacheOps.WithLabelValues("store").Inc()
	c.cacheBytes.Set(float64(bytes))
}

func (c *Collector) CacheEvict(string) { c.cacheOps.WithLabelValues("evict").Inc() }

func (c *Collector) SessionDispatch(origin, httpVersion string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.sessionReqs.WithLabelValues(origin, httpVersion, result).Inc()
	c.sessionDur.WithLabelValues(origin, httpVersion).Observe(duration.Seconds())
}

func (c *Collector) PushReceived(origin string, stored bool) {
	label := "false"
	if stored {
		label = "true"
	}
	c.pushesTotal.WithLabelValues(origin, label).Inc()
}

var _ fetch.Collector = (*Collector)(nil)

// Package metrics holds the Prometheus collectors for the relation query cache.
//
// Collectors are created per Metrics instance and registered on an injected
// prometheus.Registerer, so independent cache instances (and tests) never
// share global state. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "relq"
	subsystem = "cache"
)

// Metrics tracks relation cache and fetch activity.
type Metrics struct {
	// CacheHits counts relation cache lookups that found an entry.
	CacheHits prometheus.Counter
	// CacheMisses counts relation cache lookups that found nothing.
	CacheMisses prometheus.Counter
	// CacheEntries is the current number of relation cache entries.
	CacheEntries prometheus.Gauge

	// FetchesStarted counts transport calls issued. [resource].
	FetchesStarted *prometheus.CounterVec
	// FetchesShared counts requests that joined an in-flight fetch. [resource].
	FetchesShared *prometheus.CounterVec
	// FetchesFailed counts settlements in the error state. [resource].
	FetchesFailed *prometheus.CounterVec
	// InFlight is the number of fetches currently outstanding.
	InFlight prometheus.Gauge
	// FetchDuration observes transport call latency in seconds. [resource].
	FetchDuration *prometheus.HistogramVec

	// RecordsUpserted counts records written to the record store. [resource].
	RecordsUpserted *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// A nil reg creates unregistered collectors, which is useful in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hits_total",
			Help:      "Number of relation cache lookups that found an entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "misses_total",
			Help:      "Number of relation cache lookups that found no entry.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entries",
			Help:      "Current number of relation cache entries.",
		}),
		FetchesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "started_total",
			Help:      "Number of transport calls issued.",
		}, []string{"resource"}),
		FetchesShared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "shared_total",
			Help:      "Number of requests de-duplicated onto an in-flight fetch.",
		}, []string{"resource"}),
		FetchesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "failed_total",
			Help:      "Number of fetches that settled with an error.",
		}, []string{"resource"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "in_flight",
			Help:      "Number of fetches currently outstanding.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Duration of transport calls in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"resource"}),
		RecordsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "upserted_total",
			Help:      "Number of records written to the record store.",
		}, []string{"resource"}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CacheHits,
		m.CacheMisses,
		m.CacheEntries,
		m.FetchesStarted,
		m.FetchesShared,
		m.FetchesFailed,
		m.InFlight,
		m.FetchDuration,
		m.RecordsUpserted,
	}
}

// CacheLookup records a relation cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// CacheSize sets the relation cache entry gauge.
func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// FetchStarted records a transport call being issued.
func (m *Metrics) FetchStarted(resource string) {
	if m == nil {
		return
	}
	m.FetchesStarted.WithLabelValues(resource).Inc()
	m.InFlight.Inc()
}

// FetchShared records a request joining an in-flight fetch.
func (m *Metrics) FetchShared(resource string) {
	if m == nil {
		return
	}
	m.FetchesShared.WithLabelValues(resource).Inc()
}

// FetchFinished records a transport call returning.
func (m *Metrics) FetchFinished(resource string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.FetchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
	if failed {
		m.FetchesFailed.WithLabelValues(resource).Inc()
	}
}

// Upserted records n records written for resource.
func (m *Metrics) Upserted(resource string, n int) {
	if m == nil {
		return
	}
	m.RecordsUpserted.WithLabelValues(resource).Add(float64(n))
}

// Package metrics exposes cache and upstream health as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtlprog/nftdash/internal/memcache"
)

const namespace = "nftdash"

// StatsSource reports process-local cache statistics.
type StatsSource interface {
	MemoryStats() memcache.Stats
}

// Service owns a private registry with the dashboard collectors. It implements the
// refresh observer and provides the period filter's fail-open counter.
type Service struct {
	registry       *prometheus.Registry
	cacheReads     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	fetchErrors    *prometheus.CounterVec
	staleFallbacks *prometheus.CounterVec
	failOpen       prometheus.Counter
	upstream       *prometheus.CounterVec
}

// NewService creates a Service with Go runtime and process collectors registered.
func NewService() *Service {
	s := &Service{
		registry: prometheus.NewRegistry(),
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_reads_total",
			Help:      "Persistent cache reads by dataset and result.",
		}, []string{"dataset", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream dataset fetch latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"dataset"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed upstream dataset fetches.",
		}, []string{"dataset"}),
		staleFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_fallbacks_total",
			Help:      "Responses served from an expired cache entry after a failed fetch.",
		}, []string{"dataset"}),
		failOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "period_filter_unparsed_records_total",
			Help:      "Records kept by the period filter because their timestamp could not be parsed.",
		}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests to chain nodes and the explorer by host and outcome.",
		}, []string{"host", "outcome"}),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.cacheReads, s.fetchDuration, s.fetchErrors, s.staleFallbacks, s.failOpen, s.upstream,
	)
	return s
}

// ObserveCacheRead records a persistent cache lookup.
func (s *Service) ObserveCacheRead(dataset string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	s.cacheReads.WithLabelValues(dataset, result).Inc()
}

// ObserveFetch records one upstream fetch.
func (s *Service) ObserveFetch(dataset string, elapsed time.Duration, err error) {
	s.fetchDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
	if err != nil {
		s.fetchErrors.WithLabelValues(dataset).Inc()
	}
}

// ObserveStaleFallback records a response served from expired data.
func (s *Service) ObserveStaleFallback(dataset string) {
	s.staleFallbacks.WithLabelValues(dataset).Inc()
}

// ObserveUpstream records one HTTP exchange with an upstream host.
func (s *Service) ObserveUpstream(host, outcome string) {
	s.upstream.WithLabelValues(host, outcome).Inc()
}

// FailOpenCounter is handed to the period filter.
func (s *Service) FailOpenCounter() prometheus.Counter {
	return s.failOpen
}

// RegisterMemoryStats exports the view cache statistics as gauges read on scrape.
func (s *Service) RegisterMemoryStats(src StatsSource) {
	gauge := func(name, help string, f func(memcache.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "memory_cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return f(src.MemoryStats()) })
	}
	s.registry.MustRegister(
		gauge("items", "Entries held, including expired ones not yet swept.",
			func(st memcache.Stats) float64 { return float64(st.Size) }),
		gauge("expired_items", "Expired entries awaiting sweep.",
			func(st memcache.Stats) float64 { return float64(st.ExpiredCount) }),
		gauge("hit_ratio", "Hits over lookups since the last clear.",
			func(st memcache.Stats) float64 { return st.HitRatio }),
	)
}

// Registry returns the underlying registry.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

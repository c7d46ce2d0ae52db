// Package metrics defines the Prometheus instrumentation for the service:
// HTTP request counts and latency, RAG pipeline outcomes, cache hit rates,
// and ingestion throughput.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	ragQueries    *prometheus.CounterVec
	ragConfidence prometheus.Histogram
	ragDuration   prometheus.Histogram

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	ingestPapers *prometheus.CounterVec

	searchQueries prometheus.Counter
}

// New creates a Metrics set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "biorag_http_requests_total",
			Help: "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "biorag_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		ragQueries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "biorag_rag_queries_total",
			Help: "RAG queries by outcome.",
		}, []string{"outcome"}),
		ragConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "biorag_rag_confidence",
			Help:    "Citation-validation confidence of answered queries.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ragDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "biorag_rag_duration_seconds",
			Help:    "End-to-end RAG query latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "biorag_cache_hits_total",
			Help: "Response cache hits.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "biorag_cache_misses_total",
			Help: "Response cache misses.",
		}),
		ingestPapers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "biorag_ingest_papers_total",
			Help: "Papers ingested by outcome.",
		}, []string{"outcome"}),
		searchQueries: factory.NewCounter(prometheus.CounterOpts{
			Name: "biorag_search_queries_total",
			Help: "Paper search queries served.",
		}),
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished HTTP request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ObserveRAG records one finished RAG query.
func (m *Metrics) ObserveRAG(outcome string, confidence float64, d time.Duration, cached bool) {
	m.ragQueries.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.ragConfidence.Observe(confidence)
	}
	m.ragDuration.Observe(d.Seconds())
	if cached {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveIngest records one ingestion attempt.
func (m *Metrics) ObserveIngest(outcome string) {
	m.ingestPapers.WithLabelValues(outcome).Inc()
}

// ObserveSearch records one search query.
func (m *Metrics) ObserveSearch() {
	m.searchQueries.Inc()
}

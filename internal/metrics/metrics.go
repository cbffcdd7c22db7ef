// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// Metrics implements crawler.Recorder and the lookup and rate limit hooks of
// the classifier and API client.
type Metrics struct {
	pagesTotal           *prometheus.CounterVec
	candidatesTotal      *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	skippedTotal         prometheus.Counter
	lookupsTotal         *prometheus.CounterVec
	results              prometheus.Gauge
	outcomesTotal        *prometheus.CounterVec
	rateLimitDelay       *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	gatherer             prometheus.Gatherer
}

var _ crawler.Recorder = (*Metrics)(nil)

// New registers the collectors with reg. A nil reg uses a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	m := &Metrics{
		pagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualsub_search_pages_total",
			Help: "Search pages fetched, labeled by source profile and status.",
		}, []string{"profile", "status"}),
		candidatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualsub_candidates_total",
			Help: "Candidates returned by search, labeled by source profile.",
		}, []string{"profile"}),
		classificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualsub_classifications_total",
			Help: "Candidates classified, labeled by verdict.",
		}, []string{"verdict"}),
		skippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dualsub_classifications_skipped_total",
			Help: "Candidates skipped because their verdict was cached.",
		}),
		lookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualsub_track_lookups_total",
			Help: "Caption track lookups, labeled by kind and status.",
		}, []string{"kind", "status"}),
		results: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dualsub_results",
			Help: "Entries in the persisted result set.",
		}),
		outcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dualsub_runs_total",
			Help: "Finished runs, labeled by outcome.",
		}, []string{"outcome"}),
		rateLimitDelay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dualsub_rate_limit_delay_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// Handler returns an http.Handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObservePage counts one search call.
func (m *Metrics) ObservePage(profile string, items int, failed bool) {
	status := "ok"
	switch {
	case failed:
		status = "error"
	case items == 0:
		status = "empty"
	}
	m.pagesTotal.WithLabelValues(profile, status).Inc()
	if items > 0 {
		m.candidatesTotal.WithLabelValues(profile).Add(float64(items))
	}
}

// ObserveClassification counts one verdict.
func (m *Metrics) ObserveClassification(qualifies bool) {
	verdict := "rejected"
	if qualifies {
		verdict = "qualified"
	}
	m.classificationsTotal.WithLabelValues(verdict).Inc()
}

// ObserveSkipped counts a cached candidate.
func (m *Metrics) ObserveSkipped() {
	m.skippedTotal.Inc()
}

// SetResults records the size of the result set.
func (m *Metrics) SetResults(n int) {
	m.results.Set(float64(n))
}

// ObserveOutcome counts a finished run.
func (m *Metrics) ObserveOutcome(status crawler.OutcomeStatus) {
	m.outcomesTotal.WithLabelValues(string(status)).Inc()
}

// ObserveLookup counts one caption track lookup.
func (m *Metrics) ObserveLookup(kind string, failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.lookupsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (m *Metrics) ObserveRateLimitDelay(method string, delay time.Duration) {
	m.rateLimitDelay.WithLabelValues(method).Observe(delay.Seconds())
}

// ObserveHTTPRequest records one request served by the status API.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

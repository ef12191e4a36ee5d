// Package metrics exposes Prometheus collectors for the scanner, the
// upstream client and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "okxscan"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec // labels: endpoint, outcome
	UpstreamLatency  *prometheus.HistogramVec

	ScannerTicks      prometheus.Counter
	ScannerFailures   *prometheus.CounterVec // labels: bar
	ScannerRowsSaved  prometheus.Counter
	ScannerTickDur    prometheus.Histogram
	ScannerRunning    prometheus.Gauge
	SignalsTotal      *prometheus.CounterVec // labels: policy, side
	HTTPRequestsTotal *prometheus.CounterVec // labels: route, method, status
}

// New creates the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the market data source",
		}, []string{"endpoint", "outcome"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of market data requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ScannerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scanner_ticks_total",
			Help:      "Scanner batches that persisted at least one series",
		}),
		ScannerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scanner_fetch_failures_total",
			Help:      "Candle fetches skipped by the scanner",
		}, []string{"bar"}),
		ScannerRowsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scanner_rows_saved_total",
			Help:      "Candle rows appended to storage",
		}),
		ScannerTickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scanner_tick_duration_seconds",
			Help:      "Wall time of one scanner batch",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ScannerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scanner_running",
			Help:      "1 while the background scanner loop runs",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals produced by policy and side",
		}, []string{"policy", "side"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.ScannerTicks,
		m.ScannerFailures,
		m.ScannerRowsSaved,
		m.ScannerTickDur,
		m.ScannerRunning,
		m.SignalsTotal,
		m.HTTPRequestsTotal,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one upstream call.
func (m *Metrics) ObserveUpstream(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveTick records one scanner batch.
func (m *Metrics) ObserveTick(d time.Duration, saved, rows int) {
	if m == nil {
		return
	}
	m.ScannerTickDur.Observe(d.Seconds())
	if saved > 0 {
		m.ScannerTicks.Inc()
	}
	m.ScannerRowsSaved.Add(float64(rows))
}

// FetchFailed records a skipped fetch.
func (m *Metrics) FetchFailed(bar string) {
	if m == nil {
		return
	}
	m.ScannerFailures.WithLabelValues(bar).Inc()
}

// SetRunning flips the scanner gauge.
func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.ScannerRunning.Set(1)
		return
	}
	m.ScannerRunning.Set(0)
}

// SignalProduced counts one evaluated signal.
func (m *Metrics) SignalProduced(policy, side string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(policy, side).Inc()
}

// HTTPRequest counts one served request.
func (m *Metrics) HTTPRequest(route, method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

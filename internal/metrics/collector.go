// Package metrics exposes analyzer metrics in the Prometheus text format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "heimdex_analyzer"

// Collector owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	analysesTotal      *prometheus.CounterVec
	analysisDuration   *prometheus.HistogramVec
	capabilityFailures *prometheus.CounterVec
	capabilityPresent  *prometheus.GaugeVec
}

// NewCollector registers every analyzer metric plus the Go runtime and
// process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		analysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Total number of analysis requests by modality and outcome",
			},
			[]string{"modality", "status"},
		),
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Analysis duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"modality"},
		),
		capabilityFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capability_failures_total",
				Help:      "Capability calls that failed or panicked and were replaced by defaults",
			},
			[]string{"capability"},
		),
		capabilityPresent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "capability_available",
				Help:      "1 when the capability was available at startup",
			},
			[]string{"capability"},
		),
	}
}

// RequestDone records one finished analysis.
func (c *Collector) RequestDone(modality string, success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.analysesTotal.WithLabelValues(modality, status).Inc()
	c.analysisDuration.WithLabelValues(modality).Observe(elapsed.Seconds())
}

// CapabilityFailed counts a capability call whose result was dropped.
func (c *Collector) CapabilityFailed(name string) {
	c.capabilityFailures.WithLabelValues(name).Inc()
}

// RecordHTTPRequest records one served request. route is the matched route
// pattern, never the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SetCapabilities publishes the startup roster: every name in all is
// exported, set to 1 when it is also in present.
func (c *Collector) SetCapabilities(all, present []string) {
	have := make(map[string]bool, len(present))
	for _, n := range present {
		have[n] = true
	}
	for _, n := range all {
		v := 0.0
		if have[n] {
			v = 1
		}
		c.capabilityPresent.WithLabelValues(n).Set(v)
	}
}

// WatchScratch exports the number of outstanding scratch files as reported
// by fn at scrape time.
func (c *Collector) WatchScratch(fn func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scratch_files_outstanding",
			Help:      "Scratch files acquired and not yet released",
		},
		func() float64 { return float64(fn()) },
	))
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

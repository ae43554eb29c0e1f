// Package metrics holds the Prometheus collectors for remote sync, the social index, the local cache and the HTTP surface.
//
// Every method is safe to call on a nil [*Metrics], so components can run without instrumentation.
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

const namespace = "pubkytree"

// Metrics groups the collectors registered on one [prometheus.Registry].
type Metrics struct {
	registry *prometheus.Registry

	RemoteOps      *prometheus.CounterVec
	PushesInFlight prometheus.Gauge
	Syncs          *prometheus.CounterVec
	Imports        prometheus.Counter
	NexusRequests  *prometheus.CounterVec
	NexusLatency   *prometheus.HistogramVec
	CacheOps       *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, alongside the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RemoteOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_operations_total",
			Help:      "Remote store reads and writes by operation, object and outcome",
		}, []string{"operation", "object", "outcome"}),
		PushesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pushes_in_flight",
			Help:      "Remote pushes currently outstanding",
		}),
		Syncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "full_syncs_total",
			Help:      "Explicit full syncs by outcome",
		}, []string{"outcome"}),
		Imports: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "social_imports_total",
			Help:      "Social index imports applied",
		}),
		NexusRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nexus_requests_total",
			Help:      "Social index requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		NexusLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nexus_request_duration_seconds",
			Help:      "Social index request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		CacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Local cache operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by method, route and status code",
		}, []string{"method", "route", "code"}),
	}
}

// Registry returns the underlying registry, or nil.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRemote counts one remote store operation.
func (m *Metrics) ObserveRemote(operation, object string, err error) {
	if m == nil {
		return
	}
	m.RemoteOps.WithLabelValues(operation, object, outcome(err)).Inc()
}

// PushStarted raises the in-flight gauge.
func (m *Metrics) PushStarted() {
	if m == nil {
		return
	}
	m.PushesInFlight.Inc()
}

// PushFinished lowers the in-flight gauge.
func (m *Metrics) PushFinished() {
	if m == nil {
		return
	}
	m.PushesInFlight.Dec()
}

// ObserveSync counts one explicit full sync.
func (m *Metrics) ObserveSync(err error) {
	if m == nil {
		return
	}
	m.Syncs.WithLabelValues(outcome(err)).Inc()
}

// ObserveImport counts one applied social import.
func (m *Metrics) ObserveImport() {
	if m == nil {
		return
	}
	m.Imports.Inc()
}

// ObserveNexus records one social index request with its latency.
func (m *Metrics) ObserveNexus(endpoint string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.NexusRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.NexusLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// ObserveCache counts one local cache operation.
func (m *Metrics) ObserveCache(operation string, err error) {
	if m == nil {
		return
	}
	m.CacheOps.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveHTTP counts one served request.
func (m *Metrics) ObserveHTTP(method, route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

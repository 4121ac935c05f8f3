// Package metrics exposes Prometheus metrics for event firings and
// request handling.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rw"

// Recorder owns a Prometheus registry and the rw collectors registered
// on it.
type Recorder struct {
	registry *prometheus.Registry

	eventFirings    *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	routeMisses     prometheus.Counter
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		eventFirings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "event",
				Name:      "firings_total",
				Help:      "Total event firings.",
			},
			[]string{"event", "outcome"},
		),
		eventDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "event",
				Name:      "firing_duration_seconds",
				Help:      "Time until every subscriber of a firing returned.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		routeMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "misses_total",
				Help:      "Requests no route matched.",
			},
		),
	}
	r.registry.MustRegister(r.eventFirings, r.eventDuration, r.requests, r.requestDuration, r.routeMisses)
	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveEvent records one firing. Its signature matches event.Observer.
func (r *Recorder) ObserveEvent(name string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.eventFirings.WithLabelValues(name, outcome).Inc()
	r.eventDuration.WithLabelValues(name).Observe(took.Seconds())
}

// ObserveRequest records one handled request. route is the matched
// route name, or empty when nothing matched.
func (r *Recorder) ObserveRequest(method, route string, status int, took time.Duration) {
	if route == "" {
		r.routeMisses.Inc()
	}
	statusLabel := strconv.Itoa(status)
	r.requests.WithLabelValues(method, route, statusLabel).Inc()
	r.requestDuration.WithLabelValues(method, route, statusLabel).Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the auth service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	authOutcomes    *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Session authority operations by outcome.",
		}, []string{"op", "outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_events_published_total",
			Help: "Security events delivered to the queue.",
		}, []string{"kind"}),
		eventsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_events_failed_total",
			Help: "Security events the transport failed to deliver.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_events_dropped_total",
			Help: "Security events dropped because the publish queue was full.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(m.authOutcomes, m.eventsPublished, m.eventsFailed, m.eventsDropped, m.httpRequests, m.httpDuration)
	return m
}

// AuthOutcome counts one session authority operation; outcome is "ok" or an error kind.
func (m *Metrics) AuthOutcome(op, outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventFailed(kind string) {
	if m == nil {
		return
	}
	m.eventsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped(kind string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(kind).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	s := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, s).Inc()
	m.httpDuration.WithLabelValues(method, path, s).Observe(d.Seconds())
}

// Handler serves the collectors registered on gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

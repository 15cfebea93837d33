package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/doc-history/internal/domain"
)

// Metrics holds the Prometheus collectors of the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsRecorded  *prometheus.CounterVec
	changesRecorded *prometheus.CounterVec
	revisions       *prometheus.CounterVec
	forgets         *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dochistory_events_recorded_total",
			Help: "History events appended to documents.",
		}, []string{"collection"}),
		changesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dochistory_changes_recorded_total",
			Help: "Field changes recorded, by change type.",
		}, []string{"collection", "type"}),
		revisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dochistory_revisions_total",
			Help: "Documents reconstructed from history.",
		}, []string{"mode"}),
		forgets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dochistory_forget_total",
			Help: "History pruning operations.",
		}, []string{"mode"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dochistory_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dochistory_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.eventsRecorded,
		m.changesRecorded,
		m.revisions,
		m.forgets,
		m.requests,
		m.requestDuration,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEvent counts one recorded history event and its changes.
func (m *Metrics) RecordEvent(collection string, event *domain.HistoryEvent) {
	if m == nil || event == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(collection).Inc()
	for _, change := range event.Changes {
		m.changesRecorded.WithLabelValues(collection, change.Type.String()).Inc()
	}
}

// RecordRevision counts a revise call; mode is "deep" or "shallow".
func (m *Metrics) RecordRevision(deep bool) {
	if m == nil {
		return
	}
	m.revisions.WithLabelValues(modeLabel(deep, "deep", "shallow")).Inc()
}

// RecordForget counts a forget call; mode is "single" or "range".
func (m *Metrics) RecordForget(single bool) {
	if m == nil {
		return
	}
	m.forgets.WithLabelValues(modeLabel(single, "single", "range")).Inc()
}

// RecordRequest observes an HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func modeLabel(flag bool, yes, no string) string {
	if flag {
		return yes
	}
	return no
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec

	sweepRuns      *prometheus.CounterVec
	sweepDuration  *prometheus.HistogramVec
	ticketsFlagged prometheus.Counter

	alertsEmitted     *prometheus.CounterVec
	alertsSuppressed  *prometheus.CounterVec
	dispatchAttempts  *prometheus.CounterVec
	dispatchFailures  *prometheus.CounterVec
	dispatchThrottled prometheus.Counter
	escalations       prometheus.Counter
	transitions       *prometheus.CounterVec
	conflictsDetected *prometheus.CounterVec
}

// NewMetrics registers every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "locate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_http_errors_total",
			Help: "HTTP errors by domain error code",
		}, []string{"method", "path", "code"}),
		sweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_sweep_runs_total",
			Help: "Sweep runs by kind and outcome",
		}, []string{"sweep", "outcome"}),
		sweepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "locate_sweep_duration_seconds",
			Help:    "Sweep wall time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"sweep"}),
		ticketsFlagged: f.NewCounter(prometheus.CounterOpts{
			Name: "locate_tickets_flagged_total",
			Help: "Tickets flagged for manual review",
		}),
		alertsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_alerts_emitted_total",
			Help: "Alerts claimed and dispatched",
		}, []string{"alert_type", "priority"}),
		alertsSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_alerts_suppressed_total",
			Help: "Alert candidates dropped because the occurrence was already claimed",
		}, []string{"alert_type"}),
		dispatchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_dispatch_attempts_total",
			Help: "Sink send attempts by channel",
		}, []string{"channel"}),
		dispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_dispatch_failures_total",
			Help: "Alerts that exhausted their delivery attempts",
		}, []string{"alert_type"}),
		dispatchThrottled: f.NewCounter(prometheus.CounterOpts{
			Name: "locate_dispatch_throttled_total",
			Help: "Alert candidates deferred by the dispatch rate limit",
		}),
		escalations: f.NewCounter(prometheus.CounterOpts{
			Name: "locate_escalations_total",
			Help: "Acknowledgement rows escalated",
		}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_ticket_transitions_total",
			Help: "Ticket status transitions",
		}, []string{"from", "to"}),
		conflictsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "locate_conflicts_detected_total",
			Help: "Conflicts recorded by kind",
		}, []string{"kind"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(method, path, code).Inc()
}

// RecordSweep records one sweep run.
func (m *Metrics) RecordSweep(sweep, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(sweep, outcome).Inc()
	m.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}

// TicketFlagged counts a ticket sent to manual review.
func (m *Metrics) TicketFlagged() {
	if m == nil {
		return
	}
	m.ticketsFlagged.Inc()
}

// AlertEmitted counts a claimed alert.
func (m *Metrics) AlertEmitted(alertType, priority string) {
	if m == nil {
		return
	}
	m.alertsEmitted.WithLabelValues(alertType, priority).Inc()
}

// AlertSuppressed counts a duplicate occurrence.
func (m *Metrics) AlertSuppressed(alertType string) {
	if m == nil {
		return
	}
	m.alertsSuppressed.WithLabelValues(alertType).Inc()
}

// DispatchAttempt counts a sink call.
func (m *Metrics) DispatchAttempt(channel string) {
	if m == nil {
		return
	}
	m.dispatchAttempts.WithLabelValues(channel).Inc()
}

// DispatchFailed counts an alert whose retries ran out.
func (m *Metrics) DispatchFailed(alertType string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(alertType).Inc()
}

// DispatchThrottled counts a candidate deferred by the rate limit.
func (m *Metrics) DispatchThrottled() {
	if m == nil {
		return
	}
	m.dispatchThrottled.Inc()
}

// Escalated counts an escalated acknowledgement row.
func (m *Metrics) Escalated() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

// Transition counts a ticket status change.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ConflictDetected counts a new conflict record.
func (m *Metrics) ConflictDetected(kind string) {
	if m == nil {
		return
	}
	m.conflictsDetected.WithLabelValues(kind).Inc()
}

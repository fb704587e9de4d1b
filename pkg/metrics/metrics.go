package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "poflow"

// Metrics holds the collectors the service exports. A nil *Metrics is a no-op.
type Metrics struct {
	httpDuration     *prometheus.HistogramVec
	counterAllocs    *prometheus.CounterVec
	counterRetries   *prometheus.CounterVec
	approvalDecision *prometheus.CounterVec
	invoiceUploads   *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	hookFailures     *prometheus.CounterVec
}

// New registers the service metrics on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		counterAllocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_allocations_total",
			Help:      "Committed counter increments.",
		}, []string{"counter"}),
		counterRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_retries_total",
			Help:      "Counter transactions replayed after a lock or uniqueness conflict.",
		}, []string{"counter"}),
		approvalDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_transitions_total",
			Help:      "Approval workflow transitions by action.",
		}, []string{"action"}),
		invoiceUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_uploads_total",
			Help:      "Public invoice upload attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by a rate limit policy.",
		}, []string{"policy"}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "post_commit_hook_failures_total",
			Help:      "Post-commit side effects that failed or panicked.",
		}, []string{"hook"}),
	}
	reg.MustRegister(
		m.httpDuration,
		m.counterAllocs,
		m.counterRetries,
		m.approvalDecision,
		m.invoiceUploads,
		m.rateLimited,
		m.hookFailures,
	)
	return m
}

// Handler exposes the gathered metrics in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(duration.Seconds())
}

// IncCounterAllocation counts a committed counter value.
func (m *Metrics) IncCounterAllocation(counter string) {
	if m == nil || m.counterAllocs == nil {
		return
	}
	m.counterAllocs.WithLabelValues(normalizeLabel(counter)).Inc()
}

// IncCounterRetry counts a replayed counter transaction.
func (m *Metrics) IncCounterRetry(counter string) {
	if m == nil || m.counterRetries == nil {
		return
	}
	m.counterRetries.WithLabelValues(normalizeLabel(counter)).Inc()
}

// IncApprovalTransition counts an approval workflow action.
func (m *Metrics) IncApprovalTransition(action string) {
	if m == nil || m.approvalDecision == nil {
		return
	}
	m.approvalDecision.WithLabelValues(normalizeLabel(action)).Inc()
}

// IncInvoiceUpload counts a public upload attempt.
func (m *Metrics) IncInvoiceUpload(outcome string) {
	if m == nil || m.invoiceUploads == nil {
		return
	}
	m.invoiceUploads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRateLimited counts a rejected request.
func (m *Metrics) IncRateLimited(policy string) {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.WithLabelValues(normalizeLabel(policy)).Inc()
}

// IncHookFailure counts a failed post-commit hook.
func (m *Metrics) IncHookFailure(hook string) {
	if m == nil || m.hookFailures == nil {
		return
	}
	m.hookFailures.WithLabelValues(normalizeLabel(hook)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

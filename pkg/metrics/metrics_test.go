package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExportCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveHTTP(http.MethodPost, "/api/v1/approvals/{approvalId}/approve", http.StatusOK, 120*time.Millisecond)
	m.IncCounterAllocation("po_number")
	m.IncCounterAllocation("po_number")
	m.IncCounterRetry("po_number")
	m.IncApprovalTransition("APPROVED")
	m.IncInvoiceUpload("accepted")
	m.IncRateLimited("public_invoice")
	m.IncHookFailure("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name, label, value string
		want               float64
	}{
		{"poflow_counter_allocations_total", "counter", "po_number", 2},
		{"poflow_counter_retries_total", "counter", "po_number", 1},
		{"poflow_approval_transitions_total", "action", "APPROVED", 1},
		{"poflow_invoice_uploads_total", "outcome", "accepted", 1},
		{"poflow_rate_limited_requests_total", "policy", "public_invoice", 1},
		{"poflow_post_commit_hook_failures_total", "hook", "unknown", 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("expected %s=%v, got %v", c.name, c.want, got)
		}
	}

	if got, err := fetchHistogramSum(mfs, "poflow_http_request_duration_seconds", "route", "/api/v1/approvals/{approvalId}/approve"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/", 200, time.Second)
	m.IncCounterAllocation("x")
	m.IncHookFailure("x")

	unregistered := New(nil)
	unregistered.IncRateLimited("x")
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).IncInvoiceUpload("rejected")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `poflow_invoice_uploads_total{outcome="rejected"} 1`) {
		t.Fatalf("metrics output missing counter: %s", body)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authflow"
)

type fakeSource struct {
	snapshot authflow.MetricsSnapshot
	dropped  uint64
	failed   uint64
}

func (f fakeSource) MetricsSnapshot() authflow.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }
func (f fakeSource) AuditFailed() uint64                       { return f.failed }

func emptySnapshot() authflow.MetricsSnapshot {
	return authflow.MetricsSnapshot{
		Counters:   map[authflow.MetricID]uint64{},
		Histograms: map[authflow.MetricID][]uint64{},
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{snapshot: emptySnapshot()})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got:\n%s", got)
	}
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters: map[authflow.MetricID]uint64{
				authflow.MetricCredentialFailure: 7,
				authflow.MetricRateLimitHit:      2,
			},
			Histograms: map[authflow.MetricID][]uint64{
				authflow.MetricCredentialLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
		failed:  4,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE authflow_credential_failure_total counter",
		"authflow_credential_failure_total 7",
		"authflow_rate_limit_hit_total 2",
		"authflow_session_created_total 0",
		`authflow_credential_latency_seconds_bucket{le="0.005"} 1`,
		`authflow_credential_latency_seconds_bucket{le="+Inf"} 36`,
		"authflow_credential_latency_seconds_count 36",
		"authflow_audit_dropped_total 3",
		"# TYPE authflow_audit_failed_total counter",
		"authflow_audit_failed_total 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestRenderOnlyDroppedAudit(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{snapshot: emptySnapshot(), dropped: 1})
	if out := exp.Render(); !strings.Contains(out, "authflow_audit_dropped_total 1") {
		t.Fatalf("expected dropped counter, got:\n%s", out)
	}
}

func TestRenderOnlyFailedAudit(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{snapshot: emptySnapshot(), failed: 2})
	out := exp.Render()
	if !strings.Contains(out, "authflow_audit_failed_total 2") {
		t.Fatalf("expected failed counter, got:\n%s", out)
	}
	if !strings.Contains(out, "authflow_audit_dropped_total 0") {
		t.Fatalf("expected zero dropped counter, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporter(fakeSource{
		snapshot: authflow.MetricsSnapshot{
			Counters:   map[authflow.MetricID]uint64{authflow.MetricSessionCreated: 1},
			Histograms: map[authflow.MetricID][]uint64{},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected text exposition content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNilExporterRendersNothing(t *testing.T) {
	var exp *PrometheusExporter
	if exp.Render() != "" {
		t.Fatal("nil exporter must render nothing")
	}
}

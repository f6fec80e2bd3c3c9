package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/authflow"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[authflow.MetricID]uint64
	latency  []uint64
	dropped  uint64
	failed   uint64
}

func (f *fakeSource) MetricsSnapshot() authflow.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authflow.MetricsSnapshot{
		Counters:   make(map[authflow.MetricID]uint64, len(f.counters)),
		Histograms: map[authflow.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[authflow.MetricCredentialLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) AuditFailed() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.failed
}

func newMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func sumValue(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterCollectsValues(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{
		counters: map[authflow.MetricID]uint64{authflow.MetricSecondFactorFailure: 3},
		latency:  []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		dropped:  1,
		failed:   2,
	}

	exp, err := NewOTelExporter(provider.Meter("authflow-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporter: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	checks := map[string]int64{
		"authflow_second_factor_failure_total":                3,
		"authflow_audit_dropped_total":                        1,
		"authflow_audit_failed_total":                         2,
		"authflow_credential_latency_seconds_count":           8,
		"authflow_credential_latency_seconds_bucket_le_0_005": 1,
	}
	for name, want := range checks {
		got, ok := sumValue(rm, name)
		if !ok {
			t.Fatalf("metric %s not collected", name)
		}
		if got != want {
			t.Fatalf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newMeter()
	if _, err := NewOTelExporter(provider.Meter("authflow-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewOTelExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newMeter()
	src := &fakeSource{counters: map[authflow.MetricID]uint64{authflow.MetricSessionCreated: 1}}

	exp, err := NewOTelExporter(provider.Meter("authflow-test"), src)
	if err != nil {
		t.Fatalf("NewOTelExporter: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[authflow.MetricSessionCreated] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("otel: nil meter")
	ErrNilSource = errors.New("otel: nil metrics source")
)

// Source is satisfied by *authflow.Engine.
type Source interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
	AuditFailed() uint64
}

type counterBinding struct {
	id         authflow.MetricID
	instrument metric.Int64ObservableCounter
}

type histogramBinding struct {
	id      authflow.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

type OTelExporter struct {
	source       Source
	registration metric.Registration
	counters     []counterBinding
	histograms   []histogramBinding
	auditDropped metric.Int64ObservableCounter
	auditFailed  metric.Int64ObservableCounter
}

// NewOTelExporter creates one instrument per authflow metric on meter and
// registers a callback that observes them all. Close unregisters it.
func NewOTelExporter(meter metric.Meter, source Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterBinding{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := histogramBinding{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative bucket count."))
			if err != nil {
				return nil, fmt.Errorf("otel: bucket %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Total samples."))
		if err != nil {
			return nil, fmt.Errorf("otel: count %s: %w", def.Name, err)
		}
		h.count = count
		observables = append(observables, count)
		e.histograms = append(e.histograms, h)
	}

	dropped, err := meter.Int64ObservableCounter(
		"authflow_audit_dropped_total",
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: audit dropped: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	failed, err := meter.Int64ObservableCounter(
		"authflow_audit_failed_total",
		metric.WithDescription("Audit events the sink failed to write."),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: audit failed: %w", err)
	}
	e.auditFailed = failed
	observables = append(observables, failed)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	o.ObserveInt64(e.auditFailed, int64(e.source.AuditFailed()))
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
)

// Source is satisfied by *authflow.Engine.
type Source interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
	AuditFailed() uint64
}

type PrometheusExporter struct {
	source Source
}

func NewPrometheusExporter(source Source) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" when metrics are disabled and no
// audit event was dropped or failed.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	failed := p.source.AuditFailed()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 && failed == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(&b, def.Name, def.Help, buckets)
	}
	writeCounter(&b, "authflow_audit_dropped_total", "Audit events dropped under dispatcher backpressure.", dropped)
	writeCounter(&b, "authflow_audit_failed_total", "Audit events the sink failed to write.", failed)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	b.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	b.WriteString(name + " " + strconv.FormatUint(value, 10) + "\n")
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative[i], 10) + "\n")
	}
	b.WriteString(name + "_count " + strconv.FormatUint(cumulative[len(cumulative)-1], 10) + "\n")
	// Snapshots carry bucket counts only.
	b.WriteString(name + "_sum 0\n")
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

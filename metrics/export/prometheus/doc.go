// Package prometheus renders authflow counters in the Prometheus text
// exposition format.
//
// Counters are named authflow_*_total; the single histogram is
// authflow_credential_latency_seconds. Nothing is registered globally: mount
// [PrometheusExporter.Handler] where it is needed.
package prometheus

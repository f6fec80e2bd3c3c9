// Package otel publishes authflow counters as OpenTelemetry observable
// instruments. The caller owns the MeterProvider and passes a Meter; one
// callback reads Engine.MetricsSnapshot per collection.
package otel

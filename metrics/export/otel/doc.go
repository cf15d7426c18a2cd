// Package otel mirrors goIdentity engine metrics into OpenTelemetry.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter
// and, for the sign-in latency histogram, a bucket gauge with one series per
// "le" bound plus a count gauge. A single callback reads the engine snapshot
// on each collection. Callers own the MeterProvider.
package otel

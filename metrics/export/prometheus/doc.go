// Package prometheus exposes goIdentity engine metrics to Prometheus.
//
// [PrometheusExporter] renders every counter and the sign-in latency
// histogram in text exposition format through Handler, and also implements
// the client_golang Collector interface for registration in a caller-owned
// registry. Counter names are goidentity_*_total; the histogram is
// goidentity_sign_in_latency_seconds. Nothing is registered globally.
package prometheus

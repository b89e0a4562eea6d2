// Package prometheus exposes identity engine metrics as a
// prometheus.Collector.
//
// [NewCollector] wraps an [identity.Engine]; every scrape takes one
// MetricsSnapshot. Counter names are identity_*_total and the single
// histogram is identity_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers choose one.
//   - Mutate engine state.
package prometheus

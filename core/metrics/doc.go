// Package metrics defines the sink interface through which the poller
// reports status snapshots, quota readings, fetch outcomes and scheduler
// actions. Prometheus and InfluxDB sinks live in infra/metrics and can be
// combined with a MultiSink.
package metrics

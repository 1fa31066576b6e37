package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/loadshed-mqtt/core/metrics"
)

// NewSink builds the sinks enabled in cfg. Prometheus collectors are
// registered on reg. With nothing enabled a NopSink is returned.
func NewSink(cfg Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		ps, err := NewPromSinkWithRegistry(reg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ps)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}

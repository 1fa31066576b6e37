package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/loadshed-mqtt/core/metrics"
)

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) each(fn func(coremetrics.Sink) error) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordStatus forwards the snapshot to every sink and joins their errors.
func (m *MultiSink) RecordStatus(ev coremetrics.StatusEvent) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordStatus(ev) })
}

func (m *MultiSink) RecordAllowance(ev coremetrics.AllowanceEvent) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordAllowance(ev) })
}

func (m *MultiSink) RecordFetch(ev coremetrics.FetchEvent) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordFetch(ev) })
}

func (m *MultiSink) RecordAction(ev coremetrics.ActionEvent) error {
	return m.each(func(s coremetrics.Sink) error { return s.RecordAction(ev) })
}

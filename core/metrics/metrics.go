package metrics

import (
	"time"

	"github.com/kilianp07/loadshed-mqtt/core/allowance"
	"github.com/kilianp07/loadshed-mqtt/core/status"
)

// StatusEvent is a computed status snapshot.
type StatusEvent struct {
	AreaID string
	Status status.Status
	Events int
	Time   time.Time
}

// AllowanceEvent is a quota reading.
type AllowanceEvent struct {
	State allowance.State
	Time  time.Time
}

// FetchEvent records one call to the upstream API.
type FetchEvent struct {
	// Endpoint is "allowance" or "schedule".
	Endpoint string
	Err      error
	Latency  time.Duration
	Time     time.Time
}

// ActionEvent records a scheduler action taken on a tick.
type ActionEvent struct {
	Action string
	Time   time.Time
}

// Sink records poller activity for observability purposes.
type Sink interface {
	RecordStatus(ev StatusEvent) error
	RecordAllowance(ev AllowanceEvent) error
	RecordFetch(ev FetchEvent) error
	RecordAction(ev ActionEvent) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordStatus(StatusEvent) error       { return nil }
func (NopSink) RecordAllowance(AllowanceEvent) error { return nil }
func (NopSink) RecordFetch(FetchEvent) error         { return nil }
func (NopSink) RecordAction(ActionEvent) error       { return nil }

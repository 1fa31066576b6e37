// Package status reduces a list of scheduled outages and the current time
// to the published loadshedding status.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/loadshed-mqtt/core/event"
)

// NotSheddingNote is the note reported when no outage is active.
const NotSheddingNote = "Not loadshedding"

// NextEndPolicy selects which events contribute to Status.NextEnd.
type NextEndPolicy int

const (
	// NextEndAny considers every event ending after now, including the
	// currently active one.
	NextEndAny NextEndPolicy = iota
	// NextEndUpcoming only considers events that have not started yet.
	NextEndUpcoming
)

func (p NextEndPolicy) String() string {
	switch p {
	case NextEndAny:
		return "any"
	case NextEndUpcoming:
		return "upcoming"
	default:
		return fmt.Sprintf("NextEndPolicy(%d)", int(p))
	}
}

// ParseNextEndPolicy parses "any" or "upcoming". Empty selects NextEndAny.
func ParseNextEndPolicy(s string) (NextEndPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return NextEndAny, nil
	case "upcoming":
		return NextEndUpcoming, nil
	default:
		return 0, fmt.Errorf("unknown next end policy %q", s)
	}
}

// Config holds the thresholds used by Compute.
type Config struct {
	Warn5Min  time.Duration
	Warn15Min time.Duration
	// Recheck is the default distance to the next wake when no transition
	// is closer.
	Recheck time.Duration
	NextEnd NextEndPolicy
}

// DefaultConfig returns 5 and 15 minute warnings with a 5 minute recheck.
func DefaultConfig() Config {
	return Config{
		Warn5Min:  5 * time.Minute,
		Warn15Min: 15 * time.Minute,
		Recheck:   5 * time.Minute,
		NextEnd:   NextEndAny,
	}
}

// Status is the snapshot derived from the event list at a given time.
type Status struct {
	LoadShedding bool    `json:"loadshedding" yaml:"loadshedding"`
	Note         string  `json:"note" yaml:"note"`
	NextStart    Instant `json:"next_start" yaml:"next_start"`
	NextEnd      Instant `json:"next_end" yaml:"next_end"`
	EndOfCurrent Instant `json:"end_of_current" yaml:"end_of_current"`
	Warning5Min  bool    `json:"warning_5min" yaml:"warning_5min"`
	Warning15Min bool    `json:"warning_15min" yaml:"warning_15min"`
	// NextWake is the earliest instant at which recomputing may change
	// any of the fields above.
	NextWake time.Time `json:"next_wake" yaml:"next_wake"`
}

// Compute derives the status at now. Events may be in any order. When
// several active events overlap, the last one in input order provides the
// note and end of the current outage.
func Compute(events []event.Event, now time.Time, cfg Config) Status {
	st := Status{Note: NotSheddingNote}

	for _, ev := range events {
		if ev.Active(now) {
			st.LoadShedding = true
			st.EndOfCurrent = At(ev.End)
			st.Note = ev.Note
		}
		upcoming := ev.Upcoming(now)
		if upcoming {
			st.NextStart = st.NextStart.Min(At(ev.Start))
		}
		if ev.End.After(now) && (upcoming || cfg.NextEnd == NextEndAny) {
			st.NextEnd = st.NextEnd.Min(At(ev.End))
		}
	}

	st.NextWake = now.Add(cfg.Recheck)
	if start, ok := st.NextStart.Time(); ok {
		lead := start.Sub(now)
		st.Warning5Min = lead < cfg.Warn5Min
		st.Warning15Min = lead < cfg.Warn15Min
		if !st.Warning5Min {
			st.NextWake = start.Add(-cfg.Warn5Min)
		}
		if !st.Warning15Min {
			st.NextWake = earliest(st.NextWake, start.Add(-cfg.Warn15Min))
		}
		st.NextWake = earliest(st.NextWake, start)
	}
	if end, ok := st.EndOfCurrent.Time(); ok && st.LoadShedding {
		st.NextWake = earliest(st.NextWake, end)
	}
	return st
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

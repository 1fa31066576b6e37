// Package event models the scheduled outage windows returned by the
// schedule feed.
package event

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent is returned when a raw feed record cannot be turned into an Event.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one scheduled outage window. Start is inclusive, End exclusive.
type Event struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
	Note  string    `json:"note" yaml:"note"`
}

// Raw is an event as received from the feed, timestamps still as text.
type Raw struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Note  string `json:"note"`
}

// layouts accepted for feed timestamps, tried in order.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
}

// ParseTime parses an ISO-8601 timestamp carrying a UTC offset.
func ParseTime(s string) (time.Time, error) {
	var firstErr error
	for _, l := range layouts {
		t, err := time.Parse(l, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Parse converts raw records into events, preserving input order. A single
// bad record fails the whole batch so the caller can keep its previous list.
func Parse(raw []Raw) ([]Event, error) {
	events := make([]Event, 0, len(raw))
	for i, r := range raw {
		start, err := ParseTime(r.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d start %q: %v", ErrInvalidEvent, i, r.Start, err)
		}
		end, err := ParseTime(r.End)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d end %q: %v", ErrInvalidEvent, i, r.End, err)
		}
		if !end.After(start) {
			return nil, fmt.Errorf("%w: record %d ends at or before its start", ErrInvalidEvent, i)
		}
		events = append(events, Event{Start: start, End: end, Note: r.Note})
	}
	return events, nil
}

// Active reports whether now falls inside [Start, End).
func (e Event) Active(now time.Time) bool {
	return !now.Before(e.Start) && now.Before(e.End)
}

// Upcoming reports whether the event starts after now.
func (e Event) Upcoming(now time.Time) bool {
	return e.Start.After(now)
}

// Duration returns the length of the window.
func (e Event) Duration() time.Duration { return e.End.Sub(e.Start) }

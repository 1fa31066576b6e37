// Package allowance tracks the upstream API call quota and spreads the
// remaining calls over the rest of the day.
package allowance

import "time"

// Quota is the allowance as reported by the API.
type Quota struct {
	Count int    `json:"count"`
	Limit int    `json:"limit"`
	Kind  string `json:"type"`
}

// State is the last known quota together with the derived refresh time.
type State struct {
	Count       int       `json:"count" yaml:"count"`
	Limit       int       `json:"limit" yaml:"limit"`
	Kind        string    `json:"kind" yaml:"kind"`
	LastRefresh time.Time `json:"last_refresh" yaml:"last_refresh"`
	NextRefresh time.Time `json:"next_refresh" yaml:"next_refresh"`
}

// Known reports whether a quota has been fetched at least once.
func (s State) Known() bool { return !s.LastRefresh.IsZero() }

// Remaining returns the number of calls left, never negative.
func (s State) Remaining() int {
	if r := s.Limit - s.Count; r > 0 {
		return r
	}
	return 0
}

// Exhausted reports whether no calls remain until the quota resets.
func (s State) Exhausted() bool { return s.Remaining() == 0 }

// Tracker derives refresh times in the location where the quota resets.
type Tracker struct {
	Location *time.Location
}

// NewTracker returns a Tracker for loc. A nil loc uses time.Local.
func NewTracker(loc *time.Location) Tracker {
	if loc == nil {
		loc = time.Local
	}
	return Tracker{Location: loc}
}

// Refresh records q as fetched at now. NextRefresh spreads the remaining
// calls evenly until the next local midnight, keeping one call in reserve;
// an exhausted quota waits for midnight.
func (t Tracker) Refresh(q Quota, now time.Time) State {
	st := State{
		Count:       q.Count,
		Limit:       q.Limit,
		Kind:        q.Kind,
		LastRefresh: now,
	}
	midnight := t.NextMidnight(now)
	remaining := q.Limit - q.Count
	if remaining <= 0 {
		st.NextRefresh = midnight
		return st
	}
	st.NextRefresh = now.Add(midnight.Sub(now) / time.Duration(remaining+1))
	return st
}

// NextMidnight returns the start of the day following now in the tracker's location.
func (t Tracker) NextMidnight(now time.Time) time.Time {
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

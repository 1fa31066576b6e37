package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loadshed-mqtt/core/event"
)

var now = time.Date(2023, 3, 14, 12, 0, 0, 0, time.FixedZone("SAST", 2*3600))

func ev(start, end time.Duration, note string) event.Event {
	return event.Event{Start: now.Add(start), End: now.Add(end), Note: note}
}

func TestComputeEmpty(t *testing.T) {
	st := Compute(nil, now, DefaultConfig())
	assert.False(t, st.LoadShedding)
	assert.Equal(t, NotSheddingNote, st.Note)
	assert.False(t, st.NextStart.IsSet())
	assert.False(t, st.NextEnd.IsSet())
	assert.False(t, st.EndOfCurrent.IsSet())
	assert.False(t, st.Warning5Min)
	assert.False(t, st.Warning15Min)
	assert.Equal(t, now.Add(5*time.Minute), st.NextWake)
}

func TestComputeImminentOutage(t *testing.T) {
	st := Compute([]event.Event{ev(2*time.Minute, 32*time.Minute, "block 4")}, now, DefaultConfig())
	assert.False(t, st.LoadShedding)
	assert.True(t, st.Warning5Min)
	assert.True(t, st.Warning15Min)
	assert.True(t, st.NextStart.Equal(At(now.Add(2*time.Minute))))
	assert.True(t, st.NextEnd.Equal(At(now.Add(32*time.Minute))))
	// default recheck is past the start, so wake at the start itself
	assert.Equal(t, now.Add(2*time.Minute), st.NextWake)
}

func TestComputeActiveOutage(t *testing.T) {
	st := Compute([]event.Event{ev(-10*time.Minute, 20*time.Minute, "block 2")}, now, DefaultConfig())
	assert.True(t, st.LoadShedding)
	assert.Equal(t, "block 2", st.Note)
	assert.True(t, st.EndOfCurrent.Equal(At(now.Add(20*time.Minute))))
	assert.False(t, st.NextStart.IsSet())
	assert.False(t, st.Warning5Min)
	assert.Equal(t, now.Add(5*time.Minute), st.NextWake)
}

func TestComputeWakesAtEndOfCurrent(t *testing.T) {
	st := Compute([]event.Event{ev(-10*time.Minute, 2*time.Minute, "block 2")}, now, DefaultConfig())
	assert.Equal(t, now.Add(2*time.Minute), st.NextWake)
}

func TestComputeOverlapLastWins(t *testing.T) {
	events := []event.Event{
		ev(-30*time.Minute, 60*time.Minute, "first"),
		ev(-10*time.Minute, 30*time.Minute, "second"),
	}
	st := Compute(events, now, DefaultConfig())
	assert.True(t, st.LoadShedding)
	assert.Equal(t, "second", st.Note)
	assert.True(t, st.EndOfCurrent.Equal(At(now.Add(30*time.Minute))))

	events[0], events[1] = events[1], events[0]
	st = Compute(events, now, DefaultConfig())
	assert.Equal(t, "first", st.Note)
	assert.True(t, st.EndOfCurrent.Equal(At(now.Add(60*time.Minute))))
}

func TestComputeNextEndPolicy(t *testing.T) {
	events := []event.Event{
		ev(-10*time.Minute, 20*time.Minute, "now"),
		ev(2*time.Hour, 4*time.Hour, "later"),
	}
	cfg := DefaultConfig()
	st := Compute(events, now, cfg)
	assert.True(t, st.NextEnd.Equal(At(now.Add(20*time.Minute))))

	cfg.NextEnd = NextEndUpcoming
	st = Compute(events, now, cfg)
	assert.True(t, st.NextEnd.Equal(At(now.Add(4*time.Hour))))
}

func TestComputeWakeSchedule(t *testing.T) {
	cases := []struct {
		name     string
		startIn  time.Duration
		wantWake time.Duration
		want5    bool
		want15   bool
	}{
		{"far away", 3 * time.Hour, 3*time.Hour - 15*time.Minute, false, false},
		{"inside 15", 10 * time.Minute, 5 * time.Minute, false, true},
		{"inside 5", 4 * time.Minute, 4 * time.Minute, true, true},
		{"just outside 15", 16 * time.Minute, time.Minute, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := Compute([]event.Event{ev(tc.startIn, tc.startIn+2*time.Hour, "x")}, now, DefaultConfig())
			assert.Equal(t, tc.want5, st.Warning5Min)
			assert.Equal(t, tc.want15, st.Warning15Min)
			assert.Equal(t, now.Add(tc.wantWake), st.NextWake)
		})
	}
}

func TestComputeNextStartIsMinimum(t *testing.T) {
	events := []event.Event{
		ev(5*time.Hour, 6*time.Hour, "c"),
		ev(-3*time.Hour, -2*time.Hour, "past"),
		ev(1*time.Hour, 2*time.Hour, "a"),
		ev(3*time.Hour, 4*time.Hour, "b"),
	}
	st := Compute(events, now, DefaultConfig())
	assert.True(t, st.NextStart.Equal(At(now.Add(time.Hour))))
	assert.True(t, st.NextEnd.Equal(At(now.Add(2*time.Hour))))
	assert.False(t, st.LoadShedding)
}

func TestComputeSampledProperties(t *testing.T) {
	events := []event.Event{
		ev(30*time.Minute, 150*time.Minute, "b"),
		ev(-60*time.Minute, 0, "a"),
		ev(240*time.Minute, 270*time.Minute, "c"),
	}
	cfg := DefaultConfig()
	for off := -90 * time.Minute; off <= 300*time.Minute; off += time.Minute {
		at := now.Add(off)
		st := Compute(events, at, cfg)

		inside := false
		var wantNext Instant
		for _, e := range events {
			if !at.Before(e.Start) && at.Before(e.End) {
				inside = true
			}
			if e.Start.After(at) {
				wantNext = wantNext.Min(At(e.Start))
			}
		}
		require.Equal(t, inside, st.LoadShedding, "offset %v", off)
		require.True(t, wantNext.Equal(st.NextStart), "offset %v", off)
		if st.Warning5Min {
			require.True(t, st.Warning15Min, "offset %v", off)
		}
		require.False(t, st.NextWake.Before(at), "offset %v", off)
		require.Equal(t, st, Compute(events, at, cfg), "offset %v", off)
	}
}

func TestParseNextEndPolicy(t *testing.T) {
	p, err := ParseNextEndPolicy("")
	require.NoError(t, err)
	assert.Equal(t, NextEndAny, p)
	p, err = ParseNextEndPolicy("Upcoming")
	require.NoError(t, err)
	assert.Equal(t, NextEndUpcoming, p)
	assert.Equal(t, "upcoming", p.String())
	_, err = ParseNextEndPolicy("gated")
	assert.Error(t, err)
}

func TestInstantOrdering(t *testing.T) {
	a := At(now)
	b := At(now.Add(time.Second))
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, a.Before(None()))
	assert.False(t, None().Before(a))
	assert.False(t, None().Before(None()))
	assert.True(t, None().Min(a).Equal(a))
	assert.True(t, None().Equal(Instant{}))
	assert.Equal(t, "", None().Format(time.RFC3339, nil))
	assert.Equal(t, "2023-03-14T10:00:00Z", a.Format(time.RFC3339, time.UTC))
}

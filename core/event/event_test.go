package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreservesOrder(t *testing.T) {
	raw := []Raw{
		{Start: "2022-08-08T20:00:00+02:00", End: "2022-08-08T22:30:00+02:00", Note: "Stage 2"},
		{Start: "2022-08-08T04:00:00+02:00", End: "2022-08-08T06:30:00+02:00", Note: "Stage 1"},
	}
	events, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Stage 2", events[0].Note)
	assert.Equal(t, "Stage 1", events[1].Note)

	loc := time.FixedZone("SAST", 2*3600)
	assert.True(t, events[0].Start.Equal(time.Date(2022, 8, 8, 20, 0, 0, 0, loc)))
	assert.Equal(t, 150*time.Minute, events[0].Duration())
}

func TestParseAcceptedLayouts(t *testing.T) {
	want := time.Date(2022, 8, 8, 18, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2022-08-08T20:00:00+02:00",
		"2022-08-08T20:00+02:00",
		"2022-08-08T18:00:00Z",
		"2022-08-08T20:00:00.000+02:00",
		"2022-08-08T20:00:00+0200",
	} {
		got, err := ParseTime(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), s)
	}
}

func TestParseAllOrNothing(t *testing.T) {
	cases := map[string][]Raw{
		"bad start": {
			{Start: "2022-08-08T20:00:00+02:00", End: "2022-08-08T22:30:00+02:00"},
			{Start: "tomorrow", End: "2022-08-08T22:30:00+02:00"},
		},
		"bad end": {
			{Start: "2022-08-08T20:00:00+02:00", End: ""},
		},
		"end before start": {
			{Start: "2022-08-08T20:00:00+02:00", End: "2022-08-08T19:00:00+02:00"},
		},
		"empty window": {
			{Start: "2022-08-08T20:00:00+02:00", End: "2022-08-08T20:00:00+02:00"},
		},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			events, err := Parse(raw)
			assert.Nil(t, events)
			assert.True(t, errors.Is(err, ErrInvalidEvent), "got %v", err)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	events, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestActiveBounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	e := Event{Start: start, End: start.Add(time.Hour)}
	assert.False(t, e.Active(start.Add(-time.Nanosecond)))
	assert.True(t, e.Active(start))
	assert.True(t, e.Active(start.Add(59*time.Minute)))
	assert.False(t, e.Active(start.Add(time.Hour)))
	assert.True(t, e.Upcoming(start.Add(-time.Second)))
	assert.False(t, e.Upcoming(start))
}

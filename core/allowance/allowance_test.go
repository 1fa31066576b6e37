package allowance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sast(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Johannesburg")
	require.NoError(t, err)
	return loc
}

func TestRefreshSpreadsRemainingCalls(t *testing.T) {
	loc := sast(t)
	tr := NewTracker(loc)
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, loc)

	st := tr.Refresh(Quota{Count: 5, Limit: 10, Kind: "daily"}, now)
	midnight := time.Date(2023, 5, 2, 0, 0, 0, 0, loc)
	assert.True(t, st.NextRefresh.After(now))
	assert.True(t, st.NextRefresh.Before(midnight))
	assert.Equal(t, 2*time.Hour, st.NextRefresh.Sub(now))
	assert.Equal(t, now, st.LastRefresh)
	assert.Equal(t, "daily", st.Kind)
	assert.Equal(t, 5, st.Remaining())
	assert.False(t, st.Exhausted())
	assert.True(t, st.Known())
}

func TestRefreshCadenceSlowsAsQuotaDrains(t *testing.T) {
	loc := sast(t)
	tr := NewTracker(loc)
	now := time.Date(2023, 5, 1, 6, 0, 0, 0, loc)

	prev := time.Duration(0)
	for count := 0; count < 50; count++ {
		st := tr.Refresh(Quota{Count: count, Limit: 50}, now)
		gap := st.NextRefresh.Sub(now)
		require.Greater(t, gap, prev, "count %d", count)
		prev = gap
	}
}

func TestRefreshExhausted(t *testing.T) {
	loc := sast(t)
	tr := NewTracker(loc)
	now := time.Date(2023, 5, 1, 21, 15, 0, 0, loc)
	midnight := time.Date(2023, 5, 2, 0, 0, 0, 0, loc)

	for _, q := range []Quota{{Count: 50, Limit: 50}, {Count: 52, Limit: 50}} {
		st := tr.Refresh(q, now)
		assert.Equal(t, midnight, st.NextRefresh)
		assert.True(t, st.Exhausted())
		assert.Equal(t, 0, st.Remaining())
	}
}

func TestNextMidnightUsesTrackerLocation(t *testing.T) {
	loc := sast(t)
	tr := NewTracker(loc)
	// 23:30 UTC is already 01:30 the next day in Johannesburg.
	now := time.Date(2023, 5, 1, 23, 30, 0, 0, time.UTC)
	assert.True(t, tr.NextMidnight(now).Equal(time.Date(2023, 5, 3, 0, 0, 0, 0, loc)))
}

func TestUnknownState(t *testing.T) {
	var st State
	assert.False(t, st.Known())
	assert.True(t, st.Exhausted())
}

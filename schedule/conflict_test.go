package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/chronoplan/schedule"
)

func at(hour, min int) time.Time {
	// Monday 2026-01-05, inside working hours.
	return time.Date(2026, 1, 5, hour, min, 0, 0, time.UTC)
}

func TestHasConflict_Buffer(t *testing.T) {
	existing := schedule.Interval{Start: at(10, 0), End: at(11, 0), Title: "Standup"}

	// Direct overlap.
	assert.True(t, schedule.HasConflict(at(10, 30), at(11, 30), existing))

	// Back to back is still a conflict: the buffer pads both ends.
	assert.True(t, schedule.HasConflict(at(11, 0), at(12, 0), existing))
	assert.True(t, schedule.HasConflict(at(9, 0), at(10, 0), existing))

	// Five minutes of gap is inside the buffer.
	assert.True(t, schedule.HasConflict(at(11, 5), at(12, 0), existing))

	// Exactly ten minutes of gap is not a conflict.
	assert.False(t, schedule.HasConflict(at(11, 10), at(12, 10), existing))
	assert.False(t, schedule.HasConflict(at(8, 0), at(9, 50), existing))

	// Well clear.
	assert.False(t, schedule.HasConflict(at(14, 0), at(15, 0), existing))
}

func TestConflictsWith_PreservesOrder(t *testing.T) {
	existing := []schedule.Interval{
		{Start: at(9, 0), End: at(9, 30), Title: "A"},
		{Start: at(13, 0), End: at(14, 0), Title: "B"},
		{Start: at(9, 45), End: at(10, 15), Title: "C"},
	}

	got := schedule.ConflictsWith(at(9, 0), at(10, 0), existing)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Title)
	assert.Equal(t, "C", got[1].Title)

	assert.Empty(t, schedule.ConflictsWith(at(15, 0), at(16, 0), existing))
}

func TestFindNextSlot_SkipsConflicts(t *testing.T) {
	existing := []schedule.Interval{
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(11, 15), End: at(12, 0)},
	}

	slot := schedule.FindNextSlot(at(10, 0), time.Hour, existing)
	assert.False(t, slot.Fallback)
	// 12:00 end + 10m buffer rounds up to 12:15.
	assert.Equal(t, at(12, 15), slot.Start)
	assert.Equal(t, at(13, 15), slot.End)
	assert.False(t, slot.OutsidePreferredHours)
}

func TestFindNextSlot_ImmediateWhenFree(t *testing.T) {
	slot := schedule.FindNextSlot(at(10, 7), 30*time.Minute, nil)
	assert.Equal(t, at(10, 15), slot.Start)
	assert.Equal(t, at(10, 45), slot.End)
	assert.False(t, slot.Fallback)
}

func TestFindNextSlot_FallbackWhenFullyBooked(t *testing.T) {
	// One interval covering the whole search window forces the
	// guaranteed fallback suggestion.
	busy := []schedule.Interval{{
		Start: at(0, 0),
		End:   at(0, 0).Add(15 * 24 * time.Hour),
	}}

	requested := at(10, 0)
	slot := schedule.FindNextSlot(requested, time.Hour, busy)
	assert.True(t, slot.Fallback)
	assert.Equal(t, requested.Add(time.Hour), slot.Start)
	assert.Equal(t, requested.Add(2*time.Hour), slot.End)
}

func TestFindNextSlot_MarksOutsideWorkingHours(t *testing.T) {
	existing := []schedule.Interval{
		// Booked solid until 20:00.
		{Start: at(10, 0), End: at(20, 0)},
	}
	slot := schedule.FindNextSlot(at(10, 0), time.Hour, existing)
	assert.False(t, slot.Fallback)
	assert.Equal(t, at(20, 15), slot.Start)
	assert.True(t, slot.OutsidePreferredHours)
}

func TestRoundUpToGranularity(t *testing.T) {
	assert.Equal(t, at(10, 0), schedule.RoundUpToGranularity(at(10, 0)))
	assert.Equal(t, at(10, 15), schedule.RoundUpToGranularity(at(10, 1)))
	assert.Equal(t, at(10, 30), schedule.RoundUpToGranularity(at(10, 16)))
	assert.Equal(t, at(11, 0), schedule.RoundUpToGranularity(at(10, 46)))
}

func TestIsWorkingTime(t *testing.T) {
	assert.True(t, schedule.IsWorkingTime(at(9, 0)))
	assert.True(t, schedule.IsWorkingTime(at(17, 59)))
	assert.False(t, schedule.IsWorkingTime(at(18, 0)))
	assert.False(t, schedule.IsWorkingTime(at(8, 59)))

	saturday := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	assert.False(t, schedule.IsWorkingTime(saturday))
}

func TestNextWorkingTime(t *testing.T) {
	// Inside working hours: unchanged.
	assert.Equal(t, at(10, 30), schedule.NextWorkingTime(at(10, 30)))

	// Before opening: same day at 09:00.
	assert.Equal(t, at(9, 0), schedule.NextWorkingTime(at(7, 0)))

	// Friday evening rolls to Monday morning.
	fridayEvening := time.Date(2026, 1, 9, 19, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, schedule.NextWorkingTime(fridayEvening))

	// Saturday rolls to Monday.
	saturday := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, schedule.NextWorkingTime(saturday))
}

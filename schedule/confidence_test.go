package schedule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/schedule"
)

func TestSlotConfidence(t *testing.T) {
	none := intent.SlotPreferences{}

	// Neutral midday slot keeps the base score.
	assert.InDelta(t, 0.5, schedule.SlotConfidence(at(13, 0), 60, none), 1e-9)

	// Morning preference matched.
	morning := intent.SlotPreferences{PreferMorning: true}
	assert.InDelta(t, 0.8, schedule.SlotConfidence(at(10, 0), 60, morning), 1e-9)

	// Afternoon preference matched.
	afternoon := intent.SlotPreferences{PreferAfternoon: true}
	assert.InDelta(t, 0.8, schedule.SlotConfidence(at(15, 0), 60, afternoon), 1e-9)

	// Early and late starts are penalized.
	assert.InDelta(t, 0.3, schedule.SlotConfidence(at(7, 0), 60, none), 1e-9)
	assert.InDelta(t, 0.3, schedule.SlotConfidence(at(17, 30), 60, none), 1e-9)

	// Long deep-work blocks get a bonus.
	deep := intent.SlotPreferences{DeepWork: true}
	assert.InDelta(t, 0.7, schedule.SlotConfidence(at(13, 0), 120, deep), 1e-9)
	assert.InDelta(t, 0.5, schedule.SlotConfidence(at(13, 0), 90, deep), 1e-9)

	// Stacked bonuses clamp at 1.
	stacked := intent.SlotPreferences{PreferMorning: true, DeepWork: true}
	score := schedule.SlotConfidence(at(10, 0), 180, stacked)
	assert.LessOrEqual(t, score, 1.0)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestRankSlots(t *testing.T) {
	slots := []schedule.ScoredSlot{
		{Slot: schedule.Slot{Start: at(9, 0)}, Confidence: 0.5},
		{Slot: schedule.Slot{Start: at(10, 0)}, Confidence: 0.8},
		{Slot: schedule.Slot{Start: at(11, 0)}, Confidence: 0.8},
		{Slot: schedule.Slot{Start: at(14, 0)}, Confidence: 0.3},
	}

	ranked := schedule.RankSlots(slots, 3)
	require.Len(t, ranked, 3)
	// Ties break by earliness.
	assert.Equal(t, at(10, 0), ranked[0].Slot.Start)
	assert.Equal(t, at(11, 0), ranked[1].Slot.Start)
	assert.Equal(t, at(9, 0), ranked[2].Slot.Start)

	// Input is not mutated.
	assert.Equal(t, 0.5, slots[0].Confidence)
	assert.Equal(t, at(9, 0), slots[0].Slot.Start)
}

func TestFindDuplicateTitle(t *testing.T) {
	existing := []string{"Plan offsite", "Review Q4 budget"}

	got, found := schedule.FindDuplicateTitle("review q4 budget", existing)
	assert.True(t, found)
	assert.Equal(t, "Review Q4 budget", got)

	_, found = schedule.FindDuplicateTitle("Write launch post", existing)
	assert.False(t, found)
}

func TestFindDuplicateEvent(t *testing.T) {
	existing := []schedule.Interval{
		{Start: at(10, 0), End: at(11, 0), Title: "Design sync", ID: "ev-1"},
		{Start: at(14, 0), End: at(15, 0), Title: "Design sync", ID: "ev-2"},
	}

	// Similar title, start within an hour.
	dup, found := schedule.FindDuplicateEvent("design sync", at(10, 30), existing)
	assert.True(t, found)
	assert.Equal(t, "ev-1", dup.ID)

	// Similar title but starts too far apart.
	_, found = schedule.FindDuplicateEvent("design sync", at(12, 0), existing)
	assert.False(t, found)

	// Different title at the same time.
	_, found = schedule.FindDuplicateEvent("1:1 with Sam", at(10, 0), existing)
	assert.False(t, found)
}

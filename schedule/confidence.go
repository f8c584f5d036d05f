package schedule

import (
	"sort"
	"time"

	"github.com/chronoplan/chronoplan/intent"
)

// SlotConfidence scores a candidate start against the caller's stated
// preferences. The score starts at 0.5 and is clamped to [0, 1].
func SlotConfidence(start time.Time, durationMinutes int, prefs intent.SlotPreferences) float64 {
	score := 0.5
	hour := start.Hour()

	if prefs.PreferMorning && hour >= 9 && hour <= 11 {
		score += 0.3
	}
	if prefs.PreferAfternoon && hour >= 14 && hour <= 16 {
		score += 0.3
	}
	if hour < 9 {
		score -= 0.2
	}
	if hour >= 17 {
		score -= 0.2
	}
	if durationMinutes >= 120 && prefs.DeepWork {
		score += 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ScoredSlot pairs a slot with its confidence.
type ScoredSlot struct {
	Slot       Slot    `json:"slot"`
	Confidence float64 `json:"confidence"`
}

// RankSlots orders candidates by confidence descending, breaking ties
// by earliness, and returns at most limit entries.
func RankSlots(slots []ScoredSlot, limit int) []ScoredSlot {
	ranked := make([]ScoredSlot, len(slots))
	copy(ranked, slots)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		return ranked[i].Slot.Start.Before(ranked[j].Slot.Start)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

package schedule

import (
	"time"
)

// Slot search bounds. The search gives up after maxProbes candidate
// positions or maxSearchWindow of calendar, whichever comes first, and
// falls back to the requested instant plus one hour so callers always
// get a suggestion.
const (
	slotGranularity = 15 * time.Minute
	maxProbes       = 200
	maxSearchWindow = 14 * 24 * time.Hour
	fallbackDelay   = time.Hour
)

// Slot is a candidate placement for an event or work block.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// OutsidePreferredHours marks slots that fall outside working
	// hours. The search prefers working hours but does not exclude
	// other free time.
	OutsidePreferredHours bool `json:"outside_preferred_hours,omitempty"`

	// Fallback marks the guaranteed +1h suggestion returned when no
	// free slot was found within the search bounds.
	Fallback bool `json:"fallback,omitempty"`
}

// FindNextSlot searches forward from the requested instant for the
// first span of the given duration that conflicts with none of the
// existing intervals. The start is rounded up to a 15-minute boundary;
// on conflict the probe jumps to the conflicting interval's end plus
// the buffer and re-rounds.
func FindNextSlot(requested time.Time, duration time.Duration, existing []Interval) Slot {
	probe := RoundUpToGranularity(requested)
	deadline := requested.Add(maxSearchWindow)

	for i := 0; i < maxProbes && probe.Before(deadline); i++ {
		end := probe.Add(duration)

		conflict, ok := firstConflict(probe, end, existing)
		if !ok {
			return Slot{
				Start:                 probe,
				End:                   end,
				OutsidePreferredHours: !IsWorkingTime(probe),
			}
		}

		next := conflict.End.Add(Buffer)
		if !next.After(probe) {
			// Guard against zero-length or inverted intervals.
			next = probe.Add(slotGranularity)
		}
		probe = RoundUpToGranularity(next)
	}

	// Nothing free within bounds: suggest an hour after the request.
	start := requested.Add(fallbackDelay)
	return Slot{
		Start:                 start,
		End:                   start.Add(duration),
		OutsidePreferredHours: !IsWorkingTime(start),
		Fallback:              true,
	}
}

// RoundUpToGranularity rounds t up to the next 15-minute boundary.
// Instants already on a boundary are returned unchanged.
func RoundUpToGranularity(t time.Time) time.Time {
	rounded := t.Truncate(slotGranularity)
	if rounded.Equal(t) {
		return t
	}
	return rounded.Add(slotGranularity)
}

func firstConflict(start, end time.Time, existing []Interval) (Interval, bool) {
	var best Interval
	found := false
	for _, iv := range existing {
		if !HasConflict(start, end, iv) {
			continue
		}
		// Jump past the conflict that ends latest so one probe clears
		// overlapping stacks of events.
		if !found || iv.End.After(best.End) {
			best = iv
			found = true
		}
	}
	return best, found
}

package schedule

import "time"

// Event duplicate bounds: only events starting within the window around
// the draft's start are candidates, and of those only events whose
// start differs by less than the delta count as the same event.
const (
	EventDuplicateWindow     = 4 * time.Hour
	eventDuplicateStartDelta = time.Hour
)

// FindDuplicateTitle returns the first existing title similar to the
// proposed one.
func FindDuplicateTitle(title string, existing []string) (string, bool) {
	for _, t := range existing {
		if TitlesAreSimilar(title, t) {
			return t, true
		}
	}
	return "", false
}

// FindDuplicateEvent returns the first existing interval that looks
// like the same event: similar title and a start within an hour of the
// proposed start. Callers pre-filter to intervals starting within
// EventDuplicateWindow of the proposal.
func FindDuplicateEvent(title string, start time.Time, existing []Interval) (Interval, bool) {
	for _, iv := range existing {
		delta := iv.Start.Sub(start)
		if delta < 0 {
			delta = -delta
		}
		if delta < eventDuplicateStartDelta && TitlesAreSimilar(title, iv.Title) {
			return iv, true
		}
	}
	return Interval{}, false
}

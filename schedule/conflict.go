package schedule

import "time"

// Buffer is the padding added to both ends of an existing interval when
// testing for conflicts. Back-to-back meetings with no transition time
// count as conflicting.
const Buffer = 10 * time.Minute

// Interval is a concrete time span, usually an existing calendar event.
type Interval struct {
	Start time.Time
	End   time.Time
	Title string
	ID    string
}

// Overlaps reports whether two raw intervals intersect (no buffer).
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// HasConflict reports whether a proposed [start, end) span conflicts
// with an existing interval once the symmetric buffer is applied:
//
//	start < existing.End + Buffer  AND  end > existing.Start - Buffer
func HasConflict(start, end time.Time, existing Interval) bool {
	return start.Before(existing.End.Add(Buffer)) && end.After(existing.Start.Add(-Buffer))
}

// ConflictsWith filters existing intervals down to those the proposed
// span conflicts with, preserving input order.
func ConflictsWith(start, end time.Time, existing []Interval) []Interval {
	var out []Interval
	for _, iv := range existing {
		if HasConflict(start, end, iv) {
			out = append(out, iv)
		}
	}
	return out
}

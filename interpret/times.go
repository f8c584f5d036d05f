package interpret

import (
	"fmt"
	"strings"
	"time"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/usercontext"
)

// Wire formats the interpreters ask the model to emit. Local wall time
// with no offsets; the user's timezone is applied here, satisfying the
// invariant that only timezone-aware instants cross the system.
const (
	wireDateTime = "2006-01-02 15:04"
	wireDate     = "2006-01-02"
	wireTime     = "15:04"
)

// parseInstant parses a "YYYY-MM-DD HH:MM" wire value in the user's
// timezone. A date-only value resolves to 09:00 local, matching the
// "tomorrow morning" convention.
func parseInstant(s string, uctx *usercontext.Context) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	if t, err := time.ParseInLocation(wireDateTime, s, uctx.Location); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(wireDate, s, uctx.Location); err == nil {
		return t.Add(9 * time.Hour), nil
	}
	if t, err := time.ParseInLocation(time.RFC3339, s, uctx.Location); err == nil {
		return t.In(uctx.Location), nil
	}
	return time.Time{}, fmt.Errorf("unparseable datetime %q", s)
}

// ParseInstant exposes wire datetime parsing to the handlers, which see
// raw strings inside update maps.
func ParseInstant(s string, uctx *usercontext.Context) (time.Time, error) {
	return parseInstant(s, uctx)
}

// parseTimeOfDay parses an "HH:MM" wire value; the caller splices it
// onto a date.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse(wireTime, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("unparseable time of day %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// spliceTimeOfDay places the time-of-day from src onto the date of base.
func spliceTimeOfDay(base, src time.Time) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(),
		src.Hour(), src.Minute(), 0, 0, base.Location())
}

// Range keywords the search and optimization interpreters emit.
const (
	RangeToday    = "today"
	RangeTomorrow = "tomorrow"
	RangeThisWeek = "this_week"
	RangeNextWeek = "next_week"
	RangeOverdue  = "overdue"
	RangeNone     = "none"
)

// rangeForKeyword resolves a range keyword against the caller's clock.
// this_week is the Monday–Sunday span containing now; overdue is
// everything before now. Returns nil for "none".
func rangeForKeyword(keyword string, uctx *usercontext.Context) *intent.TimeRange {
	now := uctx.Now
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, uctx.Location)

	switch keyword {
	case RangeToday:
		return &intent.TimeRange{Start: startOfDay, End: startOfDay.AddDate(0, 0, 1)}
	case RangeTomorrow:
		start := startOfDay.AddDate(0, 0, 1)
		return &intent.TimeRange{Start: start, End: start.AddDate(0, 0, 1)}
	case RangeThisWeek:
		start := startOfWeek(startOfDay)
		return &intent.TimeRange{Start: start, End: start.AddDate(0, 0, 7)}
	case RangeNextWeek:
		start := startOfWeek(startOfDay).AddDate(0, 0, 7)
		return &intent.TimeRange{Start: start, End: start.AddDate(0, 0, 7)}
	case RangeOverdue:
		// Open-ended past window; one year back is beyond any
		// plausible active item.
		return &intent.TimeRange{Start: now.AddDate(-1, 0, 0), End: now}
	default:
		return nil
	}
}

// startOfWeek returns the Monday of the week containing t.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return t.AddDate(0, 0, -offset)
}

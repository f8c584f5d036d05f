package schedule

import "time"

// Working hours are 09:00–18:00 local time, Monday through Friday.
const (
	WorkdayStartHour = 9
	WorkdayEndHour   = 18
)

// IsWorkingTime reports whether t falls inside working hours.
func IsWorkingTime(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= WorkdayStartHour && t.Hour() < WorkdayEndHour
}

// NextWorkingTime rounds a non-working instant forward to the next
// working one. An instant already inside working hours is returned
// unchanged.
func NextWorkingTime(t time.Time) time.Time {
	for {
		switch {
		case t.Hour() >= WorkdayEndHour:
			// Past closing: jump to tomorrow at opening.
			t = startOfWorkday(t.AddDate(0, 0, 1))
		case t.Hour() < WorkdayStartHour:
			t = startOfWorkday(t)
		}

		switch t.Weekday() {
		case time.Saturday:
			t = startOfWorkday(t.AddDate(0, 0, 2))
		case time.Sunday:
			t = startOfWorkday(t.AddDate(0, 0, 1))
		default:
			return t
		}
	}
}

func startOfWorkday(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), WorkdayStartHour, 0, 0, 0, t.Location())
}

// Package nylas is the Nylas v3 calendar adapter. Clients are
// constructed per request from the caller's API key and grant id.
package nylas

import (
	"strings"
	"time"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/schedule"
)

// DefaultCalendarID selects the grant's primary calendar.
const DefaultCalendarID = "primary"

// When carries event times as Unix seconds with explicit timezones.
type When struct {
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	StartTimezone string `json:"start_timezone,omitempty"`
	EndTimezone   string `json:"end_timezone,omitempty"`
	Object        string `json:"object,omitempty"`
}

// Participant is one attendee on the wire.
type Participant struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// ReminderOverride is one reminder inside Reminders.
type ReminderOverride struct {
	ReminderMinutes int    `json:"reminder_minutes"`
	ReminderMethod  string `json:"reminder_method"`
}

// Reminders configures event notifications.
type Reminders struct {
	UseDefault bool               `json:"use_default"`
	Overrides  []ReminderOverride `json:"overrides,omitempty"`
}

// Event is the wire representation of a Nylas event.
type Event struct {
	ID           string        `json:"id,omitempty"`
	CalendarID   string        `json:"calendar_id,omitempty"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Location     string        `json:"location,omitempty"`
	When         When          `json:"when"`
	Participants []Participant `json:"participants,omitempty"`
	Busy         bool          `json:"busy"`
	Reminders    *Reminders    `json:"reminders,omitempty"`
	Status       string        `json:"status,omitempty"`
}

// Start returns the event start as an instant in loc.
func (e *Event) Start(loc *time.Location) time.Time {
	return time.Unix(e.When.StartTime, 0).In(loc)
}

// End returns the event end as an instant in loc.
func (e *Event) End(loc *time.Location) time.Time {
	return time.Unix(e.When.EndTime, 0).In(loc)
}

// HasOtherParticipants reports whether anyone besides the owner is on
// the event.
func (e *Event) HasOtherParticipants(ownerEmail string) bool {
	for _, p := range e.Participants {
		if !strings.EqualFold(p.Email, ownerEmail) {
			return true
		}
	}
	return false
}

// Interval maps the event onto the conflict checker's shape.
func (e *Event) Interval(loc *time.Location) schedule.Interval {
	return schedule.Interval{
		Start: e.Start(loc),
		End:   e.End(loc),
		Title: e.Title,
		ID:    e.ID,
	}
}

// SyntheticEmail derives a placeholder address from a display name.
// "Jordan Lee" becomes "jordan.lee@example.com".
func SyntheticEmail(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return "participant@example.com"
	}
	return strings.Join(fields, ".") + "@example.com"
}

// toParticipants converts extracted participants, giving name-only
// entries synthetic addresses with status noreply.
func toParticipants(in []intent.Participant) []Participant {
	out := make([]Participant, 0, len(in))
	for _, p := range in {
		wire := Participant{Email: p.Email, Name: p.Name, Status: string(p.Status)}
		if wire.Email == "" {
			wire.Email = SyntheticEmail(p.Name)
			wire.Status = string(intent.ParticipantNoReply)
		}
		out = append(out, wire)
	}
	return out
}

// EventFromDraft maps an extracted draft onto the wire shape.
func EventFromDraft(d *intent.EventDraft, timezone string) *Event {
	e := &Event{
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		Busy:        d.Busy,
		When: When{
			StartTime:     d.Start.Unix(),
			EndTime:       d.End.Unix(),
			StartTimezone: timezone,
			EndTimezone:   timezone,
		},
		Participants: toParticipants(d.Participants),
	}
	if len(d.RemindersMinutes) > 0 {
		r := &Reminders{}
		for _, m := range d.RemindersMinutes {
			r.Overrides = append(r.Overrides, ReminderOverride{
				ReminderMinutes: m,
				ReminderMethod:  "popup",
			})
		}
		e.Reminders = r
	}
	return e
}

// Grant describes the authenticated calendar account.
type Grant struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
	Status   string `json:"grant_status"`
}

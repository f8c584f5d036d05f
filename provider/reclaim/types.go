// Package reclaim is the Reclaim.ai task adapter. Clients are
// constructed per request from the caller's API key and share nothing.
package reclaim

import (
	"fmt"
	"time"

	"github.com/chronoplan/chronoplan/intent"
)

// Task status values as Reclaim reports them.
const (
	StatusNew        = "NEW"
	StatusScheduled  = "SCHEDULED"
	StatusInProgress = "IN_PROGRESS"
	StatusComplete   = "COMPLETE"
	StatusCancelled  = "CANCELLED"
	StatusArchived   = "ARCHIVED"
)

// TerminalStatuses are excluded from active-task listings.
var TerminalStatuses = map[string]bool{
	StatusComplete:  true,
	StatusCancelled: true,
	StatusArchived:  true,
}

// Task is the wire representation of a Reclaim task. Durations are
// carried as 15-minute chunks; the chunk helpers convert to hours.
type Task struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Notes              string     `json:"notes,omitempty"`
	Status             string     `json:"status,omitempty"`
	Priority           string     `json:"priority,omitempty"`
	EventCategory      string     `json:"eventCategory,omitempty"`
	Due                *time.Time `json:"due,omitempty"`
	TimeChunksRequired int        `json:"timeChunksRequired,omitempty"`
	MinChunkSize       int        `json:"minChunkSize,omitempty"`
	MaxChunkSize       int        `json:"maxChunkSize,omitempty"`
	TimeChunksSpent    int        `json:"timeChunksSpent,omitempty"`
	AlwaysPrivate      bool       `json:"alwaysPrivate,omitempty"`
	Created            *time.Time `json:"created,omitempty"`
	Updated            *time.Time `json:"updated,omitempty"`
}

// StringID returns the task id in the opaque form the rest of the
// system uses.
func (t *Task) StringID() string { return fmt.Sprintf("%d", t.ID) }

// DurationHours converts the required chunks back to hours.
func (t *Task) DurationHours() float64 { return float64(t.TimeChunksRequired) / 4 }

// Active reports whether the task is still open.
func (t *Task) Active() bool { return !TerminalStatuses[t.Status] }

// Overdue reports whether the task's due instant has passed.
func (t *Task) Overdue(now time.Time) bool {
	return t.Active() && t.Due != nil && t.Due.Before(now)
}

// HoursToChunks quantizes a duration in hours to Reclaim's 15-minute
// chunks, rounding up so the task never gets less time than asked.
func HoursToChunks(hours float64) int {
	if hours <= 0 {
		return 0
	}
	chunks := int(hours * 4)
	if float64(chunks)/4 < hours {
		chunks++
	}
	return chunks
}

// TaskFromDraft maps an extracted draft onto the wire shape. Every
// created task is categorized as work so Reclaim schedules it inside
// working hours.
func TaskFromDraft(d *intent.TaskDraft) *Task {
	t := &Task{
		Title:         d.Title,
		Notes:         d.Notes,
		Priority:      string(d.Priority),
		EventCategory: "WORK",
		Due:           d.Due,
	}
	if d.DurationHours > 0 {
		t.TimeChunksRequired = HoursToChunks(d.DurationHours)
	}
	if d.MinWorkHours > 0 {
		t.MinChunkSize = HoursToChunks(d.MinWorkHours)
	}
	if d.MaxWorkHours > 0 {
		t.MaxChunkSize = HoursToChunks(d.MaxWorkHours)
	}
	return t
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title              *string    `json:"title,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	Priority           *string    `json:"priority,omitempty"`
	Due                *time.Time `json:"due,omitempty"`
	TimeChunksRequired *int       `json:"timeChunksRequired,omitempty"`
	Status             *string    `json:"status,omitempty"`
}

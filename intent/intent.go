// Package intent defines the typed records the natural-language
// interpreters emit. Every interpreter output is one of these tagged
// variants; free-form maps never cross package boundaries. All records
// are JSON-serializable because they ride inside approval action
// records that round-trip through the caller.
package intent

import (
	"fmt"
	"time"
)

// ProviderKind identifies which backing provider a query routes to.
type ProviderKind string

const (
	ProviderTask     ProviderKind = "task"
	ProviderCalendar ProviderKind = "calendar"
)

// Route is the first-stage routing decision between the two providers.
type Route struct {
	Provider   ProviderKind `json:"provider"`
	IntentType string       `json:"intent_type"` // "task" or "event"
}

// Validate rejects unknown routing tags at the boundary.
func (r Route) Validate() error {
	switch r.Provider {
	case ProviderTask, ProviderCalendar:
	default:
		return fmt.Errorf("unknown route provider %q", r.Provider)
	}
	switch r.IntentType {
	case "task", "event":
	default:
		return fmt.Errorf("unknown route intent_type %q", r.IntentType)
	}
	return nil
}

// TaskOperation enumerates the task-side operations.
type TaskOperation string

const (
	TaskCreate   TaskOperation = "create"
	TaskUpdate   TaskOperation = "update"
	TaskComplete TaskOperation = "complete"
	TaskDelete   TaskOperation = "delete"
	TaskAddTime  TaskOperation = "add_time"
)

// Task is the parsed intent for a task-provider operation.
type Task struct {
	Operation      TaskOperation  `json:"operation"`
	Draft          *TaskDraft     `json:"task,omitempty"`
	TaskReference  string         `json:"task_reference,omitempty"`
	Updates        map[string]any `json:"updates,omitempty"`
	TimeToAddHours float64        `json:"time_to_add_hours,omitempty"`
}

// Validate checks the operation tag and the draft invariants.
func (t Task) Validate() error {
	switch t.Operation {
	case TaskCreate, TaskUpdate, TaskComplete, TaskDelete, TaskAddTime:
	default:
		return fmt.Errorf("unknown task operation %q", t.Operation)
	}
	if t.Operation == TaskCreate && t.Draft == nil {
		return fmt.Errorf("create operation requires a task draft")
	}
	if t.Draft != nil {
		if err := t.Draft.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Priority is the task priority scale used by the task provider.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// TaskDraft is a task ready to be created. Durations are hours; the
// provider quantizes them to 15-minute chunks internally.
type TaskDraft struct {
	Title         string     `json:"title"`
	Notes         string     `json:"notes,omitempty"`
	Priority      Priority   `json:"priority,omitempty"`
	Due           *time.Time `json:"due,omitempty"`
	DurationHours float64    `json:"duration_hours,omitempty"`
	MinWorkHours  float64    `json:"min_work_hours,omitempty"`
	MaxWorkHours  float64    `json:"max_work_hours,omitempty"`
}

// Validate enforces 0 < min <= duration <= max for whichever duration
// fields are present.
func (d TaskDraft) Validate() error {
	if d.Title == "" {
		return fmt.Errorf("task draft requires a title")
	}
	switch d.Priority {
	case "", PriorityP1, PriorityP2, PriorityP3, PriorityP4:
	default:
		return fmt.Errorf("unknown task priority %q", d.Priority)
	}
	if d.DurationHours < 0 || d.MinWorkHours < 0 || d.MaxWorkHours < 0 {
		return fmt.Errorf("task durations must be non-negative")
	}
	if d.MinWorkHours > 0 && d.DurationHours > 0 && d.MinWorkHours > d.DurationHours {
		return fmt.Errorf("min work hours %.2f exceeds duration %.2f", d.MinWorkHours, d.DurationHours)
	}
	if d.MaxWorkHours > 0 && d.DurationHours > 0 && d.DurationHours > d.MaxWorkHours {
		return fmt.Errorf("duration %.2f exceeds max work hours %.2f", d.DurationHours, d.MaxWorkHours)
	}
	return nil
}

// EventOperation enumerates the calendar-side operations.
type EventOperation string

const (
	EventCreate EventOperation = "create"
	EventUpdate EventOperation = "update"
	EventCancel EventOperation = "cancel"
)

// Event is the parsed intent for a calendar-provider operation.
type Event struct {
	Operation      EventOperation `json:"operation"`
	Draft          *EventDraft    `json:"event,omitempty"`
	EventReference string         `json:"event_reference,omitempty"`
	Updates        *EventUpdates  `json:"updates,omitempty"`
}

// EventUpdates carries the fields an update operation wants to change.
// Nil pointers mean "leave as-is"; the handler merges against the
// fetched original.
type EventUpdates struct {
	Title       *string    `json:"title,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Description *string    `json:"description,omitempty"`
	// TimeOnly indicates Start/End carry only a time of day; the
	// handler splices it onto the original event's date.
	TimeOnly bool `json:"time_only,omitempty"`
}

// Validate checks the operation tag and, for creates, the draft.
func (e Event) Validate() error {
	switch e.Operation {
	case EventCreate, EventUpdate, EventCancel:
	default:
		return fmt.Errorf("unknown event operation %q", e.Operation)
	}
	if e.Operation == EventCreate {
		if e.Draft == nil {
			return fmt.Errorf("create operation requires an event draft")
		}
		return e.Draft.Validate()
	}
	return nil
}

// ParticipantStatus is the invitation state of an event participant.
type ParticipantStatus string

const (
	ParticipantNoReply ParticipantStatus = "noreply"
	ParticipantYes     ParticipantStatus = "yes"
	ParticipantNo      ParticipantStatus = "no"
	ParticipantMaybe   ParticipantStatus = "maybe"
)

// Participant is an event attendee.
type Participant struct {
	Email  string            `json:"email"`
	Name   string            `json:"name,omitempty"`
	Status ParticipantStatus `json:"status,omitempty"`
}

// EventDraft is an event ready to be created.
type EventDraft struct {
	Title            string        `json:"title"`
	Start            time.Time     `json:"start"`
	End              time.Time     `json:"end"`
	Participants     []Participant `json:"participants,omitempty"`
	Location         string        `json:"location,omitempty"`
	Description      string        `json:"description,omitempty"`
	RemindersMinutes []int         `json:"reminders_minutes,omitempty"`
	Busy             bool          `json:"busy,omitempty"`
}

// Validate enforces start < end and timezone-aware instants.
func (d EventDraft) Validate() error {
	if d.Title == "" {
		return fmt.Errorf("event draft requires a title")
	}
	if d.Start.IsZero() || d.End.IsZero() {
		return fmt.Errorf("event draft requires start and end times")
	}
	if !d.Start.Before(d.End) {
		return fmt.Errorf("event start %s must precede end %s", d.Start, d.End)
	}
	return nil
}

// Duration returns the draft's length.
func (d EventDraft) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// HasParticipants reports whether the event involves anyone besides the
// organizer.
func (d EventDraft) HasParticipants() bool {
	return len(d.Participants) > 0
}

// AvailabilityKind distinguishes the two availability questions.
type AvailabilityKind string

const (
	AvailabilitySpecificTime AvailabilityKind = "specific_time"
	AvailabilityFindSlots    AvailabilityKind = "find_slots"
)

// SlotPreferences biases the slot search.
type SlotPreferences struct {
	PreferMorning   bool `json:"prefer_morning,omitempty"`
	PreferAfternoon bool `json:"prefer_afternoon,omitempty"`
	PreferEvening   bool `json:"prefer_evening,omitempty"`
	EarliestHour    int  `json:"earliest_hour,omitempty"`
	LatestHour      int  `json:"latest_hour,omitempty"`
	DeepWork        bool `json:"deep_work,omitempty"`
	IncludeWeekends bool `json:"include_weekends,omitempty"`
}

// TimeRange is a half-open [Start, End) window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability is the parsed intent for a check_availability call.
type Availability struct {
	Kind            AvailabilityKind `json:"kind"`
	At              *time.Time       `json:"at,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	Range           *TimeRange       `json:"time_range,omitempty"`
	Preferences     SlotPreferences  `json:"preferences"`
}

// Validate checks the kind tag and the per-kind required fields.
func (a Availability) Validate() error {
	switch a.Kind {
	case AvailabilitySpecificTime:
		if a.At == nil {
			return fmt.Errorf("specific_time availability requires a target instant")
		}
	case AvailabilityFindSlots:
	default:
		return fmt.Errorf("unknown availability kind %q", a.Kind)
	}
	if a.DurationMinutes <= 0 {
		return fmt.Errorf("availability duration must be positive, got %d", a.DurationMinutes)
	}
	return nil
}

// SearchKind enumerates the find_and_analyze intents.
type SearchKind string

const (
	SearchViewSchedule     SearchKind = "view_schedule"
	SearchFindSpecific     SearchKind = "find_specific"
	SearchWorkloadAnalysis SearchKind = "workload_analysis"
	SearchFindOverdue      SearchKind = "find_overdue"
)

// Search is the parsed intent for a find_and_analyze call.
type Search struct {
	Kind             SearchKind `json:"intent"`
	Range            *TimeRange `json:"time_range,omitempty"`
	SearchText       string     `json:"search_text,omitempty"`
	Priority         Priority   `json:"priority,omitempty"`
	Status           string     `json:"status,omitempty"`
	Participants     []string   `json:"participants,omitempty"`
	SearchBoth       bool       `json:"search_both"`
	IncludeCompleted bool       `json:"include_completed,omitempty"`
}

// Validate rejects unknown search tags.
func (s Search) Validate() error {
	switch s.Kind {
	case SearchViewSchedule, SearchFindSpecific, SearchWorkloadAnalysis, SearchFindOverdue:
		return nil
	default:
		return fmt.Errorf("unknown search intent %q", s.Kind)
	}
}

// OptimizationType enumerates schedule-optimization strategies.
type OptimizationType string

const (
	OptimizeFocusTime        OptimizationType = "focus_time"
	OptimizeWorkloadBalance  OptimizationType = "workload_balance"
	OptimizeEnergyAlignment  OptimizationType = "energy_alignment"
	OptimizePriorityBased    OptimizationType = "priority_based"
	OptimizeMeetingReduction OptimizationType = "meeting_reduction"
	OptimizeGeneral          OptimizationType = "general"
)

// Optimization is the parsed intent for an optimize_schedule call.
type Optimization struct {
	Type        OptimizationType `json:"type"`
	Goals       []string         `json:"goals,omitempty"`
	Range       TimeRange        `json:"time_range"`
	Preferences map[string]any   `json:"preferences,omitempty"`
}

// Validate rejects unknown optimization tags.
func (o Optimization) Validate() error {
	switch o.Type {
	case OptimizeFocusTime, OptimizeWorkloadBalance, OptimizeEnergyAlignment,
		OptimizePriorityBased, OptimizeMeetingReduction, OptimizeGeneral:
		return nil
	default:
		return fmt.Errorf("unknown optimization type %q", o.Type)
	}
}

// Resolution is the outcome of resolving a free-text entity reference
// against provider-listed candidates.
type Resolution struct {
	Found            bool     `json:"found"`
	ID               string   `json:"id,omitempty"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning,omitempty"`
	AmbiguousMatches []string `json:"ambiguous_matches,omitempty"`
}

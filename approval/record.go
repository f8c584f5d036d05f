package approval

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/schedule"
	"github.com/google/uuid"
)

// Preview is the human-facing summary shown before approval.
type Preview struct {
	Summary string         `json:"summary"`
	Details map[string]any `json:"details,omitempty"`
	Risks   []string       `json:"risks,omitempty"`
}

// Record is the unit the approval protocol acts on. The whole record is
// echoed back to the caller as `action_data` and returned verbatim on
// the approved retry; it must therefore carry everything execution
// needs (the parsed intent, the draft, and the original params) with
// no server-side residue.
type Record struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Params    json.RawMessage `json:"params,omitempty"`
	Preview   Preview         `json:"preview"`

	// Exactly one intent variant is set, matching the Kind's family.
	TaskIntent  *intent.Task  `json:"task_intent,omitempty"`
	EventIntent *intent.Event `json:"event_intent,omitempty"`

	TaskDraft  *intent.TaskDraft  `json:"task_draft,omitempty"`
	EventDraft *intent.EventDraft `json:"event_draft,omitempty"`

	// TargetID is set when the action mutates an already-resolved
	// entity (update/cancel/delete paths).
	TargetID string `json:"target_id,omitempty"`

	// BulkMatches lists the entity IDs a bulk operation will touch.
	BulkMatches []BulkMatch `json:"bulk_matches,omitempty"`

	// SuggestedSlot carries the alternative placement for
	// event_create_conflict_reschedule records.
	SuggestedSlot *schedule.Slot `json:"suggested_slot,omitempty"`

	// ExistingID identifies the duplicate found by the safety check.
	ExistingID    string `json:"existing_id,omitempty"`
	ExistingTitle string `json:"existing_title,omitempty"`

	// OptimizationPlan carries the suggestion list for bulk_reschedule
	// records produced by schedule optimization.
	OptimizationPlan json.RawMessage `json:"optimization_plan,omitempty"`
}

// BulkMatch is one entity a bulk operation matched.
type BulkMatch struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NewRecord creates a Record with a fresh ID and timestamp.
func NewRecord(kind Kind, params json.RawMessage, preview Preview) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Params:    params,
		Preview:   preview,
	}
}

// Decode parses an action_data payload back into a Record, rejecting
// unknown kinds and records a retry handler cannot resume from.
func Decode(raw json.RawMessage) (*Record, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("action_data is required for an approved retry")
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse action_data: %w", err)
	}
	if err := rec.Kind.Validate(); err != nil {
		return nil, err
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("action_data is missing its record id")
	}
	return &rec, nil
}

// Encode serializes the record for the wire.
func (r *Record) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal action record: %w", err)
	}
	return data, nil
}

// ExpectKind fails the retry when the echoed record does not match the
// branch the handler is about to take.
func (r *Record) ExpectKind(kinds ...Kind) error {
	for _, k := range kinds {
		if r.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("action_data kind %q does not match this operation", r.Kind)
}

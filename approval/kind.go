// Package approval implements the two-phase approval protocol: the
// pure policy deciding which action kinds need user sign-off, the
// pre-dispatch rewrites that specialize a kind by its context, and the
// serializable ActionRecord that round-trips through the caller. The
// server keeps no pending-approval state of its own.
package approval

import "fmt"

// Kind tags one branch of the approval decision table. It is also the
// discriminator of ActionRecord.
type Kind string

const (
	// Single-entity task operations. None require approval.
	KindTaskCreate   Kind = "task_create"
	KindTaskUpdate   Kind = "task_update"
	KindTaskComplete Kind = "task_complete"
	KindTaskDelete   Kind = "task_delete"
	KindTaskCancel   Kind = "task_cancel"

	// Solo event operations. None require approval.
	KindEventCreate Kind = "event_create"
	KindEventUpdate Kind = "event_update"
	KindEventCancel Kind = "event_cancel"
	KindEventDelete Kind = "event_delete"

	// Operations that touch other people's calendars.
	KindEventCreateWithParticipants Kind = "event_create_with_participants"
	KindEventUpdateWithParticipants Kind = "event_update_with_participants"
	KindEventCancelWithParticipants Kind = "event_cancel_with_participants"

	// Safety-interlock gates injected by duplicate and conflict checks.
	KindTaskCreateDuplicate          Kind = "task_create_duplicate"
	KindEventCreateDuplicate         Kind = "event_create_duplicate"
	KindEventCreateConflictReschedule Kind = "event_create_conflict_reschedule"

	// Bulk operations.
	KindBulkDelete     Kind = "bulk_delete"
	KindBulkUpdate     Kind = "bulk_update"
	KindBulkComplete   Kind = "bulk_complete"
	KindBulkReschedule Kind = "bulk_reschedule"
	KindBulkCancel     Kind = "bulk_cancel"

	// Structural changes.
	KindRecurringCreate    Kind = "recurring_create"
	KindWorkingHoursUpdate Kind = "working_hours_update"
)

// approvalTable is the closed policy table. Kinds absent from the table
// are unknown and rejected by Validate.
var approvalTable = map[Kind]bool{
	KindTaskCreate:   false,
	KindTaskUpdate:   false,
	KindTaskComplete: false,
	KindTaskDelete:   false,
	KindTaskCancel:   false,

	KindEventCreate: false,
	KindEventUpdate: false,
	KindEventCancel: false,
	KindEventDelete: false,

	KindEventCreateWithParticipants: true,
	KindEventUpdateWithParticipants: true,
	KindEventCancelWithParticipants: true,

	KindTaskCreateDuplicate:           true,
	KindEventCreateDuplicate:          true,
	KindEventCreateConflictReschedule: true,

	KindBulkDelete:     true,
	KindBulkUpdate:     true,
	KindBulkComplete:   true,
	KindBulkReschedule: true,
	KindBulkCancel:     true,

	KindRecurringCreate:    true,
	KindWorkingHoursUpdate: true,
}

// RequiresApproval is the pure policy lookup. Unknown kinds require
// approval; failing closed is the safe default for a tag the table
// has never seen.
func RequiresApproval(k Kind) bool {
	required, ok := approvalTable[k]
	if !ok {
		return true
	}
	return required
}

// Validate rejects kinds outside the policy table.
func (k Kind) Validate() error {
	if _, ok := approvalTable[k]; !ok {
		return fmt.Errorf("unknown approval kind %q", k)
	}
	return nil
}

// Context carries the request facts that specialize a base kind before
// the table lookup.
type Context struct {
	HasParticipants bool
	IsBulk          bool
}

// Rewrite applies the context-sensitive transforms: participant
// involvement promotes event operations to their _with_participants
// form, and bulk mode promotes any mutating operation to its bulk_*
// form. Bulk wins when both apply.
func Rewrite(k Kind, ctx Context) Kind {
	if ctx.IsBulk {
		if bulk, ok := bulkForm[k]; ok {
			return bulk
		}
	}
	if ctx.HasParticipants {
		if withP, ok := participantForm[k]; ok {
			return withP
		}
	}
	return k
}

var participantForm = map[Kind]Kind{
	KindEventCreate: KindEventCreateWithParticipants,
	KindEventUpdate: KindEventUpdateWithParticipants,
	KindEventCancel: KindEventCancelWithParticipants,
}

var bulkForm = map[Kind]Kind{
	KindTaskComplete: KindBulkComplete,
	KindTaskDelete:   KindBulkDelete,
	KindTaskUpdate:   KindBulkUpdate,
	KindTaskCancel:   KindBulkCancel,
	KindEventCancel:  KindBulkCancel,
	KindEventUpdate:  KindBulkUpdate,
	KindEventDelete:  KindBulkDelete,
}

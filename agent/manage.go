package agent

import (
	"context"

	"github.com/chronoplan/chronoplan/approval"
	"github.com/chronoplan/chronoplan/intent"
)

// manageProductivity is the mutation pipeline: route the query to a
// provider, parse the domain intent, run the safety interlocks, gate on
// approval, then execute.
func (d *Dispatcher) manageProductivity(ctx context.Context, req *request) (*Response, error) {
	if req.approved != nil {
		return d.resumeManage(ctx, req)
	}

	if !req.uctx.HasTaskProvider() && !req.uctx.HasCalendarProvider() {
		return SetupNeeded(req.uctx.MissingCredentials(true, true)), nil
	}

	route, err := d.interp.Route(ctx, req.query, req.uctx)
	if err != nil {
		return Fail("", CodeInterpreterFailed, err), nil
	}
	d.logger.Debug("Routed query", "provider", route.Provider, "intent_type", route.IntentType)

	switch route.Provider {
	case intent.ProviderTask:
		return d.handleTask(ctx, req)
	default:
		return d.handleEvent(ctx, req)
	}
}

// resumeManage re-enters the pipeline at the execution step an approval
// interrupted. The record's kind selects the branch; a record from a
// different branch fails the request rather than executing something the
// user did not preview.
func (d *Dispatcher) resumeManage(ctx context.Context, req *request) (*Response, error) {
	rec := req.approved

	switch rec.Kind {
	case approval.KindTaskCreateDuplicate:
		// The user saw the duplicate and approved anyway.
		if rec.TaskDraft == nil {
			return Failf("reclaim", CodeInvalidAction, "approved record is missing its task draft"), nil
		}
		return d.createTask(ctx, req, rec.TaskDraft)

	case approval.KindBulkComplete, approval.KindBulkDelete:
		return d.executeBulkTasks(ctx, req, rec)

	case approval.KindBulkUpdate:
		// The preserved intent variant tells the record's side apart.
		if rec.TaskIntent != nil {
			return d.executeBulkTaskUpdate(ctx, req, rec)
		}
		return d.executeBulkEventUpdate(ctx, req, rec)

	case approval.KindBulkCancel:
		return d.executeBulkEventCancel(ctx, req, rec)

	case approval.KindEventCreateDuplicate:
		// Duplicate approved; conflicts have not been assessed yet.
		if rec.EventDraft == nil {
			return Failf("nylas", CodeInvalidAction, "approved record is missing its event draft"), nil
		}
		return d.createEventChecked(ctx, req, rec.EventDraft, true)

	case approval.KindEventCreateConflictReschedule:
		// The approval consumed both gates; create at the suggested slot.
		if rec.EventDraft == nil || rec.SuggestedSlot == nil {
			return Failf("nylas", CodeInvalidAction, "approved record is missing the rescheduled slot"), nil
		}
		draft := *rec.EventDraft
		draft.Start = rec.SuggestedSlot.Start
		draft.End = rec.SuggestedSlot.End
		return d.createEvent(ctx, req, &draft)

	case approval.KindEventCreateWithParticipants:
		if rec.EventDraft == nil {
			return Failf("nylas", CodeInvalidAction, "approved record is missing its event draft"), nil
		}
		return d.createEvent(ctx, req, rec.EventDraft)

	case approval.KindEventUpdateWithParticipants:
		if rec.TargetID == "" || rec.EventIntent == nil || rec.EventIntent.Updates == nil {
			return Failf("nylas", CodeInvalidAction, "approved record is missing the update target"), nil
		}
		return d.performEventUpdate(ctx, req, rec.TargetID, rec.EventIntent.Updates)

	case approval.KindEventCancelWithParticipants:
		if rec.TargetID == "" {
			return Failf("nylas", CodeInvalidAction, "approved record is missing the cancel target"), nil
		}
		return d.performEventCancel(ctx, req, rec.TargetID, rec.ExistingTitle)

	default:
		return Failf("", CodeInvalidAction,
			"action_data kind %q does not match this operation", rec.Kind), nil
	}
}

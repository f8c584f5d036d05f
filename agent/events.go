package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chronoplan/chronoplan/approval"
	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/interpret"
	"github.com/chronoplan/chronoplan/provider/nylas"
	"github.com/chronoplan/chronoplan/schedule"
)

const providerCalendar = "nylas"

// eventLookahead bounds how far forward reference resolution and bulk
// matching look for events.
const eventLookahead = 14 * 24 * time.Hour

// handleEvent executes the calendar side of manage_productivity.
func (d *Dispatcher) handleEvent(ctx context.Context, req *request) (*Response, error) {
	if missing := req.uctx.MissingCredentials(false, true); len(missing) > 0 {
		return SetupNeeded(missing), nil
	}

	ev, err := d.interp.ParseEvent(ctx, req.query, req.uctx)
	if err != nil {
		return Fail(providerCalendar, CodeInterpreterFailed, err), nil
	}

	switch ev.Operation {
	case intent.EventCreate:
		return d.createEventChecked(ctx, req, ev.Draft, false)
	case intent.EventUpdate:
		if approval.IsBulkQuery(req.query, string(ev.Operation)) {
			return d.gateBulkEventUpdate(ctx, req, ev)
		}
		return d.updateEvent(ctx, req, ev)
	default:
		if approval.IsBulkQuery(req.query, string(ev.Operation)) {
			return d.gateBulkEventCancel(ctx, req)
		}
		return d.cancelEvent(ctx, req, ev)
	}
}

// createEventChecked runs the duplicate gate, then the conflict gate,
// then the participant approval gate, in that order. skipDuplicate is
// set on the approved retry of an event_create_duplicate record.
func (d *Dispatcher) createEventChecked(ctx context.Context, req *request, draft *intent.EventDraft, skipDuplicate bool) (*Response, error) {
	cal := d.calendarClient(req.uctx)
	loc := req.uctx.Location

	// One fetch covers the duplicate window, the conflict check, and
	// the slot search. The window opens at start-of-day (or the
	// duplicate window, whichever reaches further back) so an event
	// that began hours earlier but still overlaps the draft is seen.
	fetchFrom := draft.Start.Add(-schedule.EventDuplicateWindow)
	if sod := startOfDay(draft.Start, loc); sod.Before(fetchFrom) {
		fetchFrom = sod
	}
	existing, err := cal.ListEvents(ctx, fetchFrom, draft.Start.Add(eventLookahead))
	if err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}
	intervals := eventIntervals(existing, loc)

	if !skipDuplicate {
		nearby := intervalsWithin(intervals, draft.Start, schedule.EventDuplicateWindow)
		if dup, found := schedule.FindDuplicateEvent(draft.Title, draft.Start, nearby); found {
			rec := approval.NewRecord(approval.KindEventCreateDuplicate, req.raw, approval.Preview{
				Summary: fmt.Sprintf("A similar event already exists: %q at %s. Create %q anyway?",
					dup.Title, dup.Start.Format("Mon Jan 2 15:04"), draft.Title),
				Details: map[string]any{
					"new_title":      draft.Title,
					"existing_title": dup.Title,
					"existing_start": dup.Start.Format(time.RFC3339),
				},
				Risks: []string{"Creating this event may double-book the same meeting."},
			})
			rec.EventDraft = draft
			rec.ExistingID = dup.ID
			rec.ExistingTitle = dup.Title
			return ApprovalNeeded(rec)
		}
	}

	conflicts := schedule.ConflictsWith(draft.Start, draft.End, intervals)
	if len(conflicts) > 0 {
		slot := schedule.FindNextSlot(draft.Start, draft.Duration(), intervals)

		if !draft.HasParticipants() {
			// Solo events auto-reschedule; the response discloses it.
			moved := *draft
			moved.Start = slot.Start
			moved.End = slot.End
			resp, err := d.createEvent(ctx, req, &moved)
			if err != nil || resp.Success == nil || !*resp.Success {
				return resp, err
			}
			resp.Message = fmt.Sprintf(
				"%q conflicted with %s, so it was rescheduled to %s.",
				draft.Title, conflictTitles(conflicts),
				slot.Start.Format("Mon Jan 2 15:04"))
			return resp, nil
		}

		rec := approval.NewRecord(approval.KindEventCreateConflictReschedule, req.raw, approval.Preview{
			Summary: fmt.Sprintf("%q at %s conflicts with %s. Move it to %s?",
				draft.Title, draft.Start.Format("Mon Jan 2 15:04"),
				conflictTitles(conflicts), slot.Start.Format("Mon Jan 2 15:04")),
			Details: map[string]any{
				"original_start":   draft.Start.Format(time.RFC3339),
				"suggested_start":  slot.Start.Format(time.RFC3339),
				"duration_minutes": int(draft.Duration().Minutes()),
				"conflicts_with":   conflictTitleList(conflicts),
			},
			Risks: []string{"Participants will be invited to the rescheduled time."},
		})
		rec.EventDraft = draft
		rec.SuggestedSlot = &slot
		return ApprovalNeeded(rec)
	}

	kind := approval.Rewrite(approval.KindEventCreate, approval.Context{
		HasParticipants: draft.HasParticipants(),
	})
	if approval.RequiresApproval(kind) {
		rec := approval.NewRecord(kind, req.raw, approval.Preview{
			Summary: fmt.Sprintf("Create %q at %s and invite %d participants?",
				draft.Title, draft.Start.Format("Mon Jan 2 15:04"), len(draft.Participants)),
			Details: map[string]any{
				"title":        draft.Title,
				"start":        draft.Start.Format(time.RFC3339),
				"end":          draft.End.Format(time.RFC3339),
				"participants": participantNames(draft.Participants),
			},
			Risks: []string{"Invitations will be sent to all listed participants."},
		})
		rec.EventDraft = draft
		return ApprovalNeeded(rec)
	}

	return d.createEvent(ctx, req, draft)
}

// createEvent performs the provider create with no further gates.
func (d *Dispatcher) createEvent(ctx context.Context, req *request, draft *intent.EventDraft) (*Response, error) {
	cal := d.calendarClient(req.uctx)
	created, err := cal.CreateEvent(ctx, nylas.EventFromDraft(draft, req.uctx.Timezone), draft.HasParticipants())
	if err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}
	return Succeed(providerCalendar, "event_created", eventView(created, req.uctx.Location),
		fmt.Sprintf("Created %q at %s.", created.Title,
			created.Start(req.uctx.Location).Format("Mon Jan 2 15:04"))), nil
}

// updateEvent resolves the reference, fetches the original to learn who
// is actually on it, and either gates on approval or applies the merge.
func (d *Dispatcher) updateEvent(ctx context.Context, req *request, ev *intent.Event) (*Response, error) {
	if ev.Updates == nil {
		return Failf(providerCalendar, CodeInvalidAction, "no changes were given for the update"), nil
	}

	cal := d.calendarClient(req.uctx)
	id, resp, err := d.resolveEvent(ctx, req, cal, ev.EventReference, "update")
	if resp != nil || err != nil {
		return resp, err
	}

	original, err := cal.FindEvent(ctx, id)
	if err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}

	// Participants come from the fetched event, not the interpreter's
	// guess.
	if original.HasOtherParticipants(req.uctx.UserEmail) {
		rec := approval.NewRecord(approval.KindEventUpdateWithParticipants, req.raw, approval.Preview{
			Summary: fmt.Sprintf("%q has %d participants. Update it and notify them?",
				original.Title, len(original.Participants)),
			Details: map[string]any{
				"title":        original.Title,
				"participants": nylasParticipantNames(original.Participants),
			},
			Risks: []string{"All participants will be notified of the change."},
		})
		rec.TargetID = id
		rec.EventIntent = ev
		rec.ExistingTitle = original.Title
		return ApprovalNeeded(rec)
	}

	return d.performEventUpdate(ctx, req, id, ev.Updates)
}

// performEventUpdate merges the updates onto the fetched original,
// writes, then re-queries to verify the change actually persisted.
func (d *Dispatcher) performEventUpdate(ctx context.Context, req *request, id string, updates *intent.EventUpdates) (*Response, error) {
	cal := d.calendarClient(req.uctx)
	loc := req.uctx.Location

	original, err := cal.FindEvent(ctx, id)
	if err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}

	merged := mergeEventUpdates(original, updates, loc)
	if _, err := cal.UpdateEvent(ctx, id, merged, original.HasOtherParticipants(req.uctx.UserEmail)); err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}

	// The provider has been seen acknowledging updates that did not
	// propagate; verify, allowing one extra read for eventual
	// consistency.
	verified := false
	for attempt := 0; attempt < 2; attempt++ {
		after, err := cal.FindEvent(ctx, id)
		if err != nil {
			return Fail(providerCalendar, CodeProviderError, err), nil
		}
		if after.When.StartTime == merged.When.StartTime && after.When.EndTime == merged.When.EndTime {
			verified = true
			merged = after
			break
		}
	}
	if !verified {
		return Failf(providerCalendar, CodeSyncFailure,
			"the calendar acknowledged the update to %q but still reports the old time", merged.Title), nil
	}

	return Succeed(providerCalendar, "event_updated", eventView(merged, loc),
		fmt.Sprintf("Updated %q; now at %s.", merged.Title,
			merged.Start(loc).Format("Mon Jan 2 15:04"))), nil
}

// mergeEventUpdates overlays the requested changes on the original so
// fields the model did not mention survive. A time-only start/end is
// spliced onto the original event's date.
func mergeEventUpdates(original *nylas.Event, updates *intent.EventUpdates, loc *time.Location) *nylas.Event {
	merged := *original
	merged.ID = "" // ids never ride in update bodies

	if updates.Title != nil {
		merged.Title = *updates.Title
	}
	if updates.Location != nil {
		merged.Location = *updates.Location
	}
	if updates.Description != nil {
		merged.Description = *updates.Description
	}

	origStart := original.Start(loc)
	origEnd := original.End(loc)
	duration := origEnd.Sub(origStart)

	newStart := origStart
	if updates.Start != nil {
		newStart = *updates.Start
		if updates.TimeOnly {
			newStart = time.Date(origStart.Year(), origStart.Month(), origStart.Day(),
				updates.Start.Hour(), updates.Start.Minute(), 0, 0, loc)
		}
	}
	newEnd := newStart.Add(duration)
	if updates.End != nil {
		newEnd = *updates.End
		if updates.TimeOnly {
			newEnd = time.Date(newStart.Year(), newStart.Month(), newStart.Day(),
				updates.End.Hour(), updates.End.Minute(), 0, 0, loc)
		}
	}

	merged.When.StartTime = newStart.Unix()
	merged.When.EndTime = newEnd.Unix()
	return &merged
}

// cancelEvent resolves the reference and cancels, gating on approval
// when the fetched event has other participants.
func (d *Dispatcher) cancelEvent(ctx context.Context, req *request, ev *intent.Event) (*Response, error) {
	cal := d.calendarClient(req.uctx)
	id, resp, err := d.resolveEvent(ctx, req, cal, ev.EventReference, "cancel")
	if resp != nil || err != nil {
		return resp, err
	}

	original, err := cal.FindEvent(ctx, id)
	if err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}

	if original.HasOtherParticipants(req.uctx.UserEmail) {
		rec := approval.NewRecord(approval.KindEventCancelWithParticipants, req.raw, approval.Preview{
			Summary: fmt.Sprintf("Cancel %q and notify its %d participants?",
				original.Title, len(original.Participants)),
			Details: map[string]any{
				"title":        original.Title,
				"start":        original.Start(req.uctx.Location).Format(time.RFC3339),
				"participants": nylasParticipantNames(original.Participants),
			},
			Risks: []string{"Cancellation notices will be sent to all participants."},
		})
		rec.TargetID = id
		rec.ExistingTitle = original.Title
		return ApprovalNeeded(rec)
	}

	return d.performEventCancel(ctx, req, id, original.Title)
}

// performEventCancel destroys the event with no further gates.
func (d *Dispatcher) performEventCancel(ctx context.Context, req *request, id, title string) (*Response, error) {
	cal := d.calendarClient(req.uctx)
	if err := cal.DestroyEvent(ctx, id, true); err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}
	if title == "" {
		title = id
	}
	return Succeed(providerCalendar, "event_cancelled",
		map[string]any{"id": id, "title": title},
		fmt.Sprintf("Cancelled %q.", title)), nil
}

// gateBulkEventUpdate matches upcoming events and returns the approval
// gate, carrying the parsed updates for the approved retry.
func (d *Dispatcher) gateBulkEventUpdate(ctx context.Context, req *request, ev *intent.Event) (*Response, error) {
	if ev.Updates == nil {
		return Failf(providerCalendar, CodeInvalidAction, "no changes were given for the update"), nil
	}

	cal := d.calendarClient(req.uctx)
	events, err := cal.ListEvents(ctx, req.uctx.Now, req.uctx.Now.Add(eventLookahead))
	if err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}

	terms := bulkSearchTerms(req.query)
	var matches []approval.BulkMatch
	for _, e := range events {
		if matchesAnyTerm(e.Title, terms) {
			matches = append(matches, approval.BulkMatch{ID: e.ID, Title: e.Title})
		}
	}
	if len(matches) == 0 {
		return Failf(providerCalendar, CodeNotFound, "no upcoming events match the request"), nil
	}

	titles := make([]string, len(matches))
	for i, m := range matches {
		titles[i] = m.Title
	}
	rec := approval.NewRecord(approval.KindBulkUpdate, req.raw, approval.Preview{
		Summary: fmt.Sprintf("This will update %d events.", len(matches)),
		Details: map[string]any{"events": titles},
		Risks:   []string{"Participants on these events will be notified of the changes."},
	})
	rec.EventIntent = ev
	rec.BulkMatches = matches
	return ApprovalNeeded(rec)
}

// executeBulkEventUpdate applies an approved bulk update to every
// matched event, one verified update at a time.
func (d *Dispatcher) executeBulkEventUpdate(ctx context.Context, req *request, rec *approval.Record) (*Response, error) {
	if rec.EventIntent == nil || rec.EventIntent.Updates == nil {
		return Failf(providerCalendar, CodeInvalidAction, "approved record is missing the update changes"), nil
	}

	var updated []string
	var failed []map[string]string
	for _, m := range rec.BulkMatches {
		resp, err := d.performEventUpdate(ctx, req, m.ID, rec.EventIntent.Updates)
		if err != nil {
			return nil, err
		}
		if resp.Success == nil || !*resp.Success {
			failed = append(failed, map[string]string{"title": m.Title, "error": resp.Error})
			continue
		}
		updated = append(updated, m.Title)
	}

	msg := fmt.Sprintf("Updated %d of %d events.", len(updated), len(rec.BulkMatches))
	return Succeed(providerCalendar, "bulk_updated", map[string]any{
		"completed": updated,
		"failed":    failed,
	}, msg), nil
}

// gateBulkEventCancel matches upcoming events and returns the approval
// gate.
func (d *Dispatcher) gateBulkEventCancel(ctx context.Context, req *request) (*Response, error) {
	cal := d.calendarClient(req.uctx)
	events, err := cal.ListEvents(ctx, req.uctx.Now, req.uctx.Now.Add(eventLookahead))
	if err != nil {
		return Fail(providerCalendar, CodeProviderError, err), nil
	}

	terms := bulkSearchTerms(req.query)
	var matches []approval.BulkMatch
	for _, e := range events {
		if matchesAnyTerm(e.Title, terms) {
			matches = append(matches, approval.BulkMatch{ID: e.ID, Title: e.Title})
		}
	}
	if len(matches) == 0 {
		return Failf(providerCalendar, CodeNotFound, "no upcoming events match the request"), nil
	}

	titles := make([]string, len(matches))
	for i, m := range matches {
		titles[i] = m.Title
	}
	rec := approval.NewRecord(approval.KindBulkCancel, req.raw, approval.Preview{
		Summary: fmt.Sprintf("This will cancel %d events.", len(matches)),
		Details: map[string]any{"events": titles},
		Risks:   []string{"Participants on these events will receive cancellation notices."},
	})
	rec.BulkMatches = matches
	return ApprovalNeeded(rec)
}

// executeBulkEventCancel applies an approved bulk cancel.
func (d *Dispatcher) executeBulkEventCancel(ctx context.Context, req *request, rec *approval.Record) (*Response, error) {
	cal := d.calendarClient(req.uctx)

	var cancelled []string
	var failed []map[string]string
	for _, m := range rec.BulkMatches {
		if err := cal.DestroyEvent(ctx, m.ID, true); err != nil {
			failed = append(failed, map[string]string{"title": m.Title, "error": err.Error()})
			continue
		}
		cancelled = append(cancelled, m.Title)
	}

	msg := fmt.Sprintf("Cancelled %d of %d events.", len(cancelled), len(rec.BulkMatches))
	return Succeed(providerCalendar, "bulk_cancelled", map[string]any{
		"completed": cancelled,
		"failed":    failed,
	}, msg), nil
}

// resolveEvent lists upcoming events and resolves the reference. On
// failure the Response return carries the user-facing error.
func (d *Dispatcher) resolveEvent(ctx context.Context, req *request, cal *nylas.Client, reference, operation string) (string, *Response, error) {
	events, err := cal.ListEvents(ctx, req.uctx.Now.Add(-24*time.Hour), req.uctx.Now.Add(eventLookahead))
	if err != nil {
		return "", Fail(providerCalendar, CodeProviderError, err), nil
	}

	candidates := eventCandidates(events, req.uctx.Location)
	res, err := d.interp.ResolveReference(ctx, reference, operation, candidates, req.uctx)
	if err != nil {
		return "", Fail(providerCalendar, CodeInterpreterFailed, err), nil
	}
	if !res.Found {
		return "", resolutionFailure(providerCalendar, reference, res, candidates), nil
	}
	return res.ID, nil, nil
}

func eventIntervals(events []*nylas.Event, loc *time.Location) []schedule.Interval {
	out := make([]schedule.Interval, 0, len(events))
	for _, e := range events {
		out = append(out, e.Interval(loc))
	}
	return out
}

func intervalsWithin(intervals []schedule.Interval, center time.Time, window time.Duration) []schedule.Interval {
	var out []schedule.Interval
	for _, iv := range intervals {
		delta := iv.Start.Sub(center)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			out = append(out, iv)
		}
	}
	return out
}

// eventCandidates shapes events for the resolver. Cancelled events are
// not valid targets and never enter the candidate list.
func eventCandidates(events []*nylas.Event, loc *time.Location) []interpret.Candidate {
	out := make([]interpret.Candidate, 0, len(events))
	for _, e := range events {
		if strings.EqualFold(e.Status, "cancelled") {
			continue
		}
		start := e.Start(loc)
		out = append(out, interpret.Candidate{ID: e.ID, Title: e.Title, When: &start, Status: e.Status})
	}
	return out
}

func eventView(e *nylas.Event, loc *time.Location) map[string]any {
	view := map[string]any{
		"id":    e.ID,
		"title": e.Title,
		"start": e.Start(loc).Format(time.RFC3339),
		"end":   e.End(loc).Format(time.RFC3339),
	}
	if e.Location != "" {
		view["location"] = e.Location
	}
	if len(e.Participants) > 0 {
		view["participants"] = nylasParticipantNames(e.Participants)
	}
	return view
}

func conflictTitles(conflicts []schedule.Interval) string {
	return strings.Join(conflictTitleList(conflicts), ", ")
}

func conflictTitleList(conflicts []schedule.Interval) []string {
	titles := make([]string, len(conflicts))
	for i, c := range conflicts {
		titles[i] = fmt.Sprintf("%q", c.Title)
	}
	return titles
}

func participantNames(ps []intent.Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		if p.Name != "" {
			out[i] = p.Name
		} else {
			out[i] = p.Email
		}
	}
	return out
}

func nylasParticipantNames(ps []nylas.Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		if p.Name != "" {
			out[i] = p.Name
		} else {
			out[i] = p.Email
		}
	}
	return out
}

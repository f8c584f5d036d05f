package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chronoplan/chronoplan/approval"
	"github.com/chronoplan/chronoplan/interpret"
	"github.com/chronoplan/chronoplan/provider/nylas"
	"github.com/chronoplan/chronoplan/provider/reclaim"
)

// optimizeSchedule gathers the schedule, asks for concrete suggestions,
// and either applies them or gates on approval when any touch other
// people's calendars.
func (d *Dispatcher) optimizeSchedule(ctx context.Context, req *request) (*Response, error) {
	if req.approved != nil {
		return d.resumeOptimize(ctx, req)
	}

	if missing := req.uctx.MissingCredentials(false, true); len(missing) > 0 {
		return SetupNeeded(missing), nil
	}

	opt, err := d.interp.ParseOptimization(ctx, req.query, req.uctx)
	if err != nil {
		return Fail("", CodeInterpreterFailed, err), nil
	}

	tasks, events, resp := d.fetchForOptimization(ctx, req, opt.Range.Start, opt.Range.End)
	if resp != nil {
		return resp, nil
	}

	stats := computeStats(req, tasks, events)
	suggestions, err := d.interp.Suggest(ctx, opt, stats,
		taskCandidates(tasks, req.uctx.Location),
		eventCandidates(events, req.uctx.Location),
		req.uctx)
	if err != nil {
		return Fail("", CodeInterpreterFailed, err), nil
	}
	if len(suggestions) == 0 {
		return Succeed("", "schedule_optimized", map[string]any{
			"stats":       stats,
			"suggestions": []any{},
		}, "The schedule already looks well balanced; nothing to change."), nil
	}

	if anyAffectsOthers(suggestions) {
		plan, err := json.Marshal(suggestions)
		if err != nil {
			return nil, fmt.Errorf("marshal optimization plan: %w", err)
		}
		rec := approval.NewRecord(approval.KindBulkReschedule, req.raw, approval.Preview{
			Summary: fmt.Sprintf("%d schedule changes proposed; some affect other people's calendars.", len(suggestions)),
			Details: map[string]any{"suggestions": suggestionViews(suggestions)},
			Risks:   []string{"Moved meetings will notify their participants."},
		})
		rec.OptimizationPlan = plan
		return ApprovalNeeded(rec)
	}

	return d.applySuggestions(ctx, req, stats, suggestions)
}

// resumeOptimize applies an approved optimization plan.
func (d *Dispatcher) resumeOptimize(ctx context.Context, req *request) (*Response, error) {
	rec := req.approved
	if err := rec.ExpectKind(approval.KindBulkReschedule); err != nil {
		return Fail("", CodeInvalidAction, err), nil
	}
	var suggestions []interpret.Suggestion
	if err := json.Unmarshal(rec.OptimizationPlan, &suggestions); err != nil {
		return Failf("", CodeInvalidAction, "approved record carries no readable plan: %v", err), nil
	}
	return d.applySuggestions(ctx, req, interpret.ScheduleStats{}, suggestions)
}

func (d *Dispatcher) fetchForOptimization(ctx context.Context, req *request, start, end time.Time) ([]*reclaim.Task, []*nylas.Event, *Response) {
	var (
		tasks  []*reclaim.Task
		events []*nylas.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	cal := d.calendarClient(req.uctx)
	g.Go(func() error {
		var err error
		events, err = cal.ListEvents(gctx, start, end)
		return err
	})
	if req.uctx.HasTaskProvider() {
		tc := d.taskClient(req.uctx)
		g.Go(func() error {
			var err error
			tasks, err = tc.ListActive(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, Fail("", CodeProviderError, err)
	}
	return tasks, events, nil
}

// computeStats summarizes the schedule for the suggestion prompt.
func computeStats(req *request, tasks []*reclaim.Task, events []*nylas.Event) interpret.ScheduleStats {
	loc := req.uctx.Location

	var stats interpret.ScheduleStats
	for _, t := range tasks {
		stats.CommittedHours += t.DurationHours()
	}
	for _, e := range events {
		hours := e.End(loc).Sub(e.Start(loc)).Hours()
		stats.CommittedHours += hours
		if e.HasOtherParticipants(req.uctx.UserEmail) {
			stats.MeetingCount++
			stats.MeetingHours += hours
		} else {
			stats.SoloWorkHours += hours
		}
	}
	stats.FocusHoursAvailable = weeklyCapacityHours - stats.CommittedHours
	if stats.FocusHoursAvailable < 0 {
		stats.FocusHoursAvailable = 0
	}
	return stats
}

func anyAffectsOthers(suggestions []interpret.Suggestion) bool {
	for _, s := range suggestions {
		if s.AffectsOthers {
			return true
		}
	}
	return false
}

// applySuggestions executes each suggestion against its provider,
// aggregating per-item outcomes.
func (d *Dispatcher) applySuggestions(ctx context.Context, req *request,
	stats interpret.ScheduleStats, suggestions []interpret.Suggestion) (*Response, error) {

	cal := d.calendarClient(req.uctx)
	loc := req.uctx.Location

	var applied []string
	var failed []map[string]string
	fail := func(s interpret.Suggestion, err error) {
		failed = append(failed, map[string]string{
			"action": s.Action,
			"target": s.TargetTitle,
			"error":  err.Error(),
		})
	}

	for _, s := range suggestions {
		switch s.Action {
		case "move_event":
			if s.TargetID == "" || s.NewStart == nil || s.NewEnd == nil {
				fail(s, fmt.Errorf("move_event suggestion is missing its target or times"))
				continue
			}
			original, err := cal.FindEvent(ctx, s.TargetID)
			if err != nil {
				fail(s, err)
				continue
			}
			moved := *original
			moved.ID = ""
			moved.When.StartTime = s.NewStart.Unix()
			moved.When.EndTime = s.NewEnd.Unix()
			if _, err := cal.UpdateEvent(ctx, s.TargetID, &moved, original.HasOtherParticipants(req.uctx.UserEmail)); err != nil {
				fail(s, err)
				continue
			}
			applied = append(applied, fmt.Sprintf("Moved %q to %s", original.Title,
				s.NewStart.In(loc).Format("Mon Jan 2 15:04")))

		case "update_task_due":
			if s.TargetID == "" || s.NewStart == nil {
				fail(s, fmt.Errorf("update_task_due suggestion is missing its target or new due"))
				continue
			}
			if !req.uctx.HasTaskProvider() {
				fail(s, fmt.Errorf("task provider is not configured"))
				continue
			}
			tc := d.taskClient(req.uctx)
			if _, err := tc.Update(ctx, s.TargetID, &reclaim.TaskPatch{Due: s.NewStart}); err != nil {
				fail(s, err)
				continue
			}
			applied = append(applied, fmt.Sprintf("Moved task %q due to %s", s.TargetTitle,
				s.NewStart.In(loc).Format("Mon Jan 2")))

		case "create_focus_block":
			if s.NewStart == nil || s.NewEnd == nil {
				fail(s, fmt.Errorf("create_focus_block suggestion is missing its times"))
				continue
			}
			title := s.TargetTitle
			if title == "" {
				title = "Focus time"
			}
			block := &nylas.Event{
				Title: title,
				Busy:  true,
				Reminders: &nylas.Reminders{
					Overrides: []nylas.ReminderOverride{{ReminderMinutes: 5, ReminderMethod: "popup"}},
				},
				When: nylas.When{
					StartTime:     s.NewStart.Unix(),
					EndTime:       s.NewEnd.Unix(),
					StartTimezone: req.uctx.Timezone,
					EndTimezone:   req.uctx.Timezone,
				},
			}
			if _, err := cal.CreateEvent(ctx, block, false); err != nil {
				fail(s, err)
				continue
			}
			applied = append(applied, fmt.Sprintf("Blocked %q at %s", title,
				s.NewStart.In(loc).Format("Mon Jan 2 15:04")))

		default:
			fail(s, fmt.Errorf("unknown suggestion action %q", s.Action))
		}
	}

	data := map[string]any{
		"stats":       stats,
		"suggestions": suggestionViews(suggestions),
		"applied":     applied,
		"failed":      failed,
	}
	msg := fmt.Sprintf("Applied %d of %d schedule changes.", len(applied), len(suggestions))
	return Succeed("", "schedule_optimized", data, msg), nil
}

func suggestionViews(suggestions []interpret.Suggestion) []map[string]any {
	out := make([]map[string]any, 0, len(suggestions))
	for _, s := range suggestions {
		view := map[string]any{
			"type":           s.Type,
			"action":         s.Action,
			"command":        s.Command,
			"impact":         s.Impact,
			"reasoning":      s.Reasoning,
			"affects_others": s.AffectsOthers,
		}
		if s.TargetTitle != "" {
			view["target"] = s.TargetTitle
		}
		out = append(out, view)
	}
	return out
}

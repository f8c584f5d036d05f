package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/provider/nylas"
	"github.com/chronoplan/chronoplan/provider/reclaim"
	"github.com/chronoplan/chronoplan/usercontext"
)

// weeklyCapacityHours is the denominator for busy percentage.
const weeklyCapacityHours = 40.0

// findAndAnalyze is the read-only pipeline: search, schedule views, and
// workload analysis. It never mutates and never needs approval.
func (d *Dispatcher) findAndAnalyze(ctx context.Context, req *request) (*Response, error) {
	search, scope, err := d.interp.ParseSearch(ctx, req.query, req.uctx)
	if err != nil {
		return Fail("", CodeInterpreterFailed, err), nil
	}

	needTasks := scope == "tasks" || scope == "both"
	needEvents := scope == "events" || scope == "both"
	if missing := req.uctx.MissingCredentials(needTasks, needEvents); len(missing) > 0 {
		return SetupNeeded(missing), nil
	}

	tasks, events, resp := d.fetchBoth(ctx, req.uctx, needTasks, needEvents, search)
	if resp != nil {
		return resp, nil
	}

	tasks = filterTasks(tasks, search, req.uctx)
	events = filterEvents(events, search, req.uctx)

	// Pure time queries skip the semantic pass.
	if search.SearchText != "" {
		tasks, events, err = d.semanticFilter(ctx, req, search.SearchText, tasks, events)
		if err != nil {
			return Fail("", CodeInterpreterFailed, err), nil
		}
	}

	if search.Kind == intent.SearchWorkloadAnalysis {
		return d.workloadAnalysis(req.uctx, tasks, events), nil
	}

	data := map[string]any{
		"tasks":  taskViews(tasks, req.uctx.Location),
		"events": eventViews(events, req.uctx.Location),
	}
	msg := fmt.Sprintf("Found %d tasks and %d events.", len(tasks), len(events))
	if scope == "tasks" {
		msg = fmt.Sprintf("Found %d tasks.", len(tasks))
	} else if scope == "events" {
		msg = fmt.Sprintf("Found %d events.", len(events))
	}
	return Succeed("", string(search.Kind), data, msg), nil
}

// fetchBoth pulls tasks and events concurrently; the two reads are
// independent.
func (d *Dispatcher) fetchBoth(ctx context.Context, uctx *usercontext.Context,
	needTasks, needEvents bool, search *intent.Search) ([]*reclaim.Task, []*nylas.Event, *Response) {

	var (
		tasks  []*reclaim.Task
		events []*nylas.Event
	)

	g, gctx := errgroup.WithContext(ctx)
	if needTasks {
		tc := d.taskClient(uctx)
		g.Go(func() error {
			var err error
			if search.IncludeCompleted {
				tasks, err = tc.List(gctx)
			} else {
				tasks, err = tc.ListActive(gctx)
			}
			return err
		})
	}
	if needEvents {
		cal := d.calendarClient(uctx)
		start, end := eventFetchWindow(search, uctx)
		g.Go(func() error {
			var err error
			events, err = cal.ListEvents(gctx, start, end)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, Fail("", CodeProviderError, err)
	}
	return tasks, events, nil
}

// eventFetchWindow picks the provider query range: the search's own
// range when present, otherwise two weeks around now.
func eventFetchWindow(search *intent.Search, uctx *usercontext.Context) (time.Time, time.Time) {
	if search.Range != nil {
		return search.Range.Start, search.Range.End
	}
	return uctx.Now.Add(-24 * time.Hour), uctx.Now.Add(eventLookahead)
}

func filterTasks(tasks []*reclaim.Task, search *intent.Search, uctx *usercontext.Context) []*reclaim.Task {
	var out []*reclaim.Task
	for _, t := range tasks {
		if search.Priority != "" && t.Priority != string(search.Priority) {
			continue
		}
		if search.Kind == intent.SearchFindOverdue {
			if !t.Overdue(uctx.Now) {
				continue
			}
		} else if search.Range != nil {
			if t.Due == nil {
				continue
			}
			due := t.Due.In(uctx.Location)
			if due.Before(search.Range.Start) || !due.Before(search.Range.End) {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

func filterEvents(events []*nylas.Event, search *intent.Search, uctx *usercontext.Context) []*nylas.Event {
	var out []*nylas.Event
	for _, e := range events {
		if search.Range != nil {
			start := e.Start(uctx.Location)
			if start.Before(search.Range.Start) || !start.Before(search.Range.End) {
				continue
			}
		}
		if len(search.Participants) > 0 && !eventHasAnyParticipant(e, search.Participants) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func eventHasAnyParticipant(e *nylas.Event, names []string) bool {
	for _, want := range names {
		for _, p := range e.Participants {
			if containsFold(p.Name, want) || containsFold(p.Email, want) {
				return true
			}
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return needle != "" &&
		strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// semanticFilter keeps only items whose titles match the search text by
// meaning.
func (d *Dispatcher) semanticFilter(ctx context.Context, req *request, searchText string,
	tasks []*reclaim.Task, events []*nylas.Event) ([]*reclaim.Task, []*nylas.Event, error) {

	candidates := taskCandidates(tasks, req.uctx.Location)
	candidates = append(candidates, eventCandidates(events, req.uctx.Location)...)

	ids, err := d.interp.SemanticMatch(ctx, searchText, candidates, req.uctx)
	if err != nil {
		return nil, nil, err
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	var keptTasks []*reclaim.Task
	for _, t := range tasks {
		if keep[t.StringID()] {
			keptTasks = append(keptTasks, t)
		}
	}
	var keptEvents []*nylas.Event
	for _, e := range events {
		if keep[e.ID] {
			keptEvents = append(keptEvents, e)
		}
	}
	return keptTasks, keptEvents, nil
}

// workloadAnalysis computes the schedule metrics and their insights.
func (d *Dispatcher) workloadAnalysis(uctx *usercontext.Context, tasks []*reclaim.Task, events []*nylas.Event) *Response {
	loc := uctx.Location
	now := uctx.Now

	weekStart := startOfWeek(now, loc)
	weekEnd := weekStart.AddDate(0, 0, 7)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var (
		taskHours     float64
		overdue       int
		tasksThisWeek int
	)
	for _, t := range tasks {
		taskHours += t.DurationHours()
		if t.Overdue(now) {
			overdue++
		}
		if t.Due != nil {
			due := t.Due.In(loc)
			if !due.Before(weekStart) && due.Before(weekEnd) {
				tasksThisWeek++
			}
		}
	}

	var (
		eventHours      float64
		eventsToday     int
		eventsThisWeek  int
		eventsWithOther int
	)
	for _, e := range events {
		start := e.Start(loc)
		eventHours += e.End(loc).Sub(start).Hours()
		if !start.Before(dayStart) && start.Before(dayEnd) {
			eventsToday++
		}
		if !start.Before(weekStart) && start.Before(weekEnd) {
			eventsThisWeek++
		}
		if e.HasOtherParticipants(uctx.UserEmail) {
			eventsWithOther++
		}
	}

	committed := taskHours + eventHours
	busy := committed / weeklyCapacityHours * 100
	if busy > 100 {
		busy = 100
	}

	var insights []string
	if overdue > 0 {
		insights = append(insights, fmt.Sprintf("%d tasks are overdue; clearing them should come first.", overdue))
	}
	if busy > 80 {
		insights = append(insights, fmt.Sprintf("The week is %.0f%% committed; there is little room for new work.", busy))
	} else if busy < 40 {
		insights = append(insights, fmt.Sprintf("The week is only %.0f%% committed; there is capacity for more.", busy))
	}
	if eventsWithOther > 5 {
		insights = append(insights, fmt.Sprintf("%d meetings involve other people; consider declining or shortening some.", eventsWithOther))
	}
	if eventsToday > 4 {
		insights = append(insights, fmt.Sprintf("Today has %d events; focus time will be scarce.", eventsToday))
	}

	data := map[string]any{
		"tasks": map[string]any{
			"total":       len(tasks),
			"overdue":     overdue,
			"this_week":   tasksThisWeek,
			"total_hours": taskHours,
		},
		"events": map[string]any{
			"total":       len(events),
			"today":       eventsToday,
			"this_week":   eventsThisWeek,
			"total_hours": eventHours,
			"with_others": eventsWithOther,
		},
		"committed_hours": committed,
		"busy_percentage": busy,
		"insights":        insights,
	}
	return Succeed("", "workload_analysis", data,
		fmt.Sprintf("You are %.0f%% committed this week across %d tasks and %d events.",
			busy, len(tasks), len(events)))
}

func startOfWeek(t time.Time, loc *time.Location) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func taskViews(tasks []*reclaim.Task, loc *time.Location) []map[string]any {
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskView(t, loc))
	}
	return out
}

func eventViews(events []*nylas.Event, loc *time.Location) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, eventView(e, loc))
	}
	return out
}

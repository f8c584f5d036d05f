package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/provider/reclaim"
	"github.com/chronoplan/chronoplan/schedule"
)

// maxSlotSuggestions is how many ranked slots a find_slots call returns.
const maxSlotSuggestions = 5

// slotStep is the candidate-start granularity for the day sweep.
const slotStep = 15 * time.Minute

// checkAvailability answers "am I free at X" and "find me N minutes".
func (d *Dispatcher) checkAvailability(ctx context.Context, req *request) (*Response, error) {
	if missing := req.uctx.MissingCredentials(false, true); len(missing) > 0 {
		return SetupNeeded(missing), nil
	}

	avail, err := d.interp.ParseAvailability(ctx, req.query, req.uctx)
	if err != nil {
		return Fail("", CodeInterpreterFailed, err), nil
	}

	if avail.Kind == intent.AvailabilitySpecificTime {
		return d.specificTime(ctx, req, avail)
	}
	return d.findSlots(ctx, req, avail)
}

// specificTime checks one instant: free iff nothing conflicts with
// [at, at+duration] under the buffer rule. Tasks due in the window are
// reported alongside but do not block.
func (d *Dispatcher) specificTime(ctx context.Context, req *request, avail *intent.Availability) (*Response, error) {
	loc := req.uctx.Location
	at := avail.At.In(loc)
	end := at.Add(time.Duration(avail.DurationMinutes) * time.Minute)

	var (
		intervals []schedule.Interval
		tasksDue  []*reclaim.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	cal := d.calendarClient(req.uctx)
	g.Go(func() error {
		events, err := cal.ListEvents(gctx, at.Add(-schedule.Buffer), end.Add(schedule.Buffer))
		if err != nil {
			return err
		}
		intervals = eventIntervals(events, loc)
		return nil
	})
	if req.uctx.HasTaskProvider() {
		tc := d.taskClient(req.uctx)
		g.Go(func() error {
			active, err := tc.ListActive(gctx)
			if err != nil {
				return err
			}
			for _, t := range active {
				if t.Due != nil {
					due := t.Due.In(loc)
					if !due.Before(at) && due.Before(end) {
						tasksDue = append(tasksDue, t)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Fail("", CodeProviderError, err), nil
	}

	conflicts := schedule.ConflictsWith(at, end, intervals)
	available := len(conflicts) == 0

	data := map[string]any{
		"available":        available,
		"at":               at.Format(time.RFC3339),
		"duration_minutes": avail.DurationMinutes,
		"conflicts":        conflictTitleList(conflicts),
		"tasks_due":        taskViews(tasksDue, loc),
	}
	msg := fmt.Sprintf("You are free at %s.", at.Format("Mon Jan 2 15:04"))
	if !available {
		msg = fmt.Sprintf("You are busy at %s; it conflicts with %s.",
			at.Format("Mon Jan 2 15:04"), conflictTitles(conflicts))
	}
	return Succeed(providerCalendar, "availability_checked", data, msg), nil
}

// findSlots sweeps the date range day by day and returns the top slots
// by confidence.
func (d *Dispatcher) findSlots(ctx context.Context, req *request, avail *intent.Availability) (*Response, error) {
	loc := req.uctx.Location
	duration := time.Duration(avail.DurationMinutes) * time.Minute

	rangeStart := req.uctx.Now
	rangeEnd := rangeStart.AddDate(0, 0, 7)
	if avail.Range != nil {
		rangeStart = avail.Range.Start
		rangeEnd = avail.Range.End
	}
	if rangeStart.Before(req.uctx.Now) {
		rangeStart = req.uctx.Now
	}

	var (
		busy     []schedule.Interval
		taskBusy []schedule.Interval
	)
	g, gctx := errgroup.WithContext(ctx)
	cal := d.calendarClient(req.uctx)
	g.Go(func() error {
		events, err := cal.ListEvents(gctx, rangeStart, rangeEnd)
		if err != nil {
			return err
		}
		busy = eventIntervals(events, loc)
		return nil
	})
	if req.uctx.HasTaskProvider() {
		tc := d.taskClient(req.uctx)
		g.Go(func() error {
			active, err := tc.ListActive(gctx)
			if err != nil {
				return err
			}
			taskBusy = taskIntervals(active, rangeStart, rangeEnd, loc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Fail("", CodeProviderError, err), nil
	}
	busy = append(busy, taskBusy...)

	earliest, latest := slotHourBounds(avail.Preferences)
	var scored []schedule.ScoredSlot

	for day := startOfDay(rangeStart, loc); day.Before(rangeEnd); day = day.AddDate(0, 0, 1) {
		if isWeekend(day) && !avail.Preferences.IncludeWeekends {
			continue
		}
		dayStart := day.Add(time.Duration(earliest) * time.Hour)
		dayEnd := day.Add(time.Duration(latest) * time.Hour)

		for probe := dayStart; !probe.Add(duration).After(dayEnd); probe = probe.Add(slotStep) {
			if probe.Before(rangeStart) {
				continue
			}
			end := probe.Add(duration)
			if len(schedule.ConflictsWith(probe, end, busy)) > 0 {
				continue
			}
			scored = append(scored, schedule.ScoredSlot{
				Slot:       schedule.Slot{Start: probe, End: end},
				Confidence: schedule.SlotConfidence(probe, avail.DurationMinutes, avail.Preferences),
			})
			// One free slot per hour per day keeps the candidate list
			// representative without flooding the ranking.
			probe = probe.Add(time.Hour - slotStep)
		}
	}

	top := schedule.RankSlots(scored, maxSlotSuggestions)
	slots := make([]map[string]any, 0, len(top))
	for _, s := range top {
		slots = append(slots, map[string]any{
			"start":      s.Slot.Start.Format(time.RFC3339),
			"end":        s.Slot.End.Format(time.RFC3339),
			"confidence": s.Confidence,
		})
	}

	data := map[string]any{
		"duration_minutes": avail.DurationMinutes,
		"slots":            slots,
	}
	if len(top) == 0 {
		return Succeed(providerCalendar, "slots_found", data,
			"No free slots of that length were found in the range."), nil
	}
	return Succeed(providerCalendar, "slots_found", data,
		fmt.Sprintf("Found %d candidate slots; the best is %s.",
			len(top), top[0].Slot.Start.Format("Mon Jan 2 15:04"))), nil
}

// slotHourBounds intersects the caller's preferred hours with working
// hours.
func slotHourBounds(prefs intent.SlotPreferences) (earliest, latest int) {
	earliest = schedule.WorkdayStartHour
	latest = schedule.WorkdayEndHour
	if prefs.EarliestHour > 0 && prefs.EarliestHour > earliest {
		earliest = prefs.EarliestHour
	}
	if prefs.LatestHour > 0 && prefs.LatestHour < latest {
		latest = prefs.LatestHour
	}
	if prefs.PreferEvening && prefs.LatestHour == 0 {
		latest = 21
	}
	if latest <= earliest {
		earliest, latest = schedule.WorkdayStartHour, schedule.WorkdayEndHour
	}
	return earliest, latest
}

// taskIntervals reserves the window each task needs ahead of its due
// instant, so slot search does not hand out time already owed to a
// deadline inside the range.
func taskIntervals(tasks []*reclaim.Task, rangeStart, rangeEnd time.Time, loc *time.Location) []schedule.Interval {
	var out []schedule.Interval
	for _, t := range tasks {
		if t.Due == nil || t.DurationHours() == 0 {
			continue
		}
		due := t.Due.In(loc)
		if due.Before(rangeStart) || due.After(rangeEnd) {
			continue
		}
		out = append(out, schedule.Interval{
			Start: due.Add(-time.Duration(t.DurationHours() * float64(time.Hour))),
			End:   due,
			Title: t.Title,
			ID:    t.StringID(),
		})
	}
	return out
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chronoplan/chronoplan/approval"
	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/interpret"
	"github.com/chronoplan/chronoplan/provider/reclaim"
	"github.com/chronoplan/chronoplan/schedule"
)

const providerTasks = "reclaim"

// handleTask executes the task side of manage_productivity.
func (d *Dispatcher) handleTask(ctx context.Context, req *request) (*Response, error) {
	if missing := req.uctx.MissingCredentials(true, false); len(missing) > 0 {
		return SetupNeeded(missing), nil
	}

	ti, err := d.interp.ParseTask(ctx, req.query, req.uctx)
	if err != nil {
		return Fail(providerTasks, CodeInterpreterFailed, err), nil
	}

	switch ti.Operation {
	case intent.TaskCreate:
		return d.createTaskChecked(ctx, req, ti.Draft)
	case intent.TaskComplete:
		if approval.IsBulkQuery(req.query, string(ti.Operation)) {
			return d.gateBulkTasks(ctx, req, approval.KindBulkComplete)
		}
		return d.singleTaskMutation(ctx, req, ti)
	case intent.TaskDelete:
		if approval.IsBulkQuery(req.query, string(ti.Operation)) {
			return d.gateBulkTasks(ctx, req, approval.KindBulkDelete)
		}
		return d.singleTaskMutation(ctx, req, ti)
	case intent.TaskUpdate:
		if approval.IsBulkQuery(req.query, string(ti.Operation)) {
			return d.gateBulkTaskUpdate(ctx, req, ti)
		}
		return d.singleTaskMutation(ctx, req, ti)
	default:
		return d.singleTaskMutation(ctx, req, ti)
	}
}

// createTaskChecked runs the duplicate gate before creating.
func (d *Dispatcher) createTaskChecked(ctx context.Context, req *request, draft *intent.TaskDraft) (*Response, error) {
	tc := d.taskClient(req.uctx)
	active, err := tc.ListActive(ctx)
	if err != nil {
		return Fail(providerTasks, CodeProviderError, err), nil
	}

	titles := make([]string, len(active))
	for i, t := range active {
		titles[i] = t.Title
	}
	if existing, dup := schedule.FindDuplicateTitle(draft.Title, titles); dup {
		rec := approval.NewRecord(approval.KindTaskCreateDuplicate, req.raw, approval.Preview{
			Summary: fmt.Sprintf("A similar task already exists: %q. Create %q anyway?", existing, draft.Title),
			Details: map[string]any{
				"new_title":      draft.Title,
				"existing_title": existing,
			},
			Risks: []string{"Creating this task may duplicate existing work."},
		})
		rec.TaskDraft = draft
		rec.ExistingTitle = existing
		for _, t := range active {
			if t.Title == existing {
				rec.ExistingID = t.StringID()
				break
			}
		}
		return ApprovalNeeded(rec)
	}

	return d.createTask(ctx, req, draft)
}

// createTask performs the provider create with no further gates.
func (d *Dispatcher) createTask(ctx context.Context, req *request, draft *intent.TaskDraft) (*Response, error) {
	tc := d.taskClient(req.uctx)
	created, err := tc.Create(ctx, reclaim.TaskFromDraft(draft))
	if err != nil {
		return Fail(providerTasks, CodeProviderError, err), nil
	}
	return Succeed(providerTasks, "task_created", taskView(created, req.uctx.Location),
		fmt.Sprintf("Created task %q.", created.Title)), nil
}

// singleTaskMutation resolves the reference and applies one mutation.
func (d *Dispatcher) singleTaskMutation(ctx context.Context, req *request, ti *intent.Task) (*Response, error) {
	tc := d.taskClient(req.uctx)
	active, err := tc.ListActive(ctx)
	if err != nil {
		return Fail(providerTasks, CodeProviderError, err), nil
	}

	candidates := taskCandidates(active, req.uctx.Location)
	res, err := d.interp.ResolveReference(ctx, ti.TaskReference, string(ti.Operation), candidates, req.uctx)
	if err != nil {
		return Fail(providerTasks, CodeInterpreterFailed, err), nil
	}
	if !res.Found {
		return resolutionFailure(providerTasks, ti.TaskReference, res, candidates), nil
	}

	title := interpret.TitleOf(res.ID, candidates)

	switch ti.Operation {
	case intent.TaskComplete:
		if err := tc.MarkComplete(ctx, res.ID); err != nil {
			return Fail(providerTasks, CodeProviderError, err), nil
		}
		return Succeed(providerTasks, "task_completed",
			map[string]any{"id": res.ID, "title": title},
			fmt.Sprintf("Marked %q complete.", title)), nil

	case intent.TaskDelete:
		if err := tc.Delete(ctx, res.ID); err != nil {
			return Fail(providerTasks, CodeProviderError, err), nil
		}
		return Succeed(providerTasks, "task_deleted",
			map[string]any{"id": res.ID, "title": title},
			fmt.Sprintf("Deleted %q.", title)), nil

	case intent.TaskAddTime:
		if ti.TimeToAddHours <= 0 {
			return Failf(providerTasks, CodeInvalidAction, "no amount of time to add was given"), nil
		}
		if err := tc.AddTime(ctx, res.ID, ti.TimeToAddHours); err != nil {
			return Fail(providerTasks, CodeProviderError, err), nil
		}
		return Succeed(providerTasks, "task_time_added",
			map[string]any{"id": res.ID, "title": title, "hours_added": ti.TimeToAddHours},
			fmt.Sprintf("Added %.1f hours to %q.", ti.TimeToAddHours, title)), nil

	case intent.TaskUpdate:
		patch, err := taskPatchFromUpdates(ti.Updates, req)
		if err != nil {
			return Fail(providerTasks, CodeInvalidAction, err), nil
		}
		updated, err := tc.Update(ctx, res.ID, patch)
		if err != nil {
			return Fail(providerTasks, CodeProviderError, err), nil
		}
		return Succeed(providerTasks, "task_updated", taskView(updated, req.uctx.Location),
			fmt.Sprintf("Updated %q.", updated.Title)), nil

	default:
		return Failf(providerTasks, CodeInvalidAction, "unsupported task operation %q", ti.Operation), nil
	}
}

// taskPatchFromUpdates converts the interpreter's loose update map into
// a typed provider patch.
func taskPatchFromUpdates(updates map[string]any, req *request) (*reclaim.TaskPatch, error) {
	patch := &reclaim.TaskPatch{}
	for key, value := range updates {
		switch key {
		case "title":
			if s, ok := value.(string); ok && s != "" {
				patch.Title = &s
			}
		case "notes":
			if s, ok := value.(string); ok {
				patch.Notes = &s
			}
		case "priority":
			if s, ok := value.(string); ok && s != "" {
				patch.Priority = &s
			}
		case "due":
			s, ok := value.(string)
			if !ok || s == "" {
				continue
			}
			due, err := interpret.ParseInstant(s, req.uctx)
			if err != nil {
				return nil, fmt.Errorf("update due: %w", err)
			}
			patch.Due = &due
		case "duration_hours":
			if f, ok := value.(float64); ok && f > 0 {
				chunks := reclaim.HoursToChunks(f)
				patch.TimeChunksRequired = &chunks
			}
		}
	}
	return patch, nil
}

// bulkTermPattern pulls quoted search terms out of a bulk query.
var bulkTermPattern = regexp.MustCompile(`'([^']+)'`)

// bulkSearchTerms extracts the filter terms for a bulk operation:
// quoted phrases first, then the words after "with". An empty result
// means the operation applies to every active item.
func bulkSearchTerms(query string) []string {
	var terms []string
	for _, m := range bulkTermPattern.FindAllStringSubmatch(query, -1) {
		terms = append(terms, strings.TrimSpace(m[1]))
	}
	if len(terms) > 0 {
		return terms
	}
	if _, after, ok := strings.Cut(strings.ToLower(query), " with "); ok {
		after = strings.TrimSpace(after)
		if after != "" {
			terms = append(terms, after)
		}
	}
	return terms
}

// gateBulkTasks matches the targets and returns the approval gate.
// Bulk mutations always require sign-off.
func (d *Dispatcher) gateBulkTasks(ctx context.Context, req *request, kind approval.Kind) (*Response, error) {
	tc := d.taskClient(req.uctx)
	active, err := tc.ListActive(ctx)
	if err != nil {
		return Fail(providerTasks, CodeProviderError, err), nil
	}

	terms := bulkSearchTerms(req.query)
	var matches []approval.BulkMatch
	for _, t := range active {
		if matchesAnyTerm(t.Title, terms) {
			matches = append(matches, approval.BulkMatch{ID: t.StringID(), Title: t.Title})
		}
	}
	if len(matches) == 0 {
		return Failf(providerTasks, CodeNotFound, "no active tasks match the request"), nil
	}

	verb := "complete"
	if kind == approval.KindBulkDelete {
		verb = "delete"
	}
	titles := make([]string, len(matches))
	for i, m := range matches {
		titles[i] = m.Title
	}
	rec := approval.NewRecord(kind, req.raw, approval.Preview{
		Summary: fmt.Sprintf("This will %s %d tasks.", verb, len(matches)),
		Details: map[string]any{"tasks": titles},
		Risks:   []string{fmt.Sprintf("All %d tasks will be %sd at once.", len(matches), verb)},
	})
	rec.BulkMatches = matches
	return ApprovalNeeded(rec)
}

// matchesAnyTerm reports whether the title contains any term after
// normalization. No terms means match everything.
func matchesAnyTerm(title string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	normalized := schedule.NormalizeTitle(title)
	for _, term := range terms {
		if strings.Contains(normalized, schedule.NormalizeTitle(term)) {
			return true
		}
	}
	return false
}

// gateBulkTaskUpdate matches the targets and returns the approval gate,
// carrying the parsed updates so the approved retry can apply them.
func (d *Dispatcher) gateBulkTaskUpdate(ctx context.Context, req *request, ti *intent.Task) (*Response, error) {
	if len(ti.Updates) == 0 {
		return Failf(providerTasks, CodeInvalidAction, "no changes were given for the update"), nil
	}
	if _, err := taskPatchFromUpdates(ti.Updates, req); err != nil {
		return Fail(providerTasks, CodeInvalidAction, err), nil
	}

	tc := d.taskClient(req.uctx)
	active, err := tc.ListActive(ctx)
	if err != nil {
		return Fail(providerTasks, CodeProviderError, err), nil
	}

	terms := bulkSearchTerms(req.query)
	var matches []approval.BulkMatch
	for _, t := range active {
		if matchesAnyTerm(t.Title, terms) {
			matches = append(matches, approval.BulkMatch{ID: t.StringID(), Title: t.Title})
		}
	}
	if len(matches) == 0 {
		return Failf(providerTasks, CodeNotFound, "no active tasks match the request"), nil
	}

	titles := make([]string, len(matches))
	for i, m := range matches {
		titles[i] = m.Title
	}
	rec := approval.NewRecord(approval.KindBulkUpdate, req.raw, approval.Preview{
		Summary: fmt.Sprintf("This will update %d tasks.", len(matches)),
		Details: map[string]any{"tasks": titles, "changes": ti.Updates},
		Risks:   []string{fmt.Sprintf("All %d tasks will be changed at once.", len(matches))},
	})
	rec.TaskIntent = ti
	rec.BulkMatches = matches
	return ApprovalNeeded(rec)
}

// executeBulkTaskUpdate applies an approved bulk update: the patch is
// built once from the preserved intent and applied to every match.
func (d *Dispatcher) executeBulkTaskUpdate(ctx context.Context, req *request, rec *approval.Record) (*Response, error) {
	if rec.TaskIntent == nil || len(rec.TaskIntent.Updates) == 0 {
		return Failf(providerTasks, CodeInvalidAction, "approved record is missing the update changes"), nil
	}
	patch, err := taskPatchFromUpdates(rec.TaskIntent.Updates, req)
	if err != nil {
		return Fail(providerTasks, CodeInvalidAction, err), nil
	}

	tc := d.taskClient(req.uctx)
	var updated []string
	var failed []map[string]string
	for _, m := range rec.BulkMatches {
		if _, err := tc.Update(ctx, m.ID, patch); err != nil {
			failed = append(failed, map[string]string{"title": m.Title, "error": err.Error()})
			continue
		}
		updated = append(updated, m.Title)
	}

	msg := fmt.Sprintf("Updated %d of %d tasks.", len(updated), len(rec.BulkMatches))
	return Succeed(providerTasks, "bulk_updated", map[string]any{
		"completed": updated,
		"failed":    failed,
	}, msg), nil
}

// executeBulkTasks applies an approved bulk complete or delete,
// aggregating per-item outcomes into one response.
func (d *Dispatcher) executeBulkTasks(ctx context.Context, req *request, rec *approval.Record) (*Response, error) {
	tc := d.taskClient(req.uctx)

	var completed []string
	var failed []map[string]string
	for _, m := range rec.BulkMatches {
		var err error
		if rec.Kind == approval.KindBulkDelete {
			err = tc.Delete(ctx, m.ID)
		} else {
			err = tc.MarkComplete(ctx, m.ID)
		}
		if err != nil {
			failed = append(failed, map[string]string{"title": m.Title, "error": err.Error()})
			continue
		}
		completed = append(completed, m.Title)
	}

	action := "bulk_completed"
	if rec.Kind == approval.KindBulkDelete {
		action = "bulk_deleted"
	}
	msg := fmt.Sprintf("Processed %d of %d tasks.", len(completed), len(rec.BulkMatches))
	return Succeed(providerTasks, action, map[string]any{
		"completed": completed,
		"failed":    failed,
	}, msg), nil
}

// taskCandidates shapes provider tasks for the resolver.
func taskCandidates(tasks []*reclaim.Task, loc *time.Location) []interpret.Candidate {
	out := make([]interpret.Candidate, 0, len(tasks))
	for _, t := range tasks {
		c := interpret.Candidate{ID: t.StringID(), Title: t.Title, Status: t.Status}
		if t.Due != nil {
			due := t.Due.In(loc)
			c.When = &due
		}
		out = append(out, c)
	}
	return out
}

// taskView shapes a provider task for the response payload.
func taskView(t *reclaim.Task, loc *time.Location) map[string]any {
	view := map[string]any{
		"id":       t.StringID(),
		"title":    t.Title,
		"status":   t.Status,
		"priority": t.Priority,
	}
	if t.Due != nil {
		view["due"] = t.Due.In(loc).Format(time.RFC3339)
	}
	if t.TimeChunksRequired > 0 {
		view["duration_hours"] = t.DurationHours()
	}
	return view
}

// resolutionFailure shapes not-found and ambiguous outcomes, listing
// candidate titles so the caller can re-ask with better words.
func resolutionFailure(provider, reference string, res *intent.Resolution, candidates []interpret.Candidate) *Response {
	if len(res.AmbiguousMatches) > 0 {
		var titles []string
		for _, id := range res.AmbiguousMatches {
			if t := interpret.TitleOf(id, candidates); t != "" {
				titles = append(titles, t)
			}
		}
		return Failf(provider, CodeAmbiguous,
			"%q matches several items: %s", reference, strings.Join(titles, "; "))
	}

	var titles []string
	for i := 0; i < len(candidates) && i < 5; i++ {
		titles = append(titles, candidates[i].Title)
	}
	if len(titles) == 0 {
		return Failf(provider, CodeNotFound, "no item matches %q; nothing is active", reference)
	}
	return Failf(provider, CodeNotFound,
		"no item matches %q; active items include: %s", reference, strings.Join(titles, "; "))
}

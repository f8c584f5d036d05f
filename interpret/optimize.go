package interpret

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/usercontext"
)

const optimizeToolName = "extract_optimization_intent"

var optimizeTool = llm.ToolDefinition{
	Name:        optimizeToolName,
	Description: "Extract the structured optimization goal from the request.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type": map[string]any{
				"type": "string",
				"enum": []string{"focus_time", "workload_balance", "energy_alignment",
					"priority_based", "meeting_reduction", "general"},
			},
			"goals": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"range_keyword": map[string]any{
				"type": "string",
				"enum": []string{"today", "tomorrow", "this_week", "next_week"},
			},
			"preferences": map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		},
		"required":             []string{"type", "range_keyword"},
		"additionalProperties": false,
	}),
}

const optimizeSystemPrompt = `You extract schedule-optimization goals from productivity requests.

Rules:
- "carve out focus time" / "protect deep work" -> focus_time.
- "spread my work out" / "I'm overloaded on Tuesday" ->
  workload_balance.
- "schedule hard work when I'm fresh" -> energy_alignment.
- "make time for the P1s" -> priority_based.
- "too many meetings" -> meeting_reduction.
- Anything else -> general.
- goals carries the user's own phrasing of what success looks like.
- Default range is this_week.`

type optimizeWire struct {
	Type         string         `json:"type"`
	Goals        []string       `json:"goals"`
	RangeKeyword string         `json:"range_keyword"`
	Preferences  map[string]any `json:"preferences"`
}

// ParseOptimization extracts an optimization intent from the query.
func (i *Interpreter) ParseOptimization(ctx context.Context, query string, uctx *usercontext.Context) (*intent.Optimization, error) {
	user := contextPreamble(uctx) + "\nRequest: " + query

	var wire optimizeWire
	if err := i.callTool(ctx, model.CapabilityExtraction, optimizeSystemPrompt, user, optimizeTool, &wire); err != nil {
		return nil, err
	}

	r := rangeForKeyword(wire.RangeKeyword, uctx)
	if r == nil {
		r = rangeForKeyword(RangeThisWeek, uctx)
	}

	out := &intent.Optimization{
		Type:        intent.OptimizationType(wire.Type),
		Goals:       wire.Goals,
		Range:       *r,
		Preferences: wire.Preferences,
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("optimization extraction produced invalid output: %w", err)
	}
	return out, nil
}

// ScheduleStats summarizes the schedule under optimization for the
// suggestion prompt.
type ScheduleStats struct {
	CommittedHours      float64 `json:"committed_hours"`
	FocusHoursAvailable float64 `json:"focus_hours_available"`
	MeetingCount        int     `json:"meeting_count"`
	MeetingHours        float64 `json:"meeting_hours"`
	SoloWorkHours       float64 `json:"solo_work_hours"`
}

// Suggestion is one concrete optimization step referencing actual items.
type Suggestion struct {
	Type          string `json:"type"`
	Action        string `json:"action"` // move_event | update_task_due | create_focus_block
	Command       string `json:"command"`
	Impact        string `json:"impact"`
	Reasoning     string `json:"reasoning"`
	AffectsOthers bool   `json:"affects_others"`

	TargetID    string     `json:"target_id,omitempty"`
	TargetTitle string     `json:"target_title,omitempty"`
	NewStart    *time.Time `json:"new_start,omitempty"`
	NewEnd      *time.Time `json:"new_end,omitempty"`
}

const suggestToolName = "propose_schedule_changes"

var suggestTool = llm.ToolDefinition{
	Name:        suggestToolName,
	Description: "Propose concrete schedule changes referencing actual items.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"suggestions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type": map[string]any{"type": "string"},
						"action": map[string]any{
							"type": "string",
							"enum": []string{"move_event", "update_task_due", "create_focus_block"},
						},
						"command":        map[string]any{"type": "string"},
						"impact":         map[string]any{"type": "string"},
						"reasoning":      map[string]any{"type": "string"},
						"affects_others": map[string]any{"type": "boolean"},
						"target_id":      map[string]any{"type": "string"},
						"target_title":   map[string]any{"type": "string"},
						"new_start": map[string]any{
							"type":        "string",
							"description": "'YYYY-MM-DD HH:MM' in the user's timezone.",
						},
						"new_end": map[string]any{"type": "string"},
					},
					"required":             []string{"type", "action", "command", "impact", "reasoning", "affects_others"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"suggestions"},
		"additionalProperties": false,
	}),
}

const suggestSystemPrompt = `You propose schedule optimizations as concrete, applicable changes.

Rules:
- Reference ONLY items from the provided lists, by their exact id and
  title. Never invent items.
- move_event requires target_id, new_start, new_end.
- update_task_due requires target_id and new_start (the new due).
- create_focus_block requires new_start, new_end, and a target_title
  naming the block (e.g. "Deep work: quarterly report").
- affects_others is true whenever a moved event has participants.
- Keep suggestions few and high-leverage. Respect working hours
  (09:00-18:00 weekdays) for anything you place.`

// MaxSuggestions bounds how many changes one optimization proposes.
const MaxSuggestions = 5

type suggestionWire struct {
	Suggestions []struct {
		Type          string `json:"type"`
		Action        string `json:"action"`
		Command       string `json:"command"`
		Impact        string `json:"impact"`
		Reasoning     string `json:"reasoning"`
		AffectsOthers bool   `json:"affects_others"`
		TargetID      string `json:"target_id"`
		TargetTitle   string `json:"target_title"`
		NewStart      string `json:"new_start"`
		NewEnd        string `json:"new_end"`
	} `json:"suggestions"`
}

// Suggest asks for up to MaxSuggestions optimization steps grounded in
// the supplied tasks and events.
func (i *Interpreter) Suggest(ctx context.Context, opt *intent.Optimization, stats ScheduleStats,
	tasks, events []Candidate, uctx *usercontext.Context) ([]Suggestion, error) {

	var sb strings.Builder
	sb.WriteString(contextPreamble(uctx))
	fmt.Fprintf(&sb, "\nOptimization type: %s\n", opt.Type)
	if len(opt.Goals) > 0 {
		fmt.Fprintf(&sb, "Goals: %s\n", strings.Join(opt.Goals, "; "))
	}
	fmt.Fprintf(&sb, "Window: %s to %s\n",
		opt.Range.Start.Format(wireDateTime), opt.Range.End.Format(wireDateTime))
	fmt.Fprintf(&sb, "\nStats: committed %.1fh, focus available %.1fh, %d meetings (%.1fh), solo work %.1fh\n",
		stats.CommittedHours, stats.FocusHoursAvailable, stats.MeetingCount, stats.MeetingHours, stats.SoloWorkHours)

	sb.WriteString("\nTasks:\n")
	writeCandidates(&sb, tasks)
	sb.WriteString("\nEvents:\n")
	writeCandidates(&sb, events)

	var wire suggestionWire
	if err := i.callTool(ctx, model.CapabilityAnalysis, suggestSystemPrompt, sb.String(), suggestTool, &wire); err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, s := range wire.Suggestions {
		if len(out) >= MaxSuggestions {
			break
		}
		sug := Suggestion{
			Type:          s.Type,
			Action:        s.Action,
			Command:       s.Command,
			Impact:        s.Impact,
			Reasoning:     s.Reasoning,
			AffectsOthers: s.AffectsOthers,
			TargetID:      s.TargetID,
			TargetTitle:   s.TargetTitle,
		}
		if s.NewStart != "" {
			t, err := parseInstant(s.NewStart, uctx)
			if err != nil {
				i.logger.Warn("Dropping suggestion with bad start", "start", s.NewStart, "error", err)
				continue
			}
			sug.NewStart = &t
		}
		if s.NewEnd != "" {
			t, err := parseInstant(s.NewEnd, uctx)
			if err != nil {
				i.logger.Warn("Dropping suggestion with bad end", "end", s.NewEnd, "error", err)
				continue
			}
			sug.NewEnd = &t
		}
		out = append(out, sug)
	}
	return out, nil
}

func writeCandidates(sb *strings.Builder, items []Candidate) {
	if len(items) == 0 {
		sb.WriteString("- (none)\n")
		return
	}
	for _, c := range items {
		sb.WriteString("- id=" + c.ID + " title=" + quoteTitle(c.Title))
		if c.When != nil {
			sb.WriteString(" when=" + c.When.Format("2006-01-02 15:04 Mon"))
		}
		sb.WriteString("\n")
	}
}

package interpret

import (
	"context"
	"fmt"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/usercontext"
)

const taskToolName = "extract_task_intent"

var taskTool = llm.ToolDefinition{
	Name:        taskToolName,
	Description: "Extract the structured task operation from the request.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"create", "update", "complete", "delete", "add_time"},
			},
			"task": map[string]any{
				"type":        "object",
				"description": "The task to create. Only for operation=create.",
				"properties": map[string]any{
					"title": map[string]any{"type": "string"},
					"notes": map[string]any{"type": "string"},
					"priority": map[string]any{
						"type": "string",
						"enum": []string{"P1", "P2", "P3", "P4"},
					},
					"due": map[string]any{
						"type":        "string",
						"description": "Due instant as 'YYYY-MM-DD HH:MM' in the user's timezone, or 'YYYY-MM-DD' for end-of-day deadlines.",
					},
					"duration_hours": map[string]any{"type": "number"},
					"min_work_hours": map[string]any{"type": "number"},
					"max_work_hours": map[string]any{"type": "number"},
				},
				"required":             []string{"title"},
				"additionalProperties": false,
			},
			"task_reference": map[string]any{
				"type":        "string",
				"description": "The user's words identifying an existing task ('the budget task'). For update/complete/delete/add_time.",
			},
			"updates": map[string]any{
				"type":                 "object",
				"description":          "Field changes for operation=update. Keys: title, notes, priority, due, duration_hours.",
				"additionalProperties": true,
			},
			"time_to_add_hours": map[string]any{
				"type":        "number",
				"description": "Hours to add for operation=add_time.",
			},
		},
		"required":             []string{"operation"},
		"additionalProperties": false,
	}),
}

const taskSystemPrompt = `You extract task operations from productivity requests.

Rules:
- "create" when the user wants a new task. Title should be concise and
  imperative-free: "Create a task to review Q4 budget" -> title
  "Review Q4 budget".
- Deadlines like "by Friday" resolve to the NEXT occurrence of that
  weekday from the current date, at 17:00 local time.
- Priorities: "urgent"/"critical" -> P1, "high" -> P2, default -> P3,
  "low"/"whenever" -> P4. Leave unset when the user says nothing.
- Durations: "should take 2 hours" -> duration_hours 2. Never invent
  durations.
- "complete"/"done"/"finish" -> operation complete with task_reference.
- "delete"/"remove" -> operation delete with task_reference.
- "add 2 more hours to X" -> operation add_time, time_to_add_hours 2.
- For anything but create, task_reference carries the user's own words
  for the task; do not guess IDs.`

// taskWire is the tool output with wire-format times.
type taskWire struct {
	Operation string `json:"operation"`
	Task      *struct {
		Title         string  `json:"title"`
		Notes         string  `json:"notes"`
		Priority      string  `json:"priority"`
		Due           string  `json:"due"`
		DurationHours float64 `json:"duration_hours"`
		MinWorkHours  float64 `json:"min_work_hours"`
		MaxWorkHours  float64 `json:"max_work_hours"`
	} `json:"task"`
	TaskReference  string         `json:"task_reference"`
	Updates        map[string]any `json:"updates"`
	TimeToAddHours float64        `json:"time_to_add_hours"`
}

// ParseTask extracts a task intent from the query.
func (i *Interpreter) ParseTask(ctx context.Context, query string, uctx *usercontext.Context) (*intent.Task, error) {
	user := contextPreamble(uctx) + "\nRequest: " + query

	var wire taskWire
	if err := i.callTool(ctx, model.CapabilityExtraction, taskSystemPrompt, user, taskTool, &wire); err != nil {
		return nil, err
	}

	out := &intent.Task{
		Operation:      intent.TaskOperation(wire.Operation),
		TaskReference:  wire.TaskReference,
		Updates:        wire.Updates,
		TimeToAddHours: wire.TimeToAddHours,
	}

	if wire.Task != nil {
		draft := &intent.TaskDraft{
			Title:         wire.Task.Title,
			Notes:         wire.Task.Notes,
			Priority:      intent.Priority(wire.Task.Priority),
			DurationHours: wire.Task.DurationHours,
			MinWorkHours:  wire.Task.MinWorkHours,
			MaxWorkHours:  wire.Task.MaxWorkHours,
		}
		if wire.Task.Due != "" {
			due, err := parseInstant(wire.Task.Due, uctx)
			if err != nil {
				return nil, fmt.Errorf("task due: %w", err)
			}
			draft.Due = &due
		}
		out.Draft = draft
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("task extraction produced invalid output: %w", err)
	}
	return out, nil
}

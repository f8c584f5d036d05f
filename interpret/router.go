package interpret

import (
	"context"
	"fmt"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/usercontext"
)

const routeToolName = "route_request"

// routeTool is the strict two-field routing schema. No confidence, no
// reasoning. The model commits to a provider or the call fails.
var routeTool = llm.ToolDefinition{
	Name:        routeToolName,
	Description: "Commit to the provider that should handle this request.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"provider": map[string]any{
				"type": "string",
				"enum": []string{"task", "calendar"},
			},
			"intent_type": map[string]any{
				"type": "string",
				"enum": []string{"task", "event"},
			},
		},
		"required":             []string{"provider", "intent_type"},
		"additionalProperties": false,
	}),
}

const routeSystemPrompt = `You route productivity requests to one of two providers: the task
provider (to-do items with durations, priorities, due dates) or the
calendar provider (meetings and events with participants and times).

Apply these rules IN ORDER and stop at the first that matches:

1. If the request contains the literal word "task", route to provider
   "task" with intent_type "task".
2. If the request mentions a meeting, appointment, event, or calendar,
   OR contains a specific clock time ("at 3pm", "at 10", "15:00",
   "tomorrow morning" where morning means 09:00), route to provider
   "calendar" with intent_type "event".
3. Otherwise route to provider "task" with intent_type "task".

Examples:
- "Create a task to review the budget" -> task (rule 1)
- "Schedule a sync with Dana at 3pm" -> calendar (rule 2)
- "Remind me to file expenses by Friday" -> task (rule 3)
- "Add a task for the standup meeting" -> task (rule 1 beats rule 2)`

// Route decides which provider handles the query. On interpreter
// failure the error propagates; the pipeline never silently guesses a
// provider.
func (i *Interpreter) Route(ctx context.Context, query string, uctx *usercontext.Context) (*intent.Route, error) {
	user := contextPreamble(uctx) + "\nRequest: " + query

	var route intent.Route
	if err := i.callTool(ctx, model.CapabilityRouting, routeSystemPrompt, user, routeTool, &route); err != nil {
		return nil, err
	}
	if err := route.Validate(); err != nil {
		return nil, fmt.Errorf("routing produced invalid output: %w", err)
	}
	return &route, nil
}

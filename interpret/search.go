package interpret

import (
	"context"
	"fmt"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/usercontext"
)

const searchToolName = "extract_search_intent"

var searchTool = llm.ToolDefinition{
	Name:        searchToolName,
	Description: "Extract the structured search or analysis question from the request.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intent": map[string]any{
				"type": "string",
				"enum": []string{"view_schedule", "find_specific", "workload_analysis", "find_overdue"},
			},
			"range_keyword": map[string]any{
				"type": "string",
				"enum": []string{"today", "tomorrow", "this_week", "next_week", "overdue", "none"},
			},
			"search_text": map[string]any{
				"type":        "string",
				"description": "Keywords to match against item titles and notes. Empty for pure time queries.",
			},
			"priority": map[string]any{
				"type": "string",
				"enum": []string{"P1", "P2", "P3", "P4"},
			},
			"status": map[string]any{"type": "string"},
			"participants": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"search_both": map[string]any{
				"type":        "boolean",
				"description": "True when the question spans both tasks and events.",
			},
			"scope": map[string]any{
				"type": "string",
				"enum": []string{"tasks", "events", "both"},
			},
			"include_completed": map[string]any{"type": "boolean"},
		},
		"required":             []string{"intent", "scope"},
		"additionalProperties": false,
	}),
}

const searchSystemPrompt = `You extract search and analysis questions from productivity requests.

Rules:
- "What's on my schedule today?" -> view_schedule, range today,
  scope both, no search_text.
- "Find the budget review meeting" -> find_specific, scope events,
  search_text "budget review".
- "How busy am I this week?" / "analyze my workload" ->
  workload_analysis, range this_week, scope both.
- "What's overdue?" -> find_overdue, range overdue, scope tasks.
- search_text carries only content keywords, never time words.
- include_completed only when the user explicitly asks for finished
  items.`

type searchWire struct {
	Intent           string   `json:"intent"`
	RangeKeyword     string   `json:"range_keyword"`
	SearchText       string   `json:"search_text"`
	Priority         string   `json:"priority"`
	Status           string   `json:"status"`
	Participants     []string `json:"participants"`
	SearchBoth       bool     `json:"search_both"`
	Scope            string   `json:"scope"`
	IncludeCompleted bool     `json:"include_completed"`
}

// ParseSearch extracts a search intent from the query. The returned
// Scope is one of "tasks", "events", "both".
func (i *Interpreter) ParseSearch(ctx context.Context, query string, uctx *usercontext.Context) (*intent.Search, string, error) {
	user := contextPreamble(uctx) + "\nRequest: " + query

	var wire searchWire
	if err := i.callTool(ctx, model.CapabilityExtraction, searchSystemPrompt, user, searchTool, &wire); err != nil {
		return nil, "", err
	}

	scope := wire.Scope
	switch scope {
	case "tasks", "events", "both":
	default:
		scope = "both"
	}

	out := &intent.Search{
		Kind:             intent.SearchKind(wire.Intent),
		Range:            rangeForKeyword(wire.RangeKeyword, uctx),
		SearchText:       wire.SearchText,
		Priority:         intent.Priority(wire.Priority),
		Status:           wire.Status,
		Participants:     wire.Participants,
		SearchBoth:       wire.SearchBoth || scope == "both",
		IncludeCompleted: wire.IncludeCompleted,
	}

	if err := out.Validate(); err != nil {
		return nil, "", fmt.Errorf("search extraction produced invalid output: %w", err)
	}
	return out, scope, nil
}

package interpret

import (
	"context"
	"fmt"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/usercontext"
)

const availabilityToolName = "extract_availability_intent"

var availabilityTool = llm.ToolDefinition{
	Name:        availabilityToolName,
	Description: "Extract the structured availability question from the request.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type": "string",
				"enum": []string{"specific_time", "find_slots"},
			},
			"at": map[string]any{
				"type":        "string",
				"description": "The instant to check as 'YYYY-MM-DD HH:MM'. Only for kind=specific_time.",
			},
			"duration_minutes": map[string]any{
				"type":        "integer",
				"description": "Required length in minutes. Default 60.",
			},
			"range_keyword": map[string]any{
				"type": "string",
				"enum": []string{"today", "tomorrow", "this_week", "next_week", "none"},
			},
			"preferences": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prefer_morning":   map[string]any{"type": "boolean"},
					"prefer_afternoon": map[string]any{"type": "boolean"},
					"prefer_evening":   map[string]any{"type": "boolean"},
					"earliest_hour":    map[string]any{"type": "integer"},
					"latest_hour":      map[string]any{"type": "integer"},
					"deep_work":        map[string]any{"type": "boolean"},
					"include_weekends": map[string]any{"type": "boolean"},
				},
				"additionalProperties": false,
			},
		},
		"required":             []string{"kind", "duration_minutes"},
		"additionalProperties": false,
	}),
}

const availabilitySystemPrompt = `You extract availability questions from productivity requests.

Rules:
- "Am I free at 3pm tomorrow?" -> kind specific_time with the instant.
- "Find 2 hours for deep work this week" -> kind find_slots,
  duration_minutes 120, range_keyword this_week, deep_work true.
- "mornings preferred" -> prefer_morning true. "afternoon" ->
  prefer_afternoon. "after 10am" -> earliest_hour 10. "before 4pm" ->
  latest_hour 16.
- "deep work"/"focus" -> deep_work true.
- Default duration is 60 minutes when the user names none.`

type availabilityWire struct {
	Kind            string `json:"kind"`
	At              string `json:"at"`
	DurationMinutes int    `json:"duration_minutes"`
	RangeKeyword    string `json:"range_keyword"`
	Preferences     struct {
		PreferMorning   bool `json:"prefer_morning"`
		PreferAfternoon bool `json:"prefer_afternoon"`
		PreferEvening   bool `json:"prefer_evening"`
		EarliestHour    int  `json:"earliest_hour"`
		LatestHour      int  `json:"latest_hour"`
		DeepWork        bool `json:"deep_work"`
		IncludeWeekends bool `json:"include_weekends"`
	} `json:"preferences"`
}

// ParseAvailability extracts an availability intent from the query.
func (i *Interpreter) ParseAvailability(ctx context.Context, query string, uctx *usercontext.Context) (*intent.Availability, error) {
	user := contextPreamble(uctx) + "\nRequest: " + query

	var wire availabilityWire
	if err := i.callTool(ctx, model.CapabilityExtraction, availabilitySystemPrompt, user, availabilityTool, &wire); err != nil {
		return nil, err
	}

	out := &intent.Availability{
		Kind:            intent.AvailabilityKind(wire.Kind),
		DurationMinutes: wire.DurationMinutes,
		Range:           rangeForKeyword(wire.RangeKeyword, uctx),
		Preferences: intent.SlotPreferences{
			PreferMorning:   wire.Preferences.PreferMorning,
			PreferAfternoon: wire.Preferences.PreferAfternoon,
			PreferEvening:   wire.Preferences.PreferEvening,
			EarliestHour:    wire.Preferences.EarliestHour,
			LatestHour:      wire.Preferences.LatestHour,
			DeepWork:        wire.Preferences.DeepWork,
			IncludeWeekends: wire.Preferences.IncludeWeekends,
		},
	}
	if out.DurationMinutes == 0 {
		out.DurationMinutes = 60
	}

	if wire.At != "" {
		at, err := parseInstant(wire.At, uctx)
		if err != nil {
			return nil, fmt.Errorf("availability instant: %w", err)
		}
		out.At = &at
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("availability extraction produced invalid output: %w", err)
	}
	return out, nil
}

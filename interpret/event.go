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

const eventToolName = "extract_event_intent"

var eventTool = llm.ToolDefinition{
	Name:        eventToolName,
	Description: "Extract the structured calendar operation from the request.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"create", "update", "cancel"},
			},
			"title": map[string]any{"type": "string"},
			"start": map[string]any{
				"type":        "string",
				"description": "Start as 'YYYY-MM-DD HH:MM' in the user's timezone.",
			},
			"end": map[string]any{
				"type":        "string",
				"description": "End as 'YYYY-MM-DD HH:MM'. Default one hour after start.",
			},
			"participants": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Names or emails of attendees other than the user.",
			},
			"location":    map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"event_reference": map[string]any{
				"type":        "string",
				"description": "The user's words identifying an existing event. For update/cancel.",
			},
			"updates": map[string]any{
				"type":        "object",
				"description": "Field changes for operation=update.",
				"properties": map[string]any{
					"title":       map[string]any{"type": "string"},
					"start":       map[string]any{"type": "string"},
					"end":         map[string]any{"type": "string"},
					"location":    map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"time_only": map[string]any{
						"type":        "boolean",
						"description": "True when start/end carry only a clock time ('move it to 4pm') and the event's own date should be kept.",
					},
				},
				"additionalProperties": false,
			},
		},
		"required":             []string{"operation"},
		"additionalProperties": false,
	}),
}

const eventSystemPrompt = `You extract calendar operations from productivity requests.

Rules:
- "tomorrow morning" means 09:00; "noon" means 12:00; "end of day"
  means 17:00. A bare "at 3" during scheduling means 15:00.
- Default event length is one hour when the user gives no end or
  duration.
- Team ceremonies imply participants: "standup", "team sync",
  "retro", "all-hands" -> include participant "Team".
- "with Dana and Alex" -> participants ["Dana", "Alex"]. Keep emails
  verbatim when given.
- Solo blocks ("block 3pm for focus work", "hold time for writing")
  have NO participants.
- "move"/"push"/"reschedule" -> operation update with event_reference
  and updates. When the user gives only a clock time ("move it to
  4pm"), set updates.time_only true and put the time in updates.start
  as 'YYYY-MM-DD HH:MM' using the current date as placeholder.
- "cancel"/"delete the meeting" -> operation cancel with
  event_reference.`

type eventWire struct {
	Operation      string   `json:"operation"`
	Title          string   `json:"title"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	Participants   []string `json:"participants"`
	Location       string   `json:"location"`
	Description    string   `json:"description"`
	EventReference string   `json:"event_reference"`
	Updates        *struct {
		Title       string `json:"title"`
		Start       string `json:"start"`
		End         string `json:"end"`
		Location    string `json:"location"`
		Description string `json:"description"`
		TimeOnly    bool   `json:"time_only"`
	} `json:"updates"`
}

// ParseEvent extracts a calendar intent from the query.
func (i *Interpreter) ParseEvent(ctx context.Context, query string, uctx *usercontext.Context) (*intent.Event, error) {
	user := contextPreamble(uctx) + "\nRequest: " + query

	var wire eventWire
	if err := i.callTool(ctx, model.CapabilityExtraction, eventSystemPrompt, user, eventTool, &wire); err != nil {
		return nil, err
	}

	out := &intent.Event{
		Operation:      intent.EventOperation(wire.Operation),
		EventReference: wire.EventReference,
	}

	if wire.Operation == "create" {
		draft, err := i.buildDraft(wire, uctx)
		if err != nil {
			return nil, err
		}
		out.Draft = draft
	}

	if wire.Updates != nil {
		updates, err := buildUpdates(wire, uctx)
		if err != nil {
			return nil, err
		}
		out.Updates = updates
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("event extraction produced invalid output: %w", err)
	}
	return out, nil
}

func (i *Interpreter) buildDraft(wire eventWire, uctx *usercontext.Context) (*intent.EventDraft, error) {
	if wire.Start == "" {
		return nil, fmt.Errorf("event create missing a start time")
	}
	start, err := parseInstant(wire.Start, uctx)
	if err != nil {
		return nil, fmt.Errorf("event start: %w", err)
	}

	var end time.Time
	if wire.End != "" {
		end, err = parseInstant(wire.End, uctx)
		if err != nil {
			return nil, fmt.Errorf("event end: %w", err)
		}
	} else {
		end = start.Add(time.Hour)
	}

	return &intent.EventDraft{
		Title:        wire.Title,
		Start:        start,
		End:          end,
		Participants: toParticipants(wire.Participants),
		Location:     wire.Location,
		Description:  wire.Description,
	}, nil
}

func buildUpdates(wire eventWire, uctx *usercontext.Context) (*intent.EventUpdates, error) {
	u := wire.Updates
	out := &intent.EventUpdates{TimeOnly: u.TimeOnly}

	if u.Title != "" {
		out.Title = &u.Title
	}
	if u.Location != "" {
		out.Location = &u.Location
	}
	if u.Description != "" {
		out.Description = &u.Description
	}
	if u.Start != "" {
		start, err := parseInstant(u.Start, uctx)
		if err != nil {
			return nil, fmt.Errorf("update start: %w", err)
		}
		out.Start = &start
	}
	if u.End != "" {
		end, err := parseInstant(u.End, uctx)
		if err != nil {
			return nil, fmt.Errorf("update end: %w", err)
		}
		out.End = &end
	}
	return out, nil
}

// toParticipants converts interpreter name strings into participants.
// Synthetic email derivation for bare names happens in the calendar
// adapter, not here.
func toParticipants(names []string) []intent.Participant {
	var out []intent.Participant
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p := intent.Participant{Status: intent.ParticipantNoReply}
		if strings.Contains(name, "@") {
			p.Email = name
		} else {
			p.Name = name
		}
		out = append(out, p)
	}
	return out
}

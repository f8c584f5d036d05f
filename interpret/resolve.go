package interpret

import (
	"context"
	"strings"
	"time"

	"github.com/chronoplan/chronoplan/intent"
	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/schedule"
	"github.com/chronoplan/chronoplan/usercontext"
)

// Candidate is one provider-listed item offered to the resolver. The
// caller pre-filters to active items and caps the list at 100 most
// recent before calling in.
type Candidate struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	When   *time.Time `json:"when,omitempty"` // event start or task due
	Status string     `json:"status,omitempty"`
}

// MaxResolutionCandidates caps the candidate list sent to the model.
const MaxResolutionCandidates = 100

// resolutionConfidenceGate is the minimum confidence for found=true.
const resolutionConfidenceGate = 0.8

// maxAmbiguousMatches bounds how many tied candidates are surfaced.
const maxAmbiguousMatches = 3

const resolveToolName = "resolve_entity_reference"

var resolveTool = llm.ToolDefinition{
	Name:        resolveToolName,
	Description: "Identify which candidate the user's reference means.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"found": map[string]any{"type": "boolean"},
			"id": map[string]any{
				"type":        "string",
				"description": "The matched candidate's id. Only when found.",
			},
			"confidence": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "One short sentence.",
			},
			"ambiguous_matches": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Candidate ids that tie, when not found.",
			},
		},
		"required":             []string{"found", "confidence"},
		"additionalProperties": false,
	}),
}

const resolveSystemPrompt = `You resolve a user's reference to one item from a candidate list.

Rules:
- Match by meaning, not substring: "the budget task" matches
  "Review Q4 budget".
- Date words filter: "the meeting tomorrow" only matches candidates on
  tomorrow's date.
- Report found=true ONLY when one candidate clearly matches with
  confidence above 0.8.
- When several candidates fit equally, report found=false and list up
  to three ids in ambiguous_matches.
- Never invent ids. Only ids from the candidate list are valid.`

// ResolveReference resolves a free-text reference against candidates.
// On interpreter failure it falls back to normalized substring matching:
// exactly one hit resolves with confidence 0.9, several hits are
// ambiguous, zero hits is not found.
func (i *Interpreter) ResolveReference(ctx context.Context, reference, operation string,
	candidates []Candidate, uctx *usercontext.Context) (*intent.Resolution, error) {

	if len(candidates) > MaxResolutionCandidates {
		candidates = candidates[:MaxResolutionCandidates]
	}
	if len(candidates) == 0 {
		return &intent.Resolution{Found: false, Reasoning: "no active items to match"}, nil
	}

	var sb strings.Builder
	sb.WriteString(contextPreamble(uctx))
	sb.WriteString("\nOperation: " + operation)
	sb.WriteString("\nReference: " + reference)
	sb.WriteString("\n\nCandidates:\n")
	for _, c := range candidates {
		sb.WriteString("- id=" + c.ID + " title=" + quoteTitle(c.Title))
		if c.When != nil {
			sb.WriteString(" when=" + c.When.Format("2006-01-02 15:04 Mon"))
		}
		if c.Status != "" {
			sb.WriteString(" status=" + c.Status)
		}
		sb.WriteString("\n")
	}

	var res intent.Resolution
	if err := i.callTool(ctx, model.CapabilityMatching, resolveSystemPrompt, sb.String(), resolveTool, &res); err != nil {
		i.logger.Warn("Resolution interpreter failed, using substring fallback",
			"reference", reference, "error", err)
		return substringResolve(reference, candidates), nil
	}

	// Clamp the model's claims to the policy.
	if res.Found && (res.Confidence <= resolutionConfidenceGate || !validCandidateID(res.ID, candidates)) {
		res.Found = false
		res.ID = ""
	}
	if len(res.AmbiguousMatches) > maxAmbiguousMatches {
		res.AmbiguousMatches = res.AmbiguousMatches[:maxAmbiguousMatches]
	}
	return &res, nil
}

func validCandidateID(id string, candidates []Candidate) bool {
	for _, c := range candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

// substringResolve is the deterministic fallback: normalized substring
// containment in either direction.
func substringResolve(reference string, candidates []Candidate) *intent.Resolution {
	ref := schedule.NormalizeTitle(reference)
	var hits []Candidate
	for _, c := range candidates {
		title := schedule.NormalizeTitle(c.Title)
		if ref != "" && (strings.Contains(title, ref) || strings.Contains(ref, title)) {
			hits = append(hits, c)
		}
	}

	switch len(hits) {
	case 0:
		return &intent.Resolution{Found: false, Reasoning: "no title contains the reference"}
	case 1:
		return &intent.Resolution{
			Found:      true,
			ID:         hits[0].ID,
			Confidence: 0.9,
			Reasoning:  "single substring match",
		}
	default:
		res := &intent.Resolution{Found: false, Reasoning: "multiple substring matches"}
		for i := 0; i < len(hits) && i < maxAmbiguousMatches; i++ {
			res.AmbiguousMatches = append(res.AmbiguousMatches, hits[i].ID)
		}
		return res
	}
}

// quoteTitle quotes a title for the prompt, collapsing newlines.
func quoteTitle(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return "\"" + s + "\""
}

// TitleOf returns the title of the candidate with the given id.
func TitleOf(id string, candidates []Candidate) string {
	for _, c := range candidates {
		if c.ID == id {
			return c.Title
		}
	}
	return ""
}

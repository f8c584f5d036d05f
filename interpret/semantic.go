package interpret

import (
	"context"
	"strings"

	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/usercontext"
)

const semanticToolName = "select_matching_items"

var semanticTool = llm.ToolDefinition{
	Name:        semanticToolName,
	Description: "Select the candidate ids that match the search meaning.",
	Parameters: schema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"matching_ids": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []string{"matching_ids"},
		"additionalProperties": false,
	}),
}

const semanticSystemPrompt = `You filter a candidate list by whether each item matches the meaning
of a search phrase.

Rules:
- Match by meaning: "budget stuff" matches "Review Q4 budget" and
  "Finance sync".
- Be inclusive for synonyms and abbreviations ("1:1" matches
  "one-on-one"), exclusive for unrelated items.
- Only ids from the candidate list are valid. Return an empty list
  when nothing matches.`

// SemanticMatch returns the candidate ids whose items match the search
// text by meaning. On interpreter failure it degrades to normalized
// substring matching so a search never hard-fails on a model outage.
func (i *Interpreter) SemanticMatch(ctx context.Context, searchText string,
	candidates []Candidate, uctx *usercontext.Context) ([]string, error) {

	if strings.TrimSpace(searchText) == "" || len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(contextPreamble(uctx))
	sb.WriteString("\nSearch phrase: " + searchText)
	sb.WriteString("\n\nCandidates:\n")
	for _, c := range candidates {
		sb.WriteString("- id=" + c.ID + " title=" + quoteTitle(c.Title) + "\n")
	}

	var wire struct {
		MatchingIDs []string `json:"matching_ids"`
	}
	if err := i.callTool(ctx, model.CapabilityMatching, semanticSystemPrompt, sb.String(), semanticTool, &wire); err != nil {
		i.logger.Warn("Semantic match interpreter failed, using substring fallback",
			"search_text", searchText, "error", err)
		return substringMatch(searchText, candidates), nil
	}

	// Drop ids the model invented.
	var out []string
	for _, id := range wire.MatchingIDs {
		if validCandidateID(id, candidates) {
			out = append(out, id)
		}
	}
	return out, nil
}

func substringMatch(searchText string, candidates []Candidate) []string {
	needle := strings.ToLower(strings.TrimSpace(searchText))
	var out []string
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Title), needle) {
			out = append(out, c.ID)
		}
	}
	return out
}

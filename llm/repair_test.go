package llm_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/chronoplan/llm"
)

func TestRepairJSON_ValidPassesThrough(t *testing.T) {
	in := json.RawMessage(`{"title":"Write report","priority":"P2"}`)
	out := llm.RepairJSON(in)
	assert.Equal(t, in, out)
}

func TestRepairJSON_FencedBlock(t *testing.T) {
	in := json.RawMessage("Here you go:\n```json\n{\"title\": \"Write report\"}\n```\nDone.")
	out := llm.RepairJSON(in)
	require.True(t, json.Valid(out))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "Write report", got["title"])
}

func TestRepairJSON_TrailingCommas(t *testing.T) {
	in := json.RawMessage("{\"items\": [1, 2, 3,], \"title\": \"x\",}")
	out := llm.RepairJSON(in)
	require.True(t, json.Valid(out))

	var got struct {
		Items []int  `json:"items"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, []int{1, 2, 3}, got.Items)
}

func TestRepairJSON_LineComments(t *testing.T) {
	in := json.RawMessage("{\n\"title\": \"x\", // the title\n\"count\": 2\n}")
	out := llm.RepairJSON(in)
	require.True(t, json.Valid(out))
}

func TestRepairJSON_PreservesURLsInStrings(t *testing.T) {
	in := json.RawMessage("{\n\"url\": \"https://example.com/a\", // comment\n\"n\": 1,\n}")
	out := llm.RepairJSON(in)
	require.True(t, json.Valid(out))

	var got struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "https://example.com/a", got.URL)
}

func TestRepairJSON_ProseWrappedObject(t *testing.T) {
	in := json.RawMessage(`The arguments are {"operation": "complete"} as requested.`)
	out := llm.RepairJSON(in)
	require.True(t, json.Valid(out))

	var got map[string]string
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "complete", got["operation"])
}

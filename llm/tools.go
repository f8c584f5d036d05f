package llm

import "encoding/json"

// ToolDefinition declares a function tool the model must call. The
// interpreters use exactly one tool per request with a forced tool
// choice, turning free text into a typed record.
type ToolDefinition struct {
	// Name identifies the tool (e.g. "route_request").
	Name string `json:"name"`

	// Description tells the model when and how to use the tool.
	Description string `json:"description"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters json.RawMessage `json:"parameters"`
}

// ToolCall is one tool invocation the model emitted.
type ToolCall struct {
	// ID is the provider-assigned call identifier.
	ID string `json:"id"`

	// Name is the tool that was called.
	Name string `json:"name"`

	// Arguments is the raw JSON argument payload. Use RepairJSON
	// before unmarshalling: models occasionally emit fenced or
	// comma-damaged JSON even under forced tool choice.
	Arguments json.RawMessage `json:"arguments"`
}

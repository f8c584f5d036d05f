// Package interpret turns free-text queries into typed intent records.
// Every interpreter forces the model through a single function tool
// with a strict schema. Confidence fields and free-form reasoning are
// deliberately absent from the schemas so the model must commit. An
// interpreter failure is surfaced to the caller as-is; there is no
// heuristic fallback except the documented substring fallback in
// entity resolution.
package interpret

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chronoplan/chronoplan/llm"
	"github.com/chronoplan/chronoplan/model"
	"github.com/chronoplan/chronoplan/usercontext"
)

// Interpreter runs the NL extraction calls.
type Interpreter struct {
	client *llm.Client
	logger *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = logger }
}

// New creates an Interpreter backed by the given LLM client.
func New(client *llm.Client, opts ...Option) *Interpreter {
	i := &Interpreter{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// callTool sends one forced-tool request and unmarshals the repaired
// arguments into out.
func (i *Interpreter) callTool(ctx context.Context, capability model.Capability,
	system, user string, tool llm.ToolDefinition, out any) error {

	zero := 0.0
	resp, err := i.client.Complete(ctx, llm.Request{
		Capability:  capability,
		Temperature: &zero,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Tools:      []llm.ToolDefinition{tool},
		ToolChoice: tool.Name,
	})
	if err != nil {
		return fmt.Errorf("interpreter call: %w", err)
	}

	call, err := resp.FirstToolCall(tool.Name)
	if err != nil {
		i.logger.Warn("Model skipped the required tool",
			"tool", tool.Name,
			"finish_reason", resp.FinishReason)
		return err
	}

	repaired := llm.RepairJSON(call.Arguments)
	if err := json.Unmarshal(repaired, out); err != nil {
		return fmt.Errorf("parse %s arguments: %w", tool.Name, err)
	}
	return nil
}

// contextPreamble renders the caller's clock for the prompts. Every
// interpreter includes it so relative dates resolve consistently.
func contextPreamble(uctx *usercontext.Context) string {
	return fmt.Sprintf(
		"Current date: %s (%s)\nCurrent time: %s\nTimezone: %s\n",
		uctx.CurrentDate,
		uctx.Now.Weekday(),
		uctx.CurrentTime,
		uctx.Timezone,
	)
}

// schema builds a JSON Schema object literal. Panics on marshal failure,
// which can only happen from a programming error in a schema table.
func schema(v map[string]any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("invalid tool schema: %v", err))
	}
	return data
}

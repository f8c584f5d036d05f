package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chronoplan/chronoplan/approval"
	"github.com/chronoplan/chronoplan/interpret"
	"github.com/chronoplan/chronoplan/provider/nylas"
	"github.com/chronoplan/chronoplan/provider/reclaim"
	"github.com/chronoplan/chronoplan/usercontext"
)

// Tool names exposed over RPC.
const (
	ToolManageProductivity = "manage_productivity"
	ToolFindAndAnalyze     = "find_and_analyze"
	ToolCheckAvailability  = "check_availability"
	ToolOptimizeSchedule   = "optimize_schedule"
)

// ErrUnknownTool is returned for tool names outside the registry.
var ErrUnknownTool = errors.New("unknown tool")

// ToolInfo describes one capability for tool.list.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Tools is the capability registry in presentation order.
var Tools = []ToolInfo{
	{ToolManageProductivity, "Create, update, complete, or delete tasks and calendar events from natural language."},
	{ToolFindAndAnalyze, "Search tasks and events, view schedules, and analyze workload."},
	{ToolCheckAvailability, "Check free/busy at a specific time or find open slots."},
	{ToolOptimizeSchedule, "Analyze the schedule and propose concrete improvements."},
}

// Arguments is the wire shape of a tool invocation.
type Arguments struct {
	Query string `json:"query"`
}

// Dispatcher routes tool calls to capability handlers. It holds no
// per-user state; provider clients are built per request from the
// caller's credentials.
type Dispatcher struct {
	interp          *interpret.Interpreter
	logger          *slog.Logger
	providerTimeout time.Duration
	reclaimOpts     []reclaim.Option
	nylasOpts       []nylas.Option
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithProviderTimeout sets the per-call deadline for provider requests.
func WithProviderTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.providerTimeout = t }
}

// WithReclaimOptions forwards options to every task client, for tests.
func WithReclaimOptions(opts ...reclaim.Option) Option {
	return func(d *Dispatcher) { d.reclaimOpts = opts }
}

// WithNylasOptions forwards options to every calendar client, for tests.
func WithNylasOptions(opts ...nylas.Option) Option {
	return func(d *Dispatcher) { d.nylasOpts = opts }
}

// New creates a Dispatcher.
func New(interp *interpret.Interpreter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		interp:          interp,
		logger:          slog.Default(),
		providerTimeout: reclaim.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// request bundles everything one pipeline invocation needs.
type request struct {
	query    string
	raw      json.RawMessage
	uctx     *usercontext.Context
	approved *approval.Record
}

func (d *Dispatcher) taskClient(uctx *usercontext.Context) *reclaim.Client {
	opts := append([]reclaim.Option{
		reclaim.WithLogger(d.logger),
		reclaim.WithTimeout(d.providerTimeout),
	}, d.reclaimOpts...)
	return reclaim.New(uctx.Credential(usercontext.CredentialReclaimAPIKey), opts...)
}

func (d *Dispatcher) calendarClient(uctx *usercontext.Context) *nylas.Client {
	opts := append([]nylas.Option{
		nylas.WithLogger(d.logger),
		nylas.WithTimeout(d.providerTimeout),
	}, d.nylasOpts...)
	return nylas.New(
		uctx.Credential(usercontext.CredentialNylasAPIKey),
		uctx.Credential(usercontext.CredentialNylasGrantID),
		opts...)
}

// Execute runs a fresh tool invocation.
func (d *Dispatcher) Execute(ctx context.Context, tool string, rawArgs json.RawMessage, uctx *usercontext.Context) (*Response, error) {
	var args Arguments
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if args.Query == "" {
		return nil, fmt.Errorf("invalid arguments: query is required")
	}
	return d.dispatch(ctx, tool, &request{query: args.Query, raw: rawArgs, uctx: uctx})
}

// Approve resumes a previously gated action. The echoed action_data is
// the only state; a decode failure or kind mismatch fails the request.
func (d *Dispatcher) Approve(ctx context.Context, tool string, rawArgs, actionData json.RawMessage,
	approved bool, uctx *usercontext.Context) (*Response, error) {

	if !approved {
		return Succeed("", "cancelled", nil, "Action cancelled; nothing was changed."), nil
	}

	rec, err := approval.Decode(actionData)
	if err != nil {
		return Fail("", CodeInvalidAction, err), nil
	}

	var args Arguments
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("invalid original_arguments: %w", err)
		}
	}

	d.logger.Info("Resuming approved action", "tool", tool, "kind", rec.Kind, "record_id", rec.ID)
	return d.dispatch(ctx, tool, &request{query: args.Query, raw: rawArgs, uctx: uctx, approved: rec})
}

func (d *Dispatcher) dispatch(ctx context.Context, tool string, req *request) (*Response, error) {
	start := time.Now()
	var (
		resp *Response
		err  error
	)
	switch tool {
	case ToolManageProductivity:
		resp, err = d.manageProductivity(ctx, req)
	case ToolFindAndAnalyze:
		resp, err = d.findAndAnalyze(ctx, req)
	case ToolCheckAvailability:
		resp, err = d.checkAvailability(ctx, req)
	case ToolOptimizeSchedule:
		resp, err = d.optimizeSchedule(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}

	outcome := "error"
	if err == nil && resp != nil {
		switch {
		case resp.NeedsApproval:
			outcome = "needs_approval"
		case resp.NeedsSetup:
			outcome = "needs_setup"
		case resp.Success != nil && *resp.Success:
			outcome = "success"
		}
	}
	d.logger.Info("Tool call finished",
		"tool", tool, "outcome", outcome, "duration", time.Since(start))
	return resp, err
}

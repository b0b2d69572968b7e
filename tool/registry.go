package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/internal/util"
	"github.com/crmforge/agentdesk/logging"
	"github.com/crmforge/agentdesk/model"
)

// Registry holds the tool fleet with per-specialist visibility. It is an
// explicit constructed object; callers wire one per pipeline instance and
// there is no package-level state. Registration happens at startup, after
// which the registry is read-only and safe for concurrent dispatch.
type Registry struct {
	tools  map[string]Tool
	byAgnt map[core.Specialist][]string
	logger logging.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		byAgnt: make(map[core.Specialist][]string),
		logger: logging.OrNoOp(logger),
	}
}

// Register adds t to the toolsets of the given specialists. A duplicate name
// with a different implementation is a wiring bug and returns an error.
func (r *Registry) Register(t Tool, agents ...core.Specialist) error {
	if existing, ok := r.tools[t.Name()]; ok && existing != t {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	for _, a := range agents {
		r.byAgnt[a] = append(r.byAgnt[a], t.Name())
	}
	return nil
}

// Lookup returns the named tool when it is visible to the given specialist.
func (r *Registry) Lookup(agent core.Specialist, name string) (Tool, bool) {
	for _, n := range r.byAgnt[agent] {
		if n == name {
			return r.tools[name], true
		}
	}
	return nil, false
}

// Definitions renders the specialist's toolset as model tool declarations,
// in registration order.
func (r *Registry) Definitions(agent core.Specialist) []model.ToolDefinition {
	names := r.byAgnt[agent]
	defs := make([]model.ToolDefinition, 0, len(names))
	for _, n := range names {
		t := r.tools[n]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch executes one model-issued tool call for the specialist bound to
// tc. It never returns a Go error: every failure mode is folded into a
// core.Error outcome so the model can observe it and adapt. An unknown or
// out-of-scope tool name is a model mistake, not a fault.
func (r *Registry) Dispatch(ctx context.Context, tc *Context, call core.ToolCall) core.ToolOutcome {
	return r.dispatch(ctx, tc, call, nil)
}

// DispatchStream behaves like Dispatch but forwards intermediate progress of
// streaming tools to onProgress before returning the final outcome. Plain
// tools execute unchanged and produce no progress.
func (r *Registry) DispatchStream(ctx context.Context, tc *Context, call core.ToolCall, onProgress func(core.Progress)) core.ToolOutcome {
	return r.dispatch(ctx, tc, call, onProgress)
}

func (r *Registry) dispatch(ctx context.Context, tc *Context, call core.ToolCall, onProgress func(core.Progress)) core.ToolOutcome {
	start := time.Now()
	tc = tc.WithCallID(call.ID)
	logger := tc.Logger()

	t, ok := r.Lookup(tc.Agent, call.Name)
	if !ok {
		logger.Warn("tool.dispatch.unknown", "tool", call.Name, "agent", string(tc.Agent))
		return core.Error{
			Message:    fmt.Sprintf("unknown tool %q", call.Name),
			Code:       "UNKNOWN_TOOL",
			Suggestion: "use only the tools declared for this conversation",
		}
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return core.Error{
				Message:    fmt.Sprintf("tool arguments are not a JSON object: %v", err),
				Code:       "VALIDATION_ERROR",
				Suggestion: "emit arguments as a single JSON object matching the tool schema",
			}
		}
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		logger.Warn("tool.dispatch.validation_failed", "tool", call.Name, "error", err.Error())
		return core.Error{
			Message:    fmt.Sprintf("parameter validation failed: %v", err),
			Code:       "VALIDATION_ERROR",
			Suggestion: "correct the arguments and call the tool again",
		}
	}

	logger.Debug("tool.dispatch.start", "tool", call.Name, "call_id", call.ID, "agent", string(tc.Agent))

	var (
		outcome core.ToolOutcome
		err     error
	)
	if st, streaming := t.(Streaming); streaming && onProgress != nil {
		outcome, err = runStreaming(ctx, st, tc, args, onProgress)
	} else {
		outcome, err = t.Execute(ctx, tc, args)
	}
	if err != nil {
		outcome = OutcomeFromError(err)
	}
	if outcome == nil {
		outcome = core.Error{Message: "tool returned no outcome", Code: "EXECUTION_ERROR"}
	}

	logger.Debug("tool.dispatch.done", "tool", call.Name, "call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds())
	return outcome
}

// runStreaming drains a streaming tool, forwarding every non-final emission
// and converting the terminal stage into the call's outcome.
func runStreaming(ctx context.Context, st Streaming, tc *Context, args map[string]any, onProgress func(core.Progress)) (core.ToolOutcome, error) {
	ch, err := st.Stream(ctx, tc, args)
	if err != nil {
		return nil, err
	}
	var last core.Progress
	for p := range ch {
		last = p
		if !p.Final() {
			onProgress(p)
		}
	}
	if last.Stage == core.StageError && last.Err != nil {
		return *last.Err, nil
	}
	if last.Result == nil {
		return core.Error{Message: "streaming tool produced no result", Code: "EXECUTION_ERROR"}, nil
	}
	return last.Result, nil
}

// OutcomeFromError folds a Go error into the structured Error variant,
// mapping the pipeline taxonomy to stable codes and actionable suggestions.
func OutcomeFromError(err error) core.Error {
	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		return core.Error{
			Message:    nf.Error(),
			Code:       "NOT_FOUND",
			Suggestion: fmt.Sprintf("verify the %s id, or search for it first", nf.Entity),
		}
	}
	var conflict *core.ConflictError
	if errors.As(err, &conflict) {
		return core.Error{
			Message:    conflict.Error(),
			Code:       "CONFLICT",
			Suggestion: "re-read the entity and stage the change again on the current version",
		}
	}
	var cv *core.ValidationError
	if errors.As(err, &cv) {
		return core.Error{
			Message:    cv.Error(),
			Code:       "VALIDATION_ERROR",
			Suggestion: "correct the arguments and call the tool again",
		}
	}
	var uv *util.ValidationError
	if errors.As(err, &uv) {
		return core.Error{
			Message:    uv.Error(),
			Code:       "VALIDATION_ERROR",
			Suggestion: "correct the arguments and call the tool again",
		}
	}
	return core.Error{Message: err.Error(), Code: "EXECUTION_ERROR"}
}

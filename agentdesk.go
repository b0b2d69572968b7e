// Package agentdesk provides a high-level façade over the CRM copilot
// pipeline: triage routing, specialist execution, the approval workflow and
// the stores behind them. Most applications interact with this package by:
//  1. Creating an AgentDesk via New() (optionally overriding the default
//     in-memory stores and per-specialist configuration)
//  2. Starting turns with RouteAndRun (streaming) or RunSync (batch)
//  3. Driving staged drafts through Approvals()
//
// All defaults are safe for local development and testing; production
// deployments supply durable store implementations and a structured logger.
package agentdesk

import (
	"context"
	"errors"
	"fmt"

	"github.com/crmforge/agentdesk/agent"
	"github.com/crmforge/agentdesk/approval"
	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/logging"
	"github.com/crmforge/agentdesk/memory"
	"github.com/crmforge/agentdesk/model"
	"github.com/crmforge/agentdesk/session"
	"github.com/crmforge/agentdesk/stream"
	"github.com/crmforge/agentdesk/tool"
)

// Options configures an AgentDesk instance.
type Options struct {
	// Model executes the specialist turns. Required.
	Model model.Model

	// TriageModel executes the routing step. Defaults to Model.
	TriageModel model.Model

	// Stores (default to in-memory implementations if not provided).
	DomainStore   domain.Store
	SessionStore  session.Store
	WorkingStore  memory.WorkingStore
	ApprovalStore approval.Store

	// Registry overrides the default tool fleet.
	Registry *tool.Registry

	// Per-agent configuration overrides, applied over the built-in defaults.
	Specialists map[core.Specialist]agent.Overrides
	Triage      agent.Overrides

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// AgentDesk is the assembled pipeline.
type AgentDesk struct {
	opts        Options
	triage      *agent.Triage
	runner      *agent.Runner
	workflow    *approval.Workflow
	descriptors map[core.Specialist]agent.Descriptor
	logger      logging.Logger
}

// New assembles the pipeline with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) (*AgentDesk, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("agentdesk: a model is required")
	}
	if opts.TriageModel == nil {
		opts.TriageModel = opts.Model
	}
	if opts.DomainStore == nil {
		opts.DomainStore = domain.NewInMemoryStore()
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.WorkingStore == nil {
		opts.WorkingStore = memory.NewInMemoryWorkingStore()
	}
	if opts.ApprovalStore == nil {
		opts.ApprovalStore = approval.NewInMemoryStore(opts.DomainStore)
	}
	logger := logging.OrNoOp(opts.Logger)

	if opts.Registry == nil {
		registry, err := tool.NewDefaultRegistry(logger)
		if err != nil {
			return nil, err
		}
		opts.Registry = registry
	}

	descriptors := make(map[core.Specialist]agent.Descriptor, len(core.Specialists()))
	for _, s := range core.Specialists() {
		descriptors[s] = agent.Build(s, agent.SpecialistDefaults(), opts.Specialists[s])
	}

	triageDesc := agent.Build("", agent.TriageDefaults(), opts.Triage)
	assembler := memory.NewAssembler(opts.WorkingStore, opts.SessionStore, memory.ScopeUser, logger)

	return &AgentDesk{
		opts:   opts,
		triage: agent.NewTriage(opts.TriageModel, triageDesc, logger),
		runner: agent.NewRunner(opts.Registry, opts.DomainStore, opts.ApprovalStore,
			opts.SessionStore, assembler, opts.WorkingStore, logger),
		workflow:    approval.NewWorkflow(opts.ApprovalStore, logger),
		descriptors: descriptors,
		logger:      logger,
	}, nil
}

// Approvals exposes the draft-approval workflow.
func (a *AgentDesk) Approvals() *approval.Workflow { return a.workflow }

// RouteAndRun starts one conversational turn: route the latest user messages
// through triage, then run the chosen specialist, streaming events to the
// returned stream. conversationID may be empty to start a new conversation;
// the stream's ID() then doubles as a correlation id while the conversation
// id is retrievable from the session store.
//
// Cancelling the stream stops the turn; events already emitted stay
// deliverable and approvals already staged remain pending.
func (a *AgentDesk) RouteAndRun(ctx context.Context, msgs []core.Message, uc core.UserContext, conversationID string) (*stream.Stream, string, error) {
	if !uc.Valid() {
		return nil, "", &core.AuthError{Message: "user context lacks user or organization id"}
	}
	if len(msgs) == 0 {
		return nil, "", &core.ValidationError{Field: "messages", Message: "at least one message is required"}
	}

	rec, err := a.conversation(ctx, uc, conversationID)
	if err != nil {
		return nil, "", err
	}
	if err := a.opts.SessionStore.AppendMessages(ctx, uc.OrganizationID, rec.ID, msgs...); err != nil {
		return nil, "", err
	}
	history := append(rec.Messages, msgs...)

	runCtx, cancel := context.WithCancel(ctx)
	st := stream.New(core.NewID(), cancel)

	go func() {
		var usage model.Usage

		decision, triageUsage, err := a.triage.Route(runCtx, history)
		usage.Add(triageUsage)
		if err != nil {
			st.Close(usage, err)
			return
		}
		st.Emit(runCtx, stream.Handoff{Decision: decision})
		a.logger.Info("turn.routed", "conversation_id", rec.ID,
			"target", string(decision.TargetAgent), "reason", decision.Reason)

		if err := a.opts.SessionStore.SetActiveAgent(runCtx, uc.OrganizationID, rec.ID, string(decision.TargetAgent)); err != nil {
			a.logger.Warn("turn.active_agent_persist_failed", "conversation_id", rec.ID, "error", err.Error())
		}

		input := msgs
		if decision.PreserveContext {
			input = history
		}

		d := a.descriptors[decision.TargetAgent]
		runUsage, runErr := a.runner.Run(runCtx, d, a.opts.Model, input, uc, rec.ID, st)
		usage.Add(runUsage)
		st.Close(usage, runErr)
	}()

	return st, rec.ID, nil
}

// RunSync runs one turn to completion and returns the batch result.
func (a *AgentDesk) RunSync(ctx context.Context, msgs []core.Message, uc core.UserContext, conversationID string) (stream.Result, string, error) {
	st, convID, err := a.RouteAndRun(ctx, msgs, uc, conversationID)
	if err != nil {
		return stream.Result{}, "", err
	}
	res := st.Collect(ctx)
	return res, convID, res.Err
}

// conversation loads or creates the turn's conversation record.
func (a *AgentDesk) conversation(ctx context.Context, uc core.UserContext, id string) (*core.ConversationRecord, error) {
	if id == "" {
		return a.opts.SessionStore.Create(ctx, uc, "")
	}
	rec, err := a.opts.SessionStore.Get(ctx, uc.OrganizationID, id)
	if err == nil {
		return rec, nil
	}
	var nf *core.NotFoundError
	if errors.As(err, &nf) {
		return a.opts.SessionStore.Create(ctx, uc, id)
	}
	return nil, err
}

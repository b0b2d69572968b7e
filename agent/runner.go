package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/logging"
	"github.com/crmforge/agentdesk/memory"
	"github.com/crmforge/agentdesk/model"
	"github.com/crmforge/agentdesk/session"
	"github.com/crmforge/agentdesk/stream"
	"github.com/crmforge/agentdesk/tool"
)

// Runner drives one specialist turn: assemble memory, compose the system
// prompt, then loop model calls and tool dispatches until the model answers
// without tools or the turn budget runs out. Every emission goes through the
// caller's stream; the runner never retries a failed model call, and partial
// text already streamed stays delivered when a call fails mid-stream.
type Runner struct {
	registry  *tool.Registry
	sessions  session.Store
	assembler *memory.Assembler
	working   memory.WorkingStore
	store     domain.Reader
	approvals tool.ApprovalStager
	logger    logging.Logger
}

// NewRunner wires a runner. sessions, assembler and working may be nil; the
// corresponding behaviors (transcript persistence, memory context, pending
// approval tracking) degrade to no-ops.
func NewRunner(registry *tool.Registry, store domain.Reader, approvals tool.ApprovalStager,
	sessions session.Store, assembler *memory.Assembler, working memory.WorkingStore,
	logger logging.Logger) *Runner {
	return &Runner{
		registry:  registry,
		sessions:  sessions,
		assembler: assembler,
		working:   working,
		store:     store,
		approvals: approvals,
		logger:    logging.OrNoOp(logger),
	}
}

// Run executes the specialist turn, emitting into st. It returns the usage
// accumulated across every model call of the turn, including failed ones.
func (r *Runner) Run(ctx context.Context, d Descriptor, mdl model.Model, msgs []core.Message,
	uc core.UserContext, conversationID string, st *stream.Stream) (model.Usage, error) {

	var usage model.Usage

	memBlock, currentContext := r.memoryContext(ctx, d, uc, conversationID)
	system := ComposeSystem(d, memBlock, currentContext)

	convo := append([]core.Message(nil), msgs...)
	tc := tool.NewContext(uc, conversationID, d.Name, r.store, r.approvals, r.logger)
	defs := r.registry.Definitions(d.Name)

	for turn := 0; turn < d.MaxTurns; turn++ {
		req := model.Request{
			Model:       d.Model,
			System:      system,
			Messages:    convo,
			Tools:       defs,
			ToolChoice:  model.ToolChoice{Mode: model.ToolChoiceAuto},
			Temperature: d.Temperature,
			MaxTokens:   d.MaxTokens,
			Stream:      true,
		}

		respCh, errCh := mdl.Generate(ctx, req)

		var (
			text  strings.Builder
			calls []core.ToolCall
		)
		for resp := range respCh {
			if resp.TextDelta != "" {
				text.WriteString(resp.TextDelta)
				st.Emit(ctx, stream.TextDelta{Text: resp.TextDelta})
			}
			if resp.Usage != nil {
				usage.Add(*resp.Usage)
			}
			if len(resp.ToolCalls) > 0 {
				calls = resp.ToolCalls
			}
		}
		if err := <-errCh; err != nil {
			// No retry: a duplicate attempt could re-stage side effects.
			r.logger.Error("agent.model_failed", "agent", string(d.Name), "turn", turn, "error", err.Error())
			return usage, fmt.Errorf("agent %s: %w", d.Name, err)
		}

		assistant := core.Message{Role: core.RoleAssistant, Content: text.String(), ToolCalls: calls}
		convo = append(convo, assistant)
		r.persist(ctx, uc, conversationID, assistant)

		if len(calls) == 0 {
			return usage, nil
		}

		for _, call := range calls {
			st.Emit(ctx, stream.ToolCallBegin{CallID: call.ID, Name: call.Name})

			outcome := r.registry.DispatchStream(ctx, tc, call, func(p core.Progress) {
				st.Emit(ctx, stream.ToolProgress{CallID: call.ID, Name: call.Name, Progress: p})
			})
			st.Emit(ctx, stream.ToolResult{CallID: call.ID, Name: call.Name, Outcome: outcome})

			if ar, ok := outcome.(core.ApprovalRequired); ok {
				r.notePendingApproval(ctx, d, uc, conversationID, ar)
			}

			result := core.ToolResultMessage(call.ID, core.MarshalOutcome(outcome))
			convo = append(convo, result)
			r.persist(ctx, uc, conversationID, result)
		}
	}

	r.logger.Warn("agent.turn_budget_exhausted", "agent", string(d.Name), "max_turns", d.MaxTurns)
	return usage, nil
}

// memoryContext assembles and formats the memory block when the descriptor's
// policy enables it. The current UI context is summarized separately so the
// domain prompt can reference it directly.
func (r *Runner) memoryContext(ctx context.Context, d Descriptor, uc core.UserContext, conversationID string) (string, string) {
	if !d.Memory.Enabled || r.assembler == nil {
		return "", ""
	}
	c := r.assembler.Assemble(ctx, d.Memory.Scope, uc.OrganizationID, uc.UserID, conversationID)

	var current string
	switch {
	case c.Working.CurrentPage != "" && c.Working.ActiveEntityID != "":
		current = fmt.Sprintf("the user is viewing %s (entity %s)", c.Working.CurrentPage, c.Working.ActiveEntityID)
	case c.Working.CurrentPage != "":
		current = fmt.Sprintf("the user is viewing %s", c.Working.CurrentPage)
	}
	return memory.Format(c), current
}

// persist appends a message to the transcript, degrading on store failure.
func (r *Runner) persist(ctx context.Context, uc core.UserContext, conversationID string, msg core.Message) {
	if r.sessions == nil || conversationID == "" {
		return
	}
	if err := r.sessions.AppendMessages(ctx, uc.OrganizationID, conversationID, msg); err != nil {
		r.logger.Warn("agent.persist_failed", "conversation_id", conversationID, "error", err.Error())
	}
}

// notePendingApproval records a freshly staged draft in working memory so
// later turns can remind the user about it.
func (r *Runner) notePendingApproval(ctx context.Context, d Descriptor, uc core.UserContext, conversationID string, ar core.ApprovalRequired) {
	if r.working == nil {
		return
	}
	key := memory.UserKey(uc.OrganizationID, uc.UserID)
	if d.Memory.Scope == memory.ScopeConversation && conversationID != "" {
		key = memory.ConversationKey(uc.OrganizationID, conversationID)
	}

	wm, err := r.working.Get(ctx, key)
	if err != nil {
		return
	}
	if wm == nil {
		wm = &core.WorkingMemory{UserID: uc.UserID, OrganizationID: uc.OrganizationID}
	}
	wm.PendingApprovalIDs = append(wm.PendingApprovalIDs, ar.ApprovalID)
	wm.RecordAction("staged " + ar.Action)
	if err := r.working.Set(ctx, key, wm, 0); err != nil {
		r.logger.Debug("agent.working_memory_update_failed", "error", err.Error())
	}
}

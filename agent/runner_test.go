package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/agentdesk/approval"
	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/memory"
	"github.com/crmforge/agentdesk/model"
	"github.com/crmforge/agentdesk/session"
	"github.com/crmforge/agentdesk/stream"
	"github.com/crmforge/agentdesk/tool"
)

type runnerHarness struct {
	runner    *Runner
	domain    *domain.InMemoryStore
	approvals *approval.InMemoryStore
	sessions  *session.InMemoryStore
	working   *memory.InMemoryWorkingStore
}

func newHarness(t *testing.T) *runnerHarness {
	t.Helper()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	d := domain.NewInMemoryStore()
	d.SeedCustomer(&domain.Customer{
		ID: "c1", OrganizationID: "org1", Name: "Ada North", Status: "active",
		InternalNotes: "existing", Version: 3, CreatedAt: now, UpdatedAt: now,
	})

	registry, err := tool.NewDefaultRegistry(nil)
	require.NoError(t, err)

	approvals := approval.NewInMemoryStore(d)
	sessions := session.NewInMemoryStore()
	working := memory.NewInMemoryWorkingStore()
	assembler := memory.NewAssembler(working, sessions, memory.ScopeUser, nil)

	return &runnerHarness{
		runner:    NewRunner(registry, d, approvals, sessions, assembler, working, nil),
		domain:    d,
		approvals: approvals,
		sessions:  sessions,
		working:   working,
	}
}

func runnerUser() core.UserContext {
	return core.UserContext{UserID: "u1", OrganizationID: "org1", Role: "agent"}
}

func run(t *testing.T, h *runnerHarness, d Descriptor, m model.Model, msgs ...core.Message) (stream.Result, model.Usage, error) {
	t.Helper()
	ctx := context.Background()
	uc := runnerUser()
	rec, err := h.sessions.Create(ctx, uc, "conv1")
	require.NoError(t, err)

	st := stream.New("", nil)
	var usage model.Usage
	var runErr error
	go func() {
		usage, runErr = h.runner.Run(ctx, d, m, msgs, uc, rec.ID, st)
		st.Close(usage, runErr)
	}()
	return st.Collect(ctx), usage, runErr
}

func customerDescriptor() Descriptor {
	return Build(core.SpecialistCustomer, SpecialistDefaults(), Overrides{})
}

func TestRunPlainAnswerStreamsText(t *testing.T) {
	h := newHarness(t)
	m := model.NewScriptedModel(model.Turn{
		Text:  "Ada North is an active customer.",
		Usage: model.Usage{PromptTokens: 30, CompletionTokens: 10, TotalTokens: 40},
	})

	res, usage, err := run(t, h, customerDescriptor(), m, core.UserMessage("who is Ada?"))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, "Ada North is an active customer.", res.Text)
	assert.Equal(t, 40, usage.TotalTokens)
	assert.Equal(t, 1, m.Calls())
}

func TestRunToolLoopFeedsResultBack(t *testing.T) {
	h := newHarness(t)
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCall{{
			ID: "call1", Name: "get_customer",
			Arguments: json.RawMessage(`{"customer_id":"c1"}`),
		}}},
		model.Turn{Text: "Found Ada North."},
	)

	res, _, err := run(t, h, customerDescriptor(), m, core.UserMessage("look up c1"))
	require.NoError(t, err)
	assert.Equal(t, "Found Ada North.", res.Text)
	assert.Equal(t, 2, m.Calls())

	// The second call must carry the serialized tool result.
	second := m.Requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "call1", last.ToolCallID)
	assert.Contains(t, last.Content, `"type":"data"`)

	var sawBegin, sawResult bool
	for _, ev := range res.Events {
		switch ev.(type) {
		case stream.ToolCallBegin:
			sawBegin = true
		case stream.ToolResult:
			sawResult = true
		}
	}
	assert.True(t, sawBegin)
	assert.True(t, sawResult)
}

func TestRunStagedApprovalReachesStoreAndWorkingMemory(t *testing.T) {
	h := newHarness(t)
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCall{{
			ID: "call1", Name: "update_customer_notes",
			Arguments: json.RawMessage(`{"customer_id":"c1","notes":"met at trade fair"}`),
		}}},
		model.Turn{Text: "I drafted the note for your approval."},
	)

	res, _, err := run(t, h, customerDescriptor(), m, core.UserMessage("note: met at trade fair"))
	require.NoError(t, err)
	require.Len(t, res.Approvals, 1)

	rec, err := h.approvals.Get(context.Background(), "org1", res.Approvals[0].ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, rec.Status)

	wm, err := h.working.Get(context.Background(), memory.UserKey("org1", "u1"))
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Contains(t, wm.PendingApprovalIDs, rec.ID)
	assert.Contains(t, wm.RecentActions, "staged update_customer_notes")
}

// A conversation-scoped descriptor writes staged-approval notes under the
// conversation key, and the next turn's memory block reads them back from
// that same key.
func TestRunConversationScopeRoundTripsPendingApprovals(t *testing.T) {
	h := newHarness(t)
	d := Build(core.SpecialistCustomer, SpecialistDefaults(), Overrides{
		Memory: &MemoryPolicy{Enabled: true, Scope: memory.ScopeConversation},
	})
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCall{{
			ID: "call1", Name: "update_customer_notes",
			Arguments: json.RawMessage(`{"customer_id":"c1","notes":"met at trade fair"}`),
		}}},
		model.Turn{Text: "I drafted the note for your approval."},
	)

	res, _, err := run(t, h, d, m, core.UserMessage("note: met at trade fair"))
	require.NoError(t, err)
	require.Len(t, res.Approvals, 1)
	approvalID := res.Approvals[0].ApprovalID

	ctx := context.Background()
	wm, err := h.working.Get(ctx, memory.ConversationKey("org1", "conv1"))
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Contains(t, wm.PendingApprovalIDs, approvalID)

	m2 := model.NewScriptedModel(model.Turn{Text: "Still pending."})
	st := stream.New("", nil)
	go func() {
		usage, runErr := h.runner.Run(ctx, d, m2, []core.Message{core.UserMessage("anything pending?")}, runnerUser(), "conv1", st)
		st.Close(usage, runErr)
	}()
	res2 := st.Collect(ctx)
	require.NoError(t, res2.Err)
	require.Len(t, m2.Requests, 1)
	assert.Contains(t, m2.Requests[0].System, approvalID)
}

// A provider failure mid-stream keeps the text already emitted and surfaces
// the error without retrying.
func TestRunProviderFailureKeepsPartialText(t *testing.T) {
	h := newHarness(t)
	m := model.NewScriptedModel(model.Turn{
		Text: "Let me check",
		Fail: &core.ProviderError{Provider: "openai", Err: assert.AnError},
	})

	res, _, err := run(t, h, customerDescriptor(), m, core.UserMessage("who is Ada?"))
	var pe *core.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Let me check", res.Text)
	assert.Equal(t, 1, m.Calls())
}

func TestRunTurnBudgetStopsLoop(t *testing.T) {
	h := newHarness(t)
	turns := make([]model.Turn, 0, 3)
	for i := 0; i < 3; i++ {
		turns = append(turns, model.Turn{ToolCalls: []core.ToolCall{{
			ID: "call1", Name: "get_customer",
			Arguments: json.RawMessage(`{"customer_id":"c1"}`),
		}}})
	}
	m := model.NewScriptedModel(turns...)

	d := Build(core.SpecialistCustomer, SpecialistDefaults(), Overrides{MaxTurns: 3})
	_, _, err := run(t, h, d, m, core.UserMessage("loop"))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Calls())
}

func TestRunSystemPromptOrdering(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.working.Set(context.Background(), memory.UserKey("org1", "u1"), &core.WorkingMemory{
		CurrentPage:    "/customers/c1",
		ActiveEntityID: "c1",
	}, 0))

	m := model.NewScriptedModel(model.Turn{Text: "ok"})
	_, _, err := run(t, h, customerDescriptor(), m, core.UserMessage("hi"))
	require.NoError(t, err)

	system := m.Requests[0].System
	memIdx := strings.Index(system, "<session_context>")
	domainIdx := strings.Index(system, "customer specialist")
	rulesIdx := strings.Index(system, "General rules:")
	secIdx := strings.Index(system, "Security instructions:")

	require.GreaterOrEqual(t, memIdx, 0)
	assert.Less(t, memIdx, domainIdx)
	assert.Less(t, domainIdx, rulesIdx)
	assert.Less(t, rulesIdx, secIdx)
	assert.Contains(t, system, "the user is viewing /customers/c1 (entity c1)")
}

func TestRunMemoryDisabledSkipsContext(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.working.Set(context.Background(), memory.UserKey("org1", "u1"), &core.WorkingMemory{
		CurrentPage: "/customers/c1",
	}, 0))

	d := customerDescriptor()
	d.Memory.Enabled = false
	m := model.NewScriptedModel(model.Turn{Text: "ok"})
	_, _, err := run(t, h, d, m, core.UserMessage("hi"))
	require.NoError(t, err)
	assert.NotContains(t, m.Requests[0].System, "<session_context>")
}

func TestRunPersistsTranscript(t *testing.T) {
	h := newHarness(t)
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCall{{
			ID: "call1", Name: "get_customer",
			Arguments: json.RawMessage(`{"customer_id":"c1"}`),
		}}},
		model.Turn{Text: "Done."},
	)

	_, _, err := run(t, h, customerDescriptor(), m, core.UserMessage("look up c1"))
	require.NoError(t, err)

	rec, err := h.sessions.Get(context.Background(), "org1", "conv1")
	require.NoError(t, err)
	// assistant tool-call message, tool result, final assistant answer
	require.Len(t, rec.Messages, 3)
	assert.Equal(t, core.RoleAssistant, rec.Messages[0].Role)
	assert.Equal(t, core.RoleTool, rec.Messages[1].Role)
	assert.Equal(t, "Done.", rec.Messages[2].Content)
}

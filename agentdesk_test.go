package agentdesk

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/agentdesk/agent"
	"github.com/crmforge/agentdesk/approval"
	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/domain"
	"github.com/crmforge/agentdesk/model"
	"github.com/crmforge/agentdesk/stream"
)

func deskUser() core.UserContext {
	return core.UserContext{UserID: "u1", OrganizationID: "org1", Role: "agent"}
}

func deskDomain() *domain.InMemoryStore {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	d := domain.NewInMemoryStore()
	d.SeedCustomer(&domain.Customer{
		ID: "c1", OrganizationID: "org1", Name: "Ada North", Status: "active",
		InternalNotes: "existing", Version: 3, CreatedAt: now, UpdatedAt: now,
	})
	return d
}

func routeTo(t *testing.T, target core.Specialist) model.Turn {
	t.Helper()
	args, err := json.Marshal(core.HandoffDecision{
		TargetAgent: target, Reason: "test routing", PreserveContext: true,
	})
	require.NoError(t, err)
	return model.Turn{ToolCalls: []core.ToolCall{{
		ID: "route1", Name: agent.HandoffToolName, Arguments: args,
	}}}
}

func TestRunSyncRoutesAndAnswers(t *testing.T) {
	specialist := model.NewScriptedModel(model.Turn{
		Text:  "Ada North is active.",
		Usage: model.Usage{PromptTokens: 30, CompletionTokens: 10, TotalTokens: 40},
	})
	triage := model.NewScriptedModel(routeTo(t, core.SpecialistCustomer))

	desk, err := New(func(o *Options) {
		o.Model = specialist
		o.TriageModel = triage
		o.DomainStore = deskDomain()
	})
	require.NoError(t, err)

	res, convID, err := desk.RunSync(context.Background(),
		[]core.Message{core.UserMessage("who is Ada?")}, deskUser(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, convID)
	assert.Equal(t, "Ada North is active.", res.Text)
	assert.Equal(t, 40, res.Usage.TotalTokens)

	var handoff *stream.Handoff
	for _, ev := range res.Events {
		if h, ok := ev.(stream.Handoff); ok {
			handoff = &h
		}
	}
	require.NotNil(t, handoff)
	assert.Equal(t, core.SpecialistCustomer, handoff.Decision.TargetAgent)
}

func TestNewRequiresModel(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}

func TestRouteAndRunRejectsInvalidIdentity(t *testing.T) {
	desk, err := New(func(o *Options) { o.Model = model.NewScriptedModel() })
	require.NoError(t, err)

	_, _, err = desk.RouteAndRun(context.Background(),
		[]core.Message{core.UserMessage("hi")}, core.UserContext{UserID: "u1"}, "")
	var ae *core.AuthError
	require.ErrorAs(t, err, &ae)
}

func TestStagedApprovalSurvivesFullWorkflow(t *testing.T) {
	ctx := context.Background()
	d := deskDomain()
	specialist := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCall{{
			ID: "call1", Name: "update_customer_notes",
			Arguments: json.RawMessage(`{"customer_id":"c1","notes":"met at trade fair"}`),
		}}},
		model.Turn{Text: "Staged for your approval."},
	)
	triage := model.NewScriptedModel(routeTo(t, core.SpecialistCustomer))

	desk, err := New(func(o *Options) {
		o.Model = specialist
		o.TriageModel = triage
		o.DomainStore = d
	})
	require.NoError(t, err)

	res, _, err := desk.RunSync(ctx, []core.Message{core.UserMessage("note it")}, deskUser(), "")
	require.NoError(t, err)
	require.Len(t, res.Approvals, 1)
	approvalID := res.Approvals[0].ApprovalID

	manager := core.UserContext{UserID: "manager1", OrganizationID: "org1", Role: "manager"}
	_, err = desk.Approvals().Approve(ctx, manager, approvalID)
	require.NoError(t, err)
	applied, err := desk.Approvals().Apply(ctx, manager, approvalID, approval.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.StatusApplied, applied.Status)

	c, err := d.GetCustomer(ctx, "org1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "existing\n\n---\n\nmet at trade fair", c.InternalNotes)
}

// Cancelling a turn mid-stream abandons the model loop but never rolls back
// approvals that were already staged.
func TestCancelMidTurnKeepsStagedApprovals(t *testing.T) {
	ctx := context.Background()
	d := deskDomain()
	specialist := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCall{{
			ID: "call1", Name: "update_customer_notes",
			Arguments: json.RawMessage(`{"customer_id":"c1","notes":"a note"}`),
		}}},
		model.Turn{Text: "This answer is never fully consumed because the user cancels."},
	)
	triage := model.NewScriptedModel(routeTo(t, core.SpecialistCustomer))

	desk, err := New(func(o *Options) {
		o.Model = specialist
		o.TriageModel = triage
		o.DomainStore = d
	})
	require.NoError(t, err)

	st, _, err := desk.RouteAndRun(ctx, []core.Message{core.UserMessage("note it")}, deskUser(), "")
	require.NoError(t, err)

	// Consume until the staged approval appears, then cancel.
	var approvalID string
	for ev := range st.Events() {
		if tr, ok := ev.(stream.ToolResult); ok {
			if ar, ok := tr.Outcome.(core.ApprovalRequired); ok {
				approvalID = ar.ApprovalID
				break
			}
		}
	}
	require.NotEmpty(t, approvalID)
	st.Cancel()
	for range st.Events() {
	}

	rec, err := desk.Approvals().Get(ctx,
		core.UserContext{UserID: "manager1", OrganizationID: "org1"}, approvalID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, rec.Status)
}

func TestConversationContinuesAcrossTurns(t *testing.T) {
	ctx := context.Background()
	specialist := model.NewScriptedModel(
		model.Turn{Text: "First answer."},
		model.Turn{Text: "Second answer."},
	)
	triage := model.NewScriptedModel(
		routeTo(t, core.SpecialistCustomer),
		routeTo(t, core.SpecialistCustomer),
	)

	desk, err := New(func(o *Options) {
		o.Model = specialist
		o.TriageModel = triage
		o.DomainStore = deskDomain()
	})
	require.NoError(t, err)

	_, convID, err := desk.RunSync(ctx, []core.Message{core.UserMessage("first")}, deskUser(), "")
	require.NoError(t, err)
	_, _, err = desk.RunSync(ctx, []core.Message{core.UserMessage("second")}, deskUser(), convID)
	require.NoError(t, err)

	// The second specialist call sees the earlier exchange.
	second := specialist.Requests[1]
	var sawFirst bool
	for _, msg := range second.Messages {
		if msg.Content == "first" {
			sawFirst = true
		}
	}
	assert.True(t, sawFirst)
}

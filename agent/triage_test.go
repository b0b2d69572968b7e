package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/agentdesk/core"
	"github.com/crmforge/agentdesk/model"
)

func handoffCall(t *testing.T, decision core.HandoffDecision) core.ToolCall {
	t.Helper()
	args, err := json.Marshal(decision)
	require.NoError(t, err)
	return core.ToolCall{ID: "call1", Name: HandoffToolName, Arguments: args}
}

func TestRouteRevenueQuestionToAnalytics(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{
		ToolCalls: []core.ToolCall{handoffCall(t, core.HandoffDecision{
			TargetAgent:     core.SpecialistAnalytics,
			Reason:          "user asks about revenue trends",
			PreserveContext: true,
		})},
		Usage: model.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
	})
	tr := NewTriage(m, TriageDefaults(), nil)

	decision, usage, err := tr.Route(context.Background(), []core.Message{
		core.UserMessage("show me Q3 revenue trends"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.SpecialistAnalytics, decision.TargetAgent)
	assert.True(t, decision.PreserveContext)
	assert.Equal(t, 28, usage.TotalTokens)
}

func TestRouteForcesHandoffTool(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{
		ToolCalls: []core.ToolCall{handoffCall(t, core.HandoffDecision{
			TargetAgent: core.SpecialistOrder, Reason: "order question",
		})},
	})
	tr := NewTriage(m, TriageDefaults(), nil)

	_, _, err := tr.Route(context.Background(), []core.Message{core.UserMessage("where is order o1?")})
	require.NoError(t, err)

	require.Len(t, m.Requests, 1)
	req := m.Requests[0]
	assert.Equal(t, model.ToolChoiceForced, req.ToolChoice.Mode)
	assert.Equal(t, HandoffToolName, req.ToolChoice.Tool)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.False(t, req.Stream)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, HandoffToolName, req.Tools[0].Name)
}

// A model that answers with prose instead of the forced tool call must not
// fail the turn: routing falls back deterministically.
func TestRouteFallbackWhenModelIgnoresForcedChoice(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Text: "I think this is about customers."})
	tr := NewTriage(m, TriageDefaults(), nil)

	decision, _, err := tr.Route(context.Background(), []core.Message{core.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, core.SpecialistCustomer, decision.TargetAgent)
	assert.Equal(t, FallbackReason, decision.Reason)
	assert.True(t, decision.PreserveContext)
}

func TestRouteFallbackOnUnknownSpecialist(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{
		ToolCalls: []core.ToolCall{{
			ID: "call1", Name: HandoffToolName,
			Arguments: json.RawMessage(`{"target_agent":"billing","reason":"made up"}`),
		}},
	})
	tr := NewTriage(m, TriageDefaults(), nil)

	decision, _, err := tr.Route(context.Background(), []core.Message{core.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, core.SpecialistCustomer, decision.TargetAgent)
	assert.Equal(t, FallbackReason, decision.Reason)
}

// preserve_context is optional in the handoff schema; a decision that omits
// it routes with context preserved rather than silently dropping history.
func TestRoutePreserveContextDefaultsTrue(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{
		ToolCalls: []core.ToolCall{{
			ID: "call1", Name: HandoffToolName,
			Arguments: json.RawMessage(`{"target_agent":"order","reason":"order question"}`),
		}},
	})
	tr := NewTriage(m, TriageDefaults(), nil)

	decision, _, err := tr.Route(context.Background(), []core.Message{core.UserMessage("where is order o1?")})
	require.NoError(t, err)
	assert.Equal(t, core.SpecialistOrder, decision.TargetAgent)
	assert.True(t, decision.PreserveContext)
}

func TestRoutePreserveContextExplicitFalse(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{
		ToolCalls: []core.ToolCall{{
			ID: "call1", Name: HandoffToolName,
			Arguments: json.RawMessage(`{"target_agent":"quote","reason":"new topic","preserve_context":false}`),
		}},
	})
	tr := NewTriage(m, TriageDefaults(), nil)

	decision, _, err := tr.Route(context.Background(), []core.Message{core.UserMessage("draft a quote")})
	require.NoError(t, err)
	assert.Equal(t, core.SpecialistQuote, decision.TargetAgent)
	assert.False(t, decision.PreserveContext)
}

// splitStreamModel delivers a valid handoff call and then fails the stream,
// exercising the path where the decision precedes a transport error.
type splitStreamModel struct {
	calls []core.ToolCall
	err   error
}

func (m *splitStreamModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	respCh <- model.Response{ToolCalls: m.calls, Usage: &model.Usage{TotalTokens: 12}}
	close(respCh)
	errCh <- m.err
	close(errCh)
	return respCh, errCh
}

func (m *splitStreamModel) Info() model.Info {
	return model.Info{Name: "split", Provider: "test", SupportsTools: true}
}

func TestRouteKeepsDecisionWhenStreamFailsAfterIt(t *testing.T) {
	m := &splitStreamModel{
		calls: []core.ToolCall{handoffCall(t, core.HandoffDecision{
			TargetAgent: core.SpecialistAnalytics, Reason: "revenue question", PreserveContext: true,
		})},
		err: &core.ProviderError{Provider: "openai", Err: assert.AnError},
	}
	tr := NewTriage(m, TriageDefaults(), nil)

	decision, usage, err := tr.Route(context.Background(), []core.Message{core.UserMessage("revenue this year?")})
	require.NoError(t, err)
	assert.Equal(t, core.SpecialistAnalytics, decision.TargetAgent)
	assert.Equal(t, 12, usage.TotalTokens)
}

func TestRoutePropagatesProviderFailure(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Fail: &core.ProviderError{Provider: "openai", Err: assert.AnError}})
	tr := NewTriage(m, TriageDefaults(), nil)

	_, _, err := tr.Route(context.Background(), []core.Message{core.UserMessage("hi")})
	var pe *core.ProviderError
	require.ErrorAs(t, err, &pe)
}
